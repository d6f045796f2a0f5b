package services

import (
	"context"
	"sync"
	"time"
)

// ServiceStatus represents the current state of a service.
type ServiceStatus struct {
	Name    string    `json:"name"`
	Running bool      `json:"running"`
	Since   time.Time `json:"since,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Service is a long-running daemon worker. Run blocks until ctx is done or
// the worker fails; a returned error is fatal to the process.
type Service interface {
	// Name returns the unique name of the service.
	Name() string

	// Run runs the service in the calling goroutine.
	Run(ctx context.Context) error

	// Status returns the current status of the service.
	Status() ServiceStatus
}

// Tracker records run state for a Service. The zero value is ready to use.
type Tracker struct {
	mu      sync.RWMutex
	running bool
	since   time.Time
	err     error
}

// Started marks the service running as of now.
func (t *Tracker) Started(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.since = now
	t.err = nil
}

// Stopped marks the service stopped with an optional terminal error.
func (t *Tracker) Stopped(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.err = err
}

// Status returns the tracked state under name.
func (t *Tracker) Status(name string) ServiceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := ServiceStatus{Name: name, Running: t.running, Since: t.since}
	if t.err != nil {
		st.Error = t.err.Error()
	}
	return st
}
