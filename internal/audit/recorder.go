package audit

import (
	"context"
	"sync/atomic"
	"time"

	"grimm.is/blockd/internal/logging"
)

// Sink accepts events without blocking the caller.
type Sink interface {
	Record(evt Event)
}

// DefaultBuffer is the Recorder queue length.
const DefaultBuffer = 1024

// Recorder queues events and writes them to a Store from one goroutine, so
// callers holding the block cache lock never wait on disk. Events are
// dropped when the queue is full.
type Recorder struct {
	store      *Store
	logger     *logging.Logger
	ch         chan Event
	pruneEvery time.Duration

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder creates a recorder over store. buffer <= 0 means DefaultBuffer.
func NewRecorder(store *Store, buffer int, logger *logging.Logger) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		store:      store,
		logger:     logger,
		ch:         make(chan Event, buffer),
		pruneEvery: time.Hour,
	}
}

// Record queues evt, stamping it with the store clock.
func (r *Recorder) Record(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = r.store.clock.Now()
	}
	select {
	case r.ch <- evt:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued events until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	r.prune()
	prune := time.NewTicker(r.pruneEvery)
	defer prune.Stop()

	for {
		select {
		case evt := <-r.ch:
			r.write(evt)
		case <-prune.C:
			r.prune()
		case <-ctx.Done():
			for {
				select {
				case evt := <-r.ch:
					r.write(evt)
				default:
					return nil
				}
			}
		}
	}
}

// Stats returns events written and dropped.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}

func (r *Recorder) write(evt Event) {
	if err := r.store.Write(evt); err != nil {
		r.logger.Warn("Failed to write audit event", "addr", evt.Addr, "action", evt.Action, "error", err)
		return
	}
	r.written.Add(1)
}

func (r *Recorder) prune() {
	n, err := r.store.Prune()
	if err != nil {
		r.logger.Warn("Failed to prune audit history", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("Pruned audit history", "events", n)
	}
}
