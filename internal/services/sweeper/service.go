// Package sweeper expires cached blocks and deletes their firewall rules.
package sweeper

import (
	"context"
	"sync"
	"time"

	"grimm.is/blockd/internal/audit"
	"grimm.is/blockd/internal/blockcache"
	"grimm.is/blockd/internal/clock"
	"grimm.is/blockd/internal/firewall"
	"grimm.is/blockd/internal/logging"
	"grimm.is/blockd/internal/metrics"
	"grimm.is/blockd/internal/services"
)

const (
	DefaultTTL       = 300 * time.Second
	DefaultInterval  = time.Second
	DefaultBatchSize = 100
)

// Config controls expiry.
type Config struct {
	TTL       time.Duration
	Interval  time.Duration
	BatchSize int
}

// Result summarises one sweep.
type Result struct {
	Expired  int // entries past the TTL when the batch began
	Removed  int // entries removed from the cache
	Deleted  int // rules deleted successfully
	NoHandle int // removed entries with no matching rule
	Failed   int // rule deletions that failed
	Deferred int // expired entries left for a later sweep
	// ListFailed is set when the handle listing failed and the whole
	// batch was left cached.
	ListFailed bool
}

// stuckWarnEvery is how many consecutive failed listings pass between
// warnings that expired entries are not being removed.
const stuckWarnEvery = 10

// Service is the expiry sweeper.
type Service struct {
	cfg     Config
	cache   *blockcache.Cache
	fw      firewall.Adapter
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.Registry
	audit   audit.Sink

	mu        sync.Mutex
	lastSweep time.Time
	sweeps    uint64
	removed   uint64
	state     services.Tracker

	// listFailures counts consecutive sweeps whose handle listing failed.
	listFailures int
}

// NewService creates a sweeper over cache and fw.
func NewService(cfg Config, cache *blockcache.Cache, fw firewall.Adapter, logger *logging.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Service{
		cfg:     cfg,
		cache:   cache,
		fw:      fw,
		clock:   clock.Real,
		logger:  logger,
		metrics: metrics.New(),
	}
}

// SetClock sets the clock (for testing).
func (s *Service) SetClock(c clock.Clock) { s.clock = clock.Or(c) }

// SetMetrics sets the metrics registry.
func (s *Service) SetMetrics(r *metrics.Registry) { s.metrics = r }

// SetAudit records unblock decisions to sink.
func (s *Service) SetAudit(sink audit.Sink) { s.audit = sink }

func (s *Service) Name() string { return "sweeper" }

// Run sweeps, sleeps the interval, and repeats until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting sweeper", "ttl", s.cfg.TTL.String(), "interval", s.cfg.Interval.String(), "batch", s.cfg.BatchSize)
	s.state.Started(s.clock.Now())

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.state.Stopped(nil)
			return nil
		case <-timer.C:
			s.Sweep()
			timer.Reset(s.cfg.Interval)
		}
	}
}

// Sweep runs one expiry pass. The cache lock is held for the whole batch,
// including the handle listing and every rule deletion.
func (s *Service) Sweep() Result {
	var res Result
	now := s.clock.Now()
	start := time.Now()

	s.cache.Locked(func(tx *blockcache.Tx) {
		expired := tx.Expired(now, s.cfg.TTL)
		res.Expired = len(expired)
		if len(expired) == 0 {
			return
		}

		handles, err := s.fw.ListHandles()
		if err != nil {
			// Leave the entries cached; deleting them now would strand
			// their rules. While the listing keeps failing nothing expires
			// and the listing is retried every interval.
			res.Deferred = len(expired)
			res.ListFailed = true
			s.metrics.RecordFirewallError("list")
			s.logger.Error("Failed to list rule handles", "expired", len(expired), "error", err)
			return
		}
		s.logger.Debug("Fetched handles", "handles", len(handles), "expired", len(expired))

		for _, addr := range expired {
			if res.Removed >= s.cfg.BatchSize {
				break
			}
			last := tx.Remove(addr)
			res.Removed++
			mins := int(now.Sub(last) / time.Minute)

			h, ok := handles[addr]
			if !ok {
				res.NoHandle++
				s.metrics.RecordUnblock(false)
				s.logger.Warn("Handle not found", "addr", addr)
				s.record(now, addr, map[string]any{"no_handle": true})
				continue
			}
			s.logger.Info("Removing block", "addr", addr, "minutes", mins, "handle", h)
			details := map[string]any{"handle": h}
			if err := s.fw.RemoveRule(h); err != nil {
				res.Failed++
				s.metrics.RecordFirewallError("remove")
				s.logger.Error("Failed to remove rule", "addr", addr, "handle", h, "error", err)
				details["error"] = err.Error()
			} else {
				res.Deleted++
			}
			s.metrics.RecordUnblock(true)
			s.record(now, addr, details)
		}

		res.Deferred = res.Expired - res.Removed
		if res.Deferred > 0 {
			s.logger.Info("Batch limit reached", "removed", res.Removed, "deferred", res.Deferred)
		}
		s.metrics.SetCacheEntries(tx.Len())
	})

	if res.Expired > 0 {
		s.metrics.RecordSweep(time.Since(start), res.Expired, now)
	} else {
		s.metrics.LastSweep.Set(float64(now.Unix()))
	}

	s.mu.Lock()
	s.lastSweep = now
	s.sweeps++
	s.removed += uint64(res.Removed)
	if res.ListFailed {
		s.listFailures++
	} else if res.Expired > 0 {
		s.listFailures = 0
	}
	failures := s.listFailures
	s.mu.Unlock()

	if res.ListFailed && failures%stuckWarnEvery == 0 {
		s.logger.Warn("Expired entries stuck behind failing rule listing",
			"consecutive_failures", failures, "expired", res.Expired)
	}
	return res
}

// ListFailures returns how many sweeps in a row could not list handles.
func (s *Service) ListFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listFailures
}

func (s *Service) record(now time.Time, addr string, details map[string]any) {
	if s.audit != nil {
		s.audit.Record(audit.Event{Time: now, Action: audit.ActionUnblock, Addr: addr, Details: details})
	}
}

// Stats returns the time of the last sweep and running totals.
func (s *Service) Stats() (last time.Time, sweeps, removed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.sweeps, s.removed
}

// Status reports sweeper state.
func (s *Service) Status() services.ServiceStatus {
	return s.state.Status(s.Name())
}
