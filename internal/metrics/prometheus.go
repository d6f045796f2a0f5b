package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blockd"

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all blockd metrics.
type Registry struct {
	reg *prometheus.Registry

	// Block lifecycle
	BlocksTotal   *prometheus.CounterVec
	UnblocksTotal *prometheus.CounterVec

	// Errors
	FirewallErrors *prometheus.CounterVec
	IngestRejected *prometheus.CounterVec

	// State
	CacheEntries  prometheus.Gauge
	FirewallRules prometheus.Gauge

	// Sweeper
	SweepDuration prometheus.Histogram
	SweepExpired  prometheus.Histogram
	LastSweep     prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
		registry.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// New returns a registry backed by its own prometheus.Registry, so tests
// can build as many as they like.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	f := promauto.With(r.reg)

	r.BlocksTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_total",
		Help:      "Block requests applied, by kind (new or renew)",
	}, []string{"kind"})

	r.UnblocksTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unblocks_total",
		Help:      "Expired entries removed from the cache, by result",
	}, []string{"result"})

	r.FirewallErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "firewall_errors_total",
		Help:      "Failed firewall operations, by operation",
	}, []string{"op"})

	r.IngestRejected = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_rejected_total",
		Help:      "Dropped ingest datagrams, by reason",
	}, []string{"reason"})

	r.CacheEntries = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Addresses currently held in the block cache",
	})

	r.FirewallRules = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "firewall_rules",
		Help:      "Distinct blocked addresses in the firewall chain at last sample",
	})

	r.SweepDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Time spent holding the cache lock per sweep batch",
		Buckets:   prometheus.DefBuckets,
	})

	r.SweepExpired = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_expired_entries",
		Help:      "Expired entries found per sweep that had any",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	r.LastSweep = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_sweep_timestamp_seconds",
		Help:      "Unix time of the last completed sweep",
	})

	return r
}

// Handler serves this registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// RecordBlock records an applied block request.
func (r *Registry) RecordBlock(renewed bool) {
	kind := "new"
	if renewed {
		kind = "renew"
	}
	r.BlocksTotal.WithLabelValues(kind).Inc()
}

// RecordUnblock records a swept entry; hadHandle is false when no rule was
// found to delete.
func (r *Registry) RecordUnblock(hadHandle bool) {
	result := "removed"
	if !hadHandle {
		result = "no_handle"
	}
	r.UnblocksTotal.WithLabelValues(result).Inc()
}

// RecordFirewallError records a failed adapter call.
func (r *Registry) RecordFirewallError(op string) {
	r.FirewallErrors.WithLabelValues(op).Inc()
}

// RecordRejected records a dropped datagram.
func (r *Registry) RecordRejected(reason string) {
	r.IngestRejected.WithLabelValues(reason).Inc()
}

// RecordSweep records one sweep that held the lock for d and found expired
// entries.
func (r *Registry) RecordSweep(d time.Duration, expired int, at time.Time) {
	r.SweepDuration.Observe(d.Seconds())
	if expired > 0 {
		r.SweepExpired.Observe(float64(expired))
	}
	r.LastSweep.Set(float64(at.Unix()))
}

// SetCacheEntries sets the cache size gauge.
func (r *Registry) SetCacheEntries(n int) {
	r.CacheEntries.Set(float64(n))
}
