// Package daemon wires blockd together: bootstrap the firewall chain, seed
// the block cache from it, then run the ingest listener and the expiry
// sweeper side by side until one of them fails.
package daemon

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"grimm.is/blockd/internal/audit"
	"grimm.is/blockd/internal/blockcache"
	"grimm.is/blockd/internal/clock"
	"grimm.is/blockd/internal/config"
	"grimm.is/blockd/internal/enrich"
	"grimm.is/blockd/internal/firewall"
	"grimm.is/blockd/internal/logging"
	"grimm.is/blockd/internal/metrics"
	"grimm.is/blockd/internal/ratelimit"
	"grimm.is/blockd/internal/services"
	"grimm.is/blockd/internal/services/ingest"
	"grimm.is/blockd/internal/services/sweeper"
)

// Options configures New. Only Config is required.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Adapter firewall.Adapter
	Clock   clock.Clock
	Metrics *metrics.Registry
}

// Daemon owns the cache and the workers that share it.
type Daemon struct {
	cfg     *config.Config
	dur     config.Durations
	logger  *logging.Logger
	clock   clock.Clock
	fw      firewall.Adapter
	cache   *blockcache.Cache
	metrics *metrics.Registry

	ingest   *ingest.Service
	sweeper  *sweeper.Service
	enricher *enrich.Enricher
	recorder *audit.Recorder
}

// New builds a daemon. The cache stays empty until Bootstrap.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("daemon: nil config")
	}
	cfg.ApplyDefaults()
	dur, err := cfg.Durations()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	clk := clock.Or(opts.Clock)
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.Get()
	}

	fw := opts.Adapter
	if fw == nil {
		fw, err = firewall.New(firewall.Options{
			Backend: cfg.Firewall.Backend,
			Table:   cfg.FirewallTable(),
			NFTPath: cfg.Firewall.NFTPath,
			Clock:   clk,
			Timeout: dur.FirewallTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("firewall: %w", err)
		}
	}

	d := &Daemon{
		cfg:     cfg,
		dur:     dur,
		logger:  logger.WithComponent("daemon"),
		clock:   clk,
		fw:      fw,
		cache:   blockcache.New(),
		metrics: reg,
	}
	d.build(logger)
	return d, nil
}

func (d *Daemon) build(logger *logging.Logger) {
	d.ingest = ingest.NewService(ingest.Config{
		Listen:        d.cfg.Listen,
		ReadBuffer:    d.cfg.ReadBuffer,
		SocketBuffer:  d.cfg.SocketBuffer,
		TTL:           d.dur.TTL,
		RenewAddsRule: d.cfg.RenewAdds(),
	}, d.cache, d.fw, logger.WithComponent("ingest"))
	d.ingest.SetClock(d.clock)
	d.ingest.SetMetrics(d.metrics)
	if rl := d.cfg.RateLimit; rl != nil && rl.PerSource > 0 {
		d.ingest.SetLimiter(ratelimit.NewLimiter(rl.PerSource, d.dur.RateInterval, d.clock))
	}

	d.sweeper = sweeper.NewService(sweeper.Config{
		TTL:       d.dur.TTL,
		Interval:  d.dur.SweepInterval,
		BatchSize: d.cfg.BatchSize,
	}, d.cache, d.fw, logger.WithComponent("sweeper"))
	d.sweeper.SetClock(d.clock)
	d.sweeper.SetMetrics(d.metrics)

	ec := enrich.Config{
		GeoIPDB:  d.cfg.Enrich.GeoIPDB,
		Resolver: d.cfg.Enrich.Resolver,
		Timeout:  d.dur.EnrichTimeout,
	}
	if ec.Enabled() {
		d.enricher = enrich.New(ec, logger.WithComponent("enrich"))
		d.ingest.SetOnNew(d.enricher.Notify)
	}
}

// Cache returns the shared block cache.
func (d *Daemon) Cache() *blockcache.Cache { return d.cache }

// Bootstrap ensures the table and chain exist, then seeds the cache from
// the rules already installed, each stamped with the current time. A
// failure to create the table or chain is fatal; a failed listing leaves
// the cache empty.
func (d *Daemon) Bootstrap() error {
	if err := d.fw.EnsureTable(); err != nil {
		return fmt.Errorf("ensure table: %w", err)
	}

	blocked, err := d.fw.ListBlocked()
	if err != nil {
		d.metrics.RecordFirewallError("list")
		d.logger.Error("Failed to list existing rules", "error", err)
		blocked = nil
	}
	d.cache.Seed(blocked)
	d.metrics.SetCacheEntries(d.cache.Len())
	d.logger.Info("Loaded blocked IPs", "count", d.cache.Len())
	return nil
}

// Run bootstraps, binds the listener, and runs every worker until ctx is
// cancelled or one of them fails. The first failure is returned.
func (d *Daemon) Run(ctx context.Context) error {
	if path := d.cfg.Audit.Path; path != "" {
		store, err := audit.NewStore(path, d.dur.AuditRetention, d.clock)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer store.Close()
		d.recorder = audit.NewRecorder(store, audit.DefaultBuffer, d.logger.WithComponent("audit"))
		d.ingest.SetAudit(d.recorder)
		d.sweeper.SetAudit(d.recorder)
	}

	if err := d.Bootstrap(); err != nil {
		return err
	}
	if err := d.ingest.Listen(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if d.recorder != nil {
		// The recorder drains on cancel, so it outlives the other workers.
		rec := d.recorder
		g.Go(func() error { return rec.Run(ctx) })
	}
	workers := []services.Service{d.ingest, d.sweeper}
	for _, w := range workers {
		w := w
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", w.Name(), err)
			}
			return nil
		})
	}

	if m := d.cfg.Metrics; m.Enabled {
		srv := metrics.NewServer(m.Listen, d.metrics, d.logger.WithComponent("metrics"))
		g.Go(func() error { return srv.Run(ctx) })

		collector := metrics.NewCollector(d.metrics, d.logger.WithComponent("metrics"), d.dur.SampleInterval, d.cache, d.fw)
		g.Go(func() error { return collector.Run(ctx) })
	}

	err := g.Wait()
	if d.enricher != nil {
		_ = d.enricher.Close()
	}
	return err
}

// Status is a point-in-time view of the daemon.
type Status struct {
	CacheEntries int                      `json:"cache_entries"`
	LastSweep    time.Time                `json:"last_sweep"`
	Sweeps       uint64                   `json:"sweeps"`
	Expired      uint64                   `json:"expired"`
	Received     uint64                   `json:"received"`
	Rejected     uint64                   `json:"rejected"`
	Services     []services.ServiceStatus `json:"services"`
}

// Status reports cache size, sweep progress, and worker state.
func (d *Daemon) Status() Status {
	last, sweeps, removed := d.sweeper.Stats()
	received, rejected := d.ingest.Counts()
	return Status{
		CacheEntries: d.cache.Len(),
		LastSweep:    last,
		Sweeps:       sweeps,
		Expired:      removed,
		Received:     received,
		Rejected:     rejected,
		Services:     []services.ServiceStatus{d.ingest.Status(), d.sweeper.Status()},
	}
}
