package metrics

import (
	"context"
	"time"

	"grimm.is/blockd/internal/logging"
)

// CacheSizer reports the number of cached blocks.
type CacheSizer interface {
	Len() int
}

// RuleLister lists the addresses currently blocked in the firewall.
type RuleLister interface {
	ListBlocked() (map[string]time.Time, error)
}

// Collector periodically samples the cache size and the firewall chain so
// drift between intended and actual state is visible.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	interval time.Duration
	cache    CacheSizer
	rules    RuleLister
}

// NewCollector creates a new metrics collector. rules may be nil to sample
// the cache only.
func NewCollector(reg *Registry, logger *logging.Logger, interval time.Duration, cache CacheSizer, rules RuleLister) *Collector {
	return &Collector{
		registry: reg,
		logger:   logger,
		interval: interval,
		cache:    cache,
		rules:    rules,
	}
}

// Run samples immediately and then every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-ctx.Done():
			c.logger.Info("Stopping metrics collector")
			return nil
		}
	}
}

func (c *Collector) collect() {
	c.registry.SetCacheEntries(c.cache.Len())
	if c.rules == nil {
		return
	}
	blocked, err := c.rules.ListBlocked()
	if err != nil {
		c.registry.RecordFirewallError("list")
		c.logger.Debug("rule sample failed", "error", err)
		return
	}
	c.registry.FirewallRules.Set(float64(len(blocked)))
}
