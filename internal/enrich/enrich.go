// Package enrich annotates newly blocked addresses with a country code and
// reverse DNS name for the log. Lookups run off the ingest path and never
// touch the block cache.
package enrich

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/oschwald/geoip2-golang"

	"grimm.is/blockd/internal/clock"
	"grimm.is/blockd/internal/logging"
)

const (
	defaultTimeout  = time.Second
	defaultCacheTTL = time.Hour
	maxInflight     = 16
)

// Config selects the enrichment sources. Empty fields disable a source.
type Config struct {
	GeoIPDB  string
	Resolver string
	Timeout  time.Duration
}

// Enabled reports whether any source is configured.
func (c Config) Enabled() bool {
	return c.GeoIPDB != "" || c.Resolver != ""
}

// Result is what is known about an address.
type Result struct {
	Country string
	PTR     string
}

type cached struct {
	res Result
	ts  time.Time
}

// Enricher performs lookups with a small TTL cache.
type Enricher struct {
	geo      *geoip2.Reader
	resolver string
	client   *dns.Client
	timeout  time.Duration
	logger   *logging.Logger
	clock    clock.Clock

	mu        sync.RWMutex
	cache     map[string]cached
	lastPrune time.Time

	sem chan struct{}
	wg  sync.WaitGroup
}

// New builds an Enricher. A GeoIP database that cannot be opened is logged
// and skipped; reverse DNS still works.
func New(cfg Config, logger *logging.Logger) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	e := &Enricher{
		resolver: cfg.Resolver,
		timeout:  cfg.Timeout,
		logger:   logger,
		clock:    clock.Real,
		cache:    make(map[string]cached),
		sem:      make(chan struct{}, maxInflight),
	}
	if e.resolver != "" {
		if _, _, err := net.SplitHostPort(e.resolver); err != nil {
			e.resolver = net.JoinHostPort(e.resolver, "53")
		}
		e.client = &dns.Client{Net: "udp", Timeout: cfg.Timeout}
	}
	if cfg.GeoIPDB != "" {
		geo, err := OpenGeoIP(cfg.GeoIPDB)
		if err != nil {
			logger.Warn("GeoIP disabled", "error", err)
		} else {
			e.geo = geo
		}
	}
	return e
}

// OpenGeoIP opens a MaxMind country or city database.
func OpenGeoIP(path string) (*geoip2.Reader, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("GeoIP database not found at %s", path)
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return reader, nil
}

// Notify looks addr up in the background and logs the result. When too many
// lookups are already in flight the request is dropped.
func (e *Enricher) Notify(addr string) {
	select {
	case e.sem <- struct{}{}:
	default:
		e.logger.Debug("Enrichment skipped, too many lookups in flight", "addr", addr)
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.sem }()
		ctx, cancel := context.WithTimeout(context.Background(), 2*e.timeout)
		defer cancel()
		res := e.Lookup(ctx, addr)
		if res == (Result{}) {
			return
		}
		e.logger.Info("Blocked address details", "addr", addr, "country", res.Country, "ptr", res.PTR)
	}()
}

// Lookup resolves addr, using the cache when fresh. Failures yield empty
// fields.
func (e *Enricher) Lookup(ctx context.Context, addr string) Result {
	now := e.clock.Now()
	e.mu.RLock()
	if c, ok := e.cache[addr]; ok && now.Sub(c.ts) < defaultCacheTTL {
		e.mu.RUnlock()
		return c.res
	}
	e.mu.RUnlock()

	var res Result
	ip := net.ParseIP(addr)
	if ip == nil {
		return res
	}
	if e.geo != nil {
		if rec, err := e.geo.Country(ip); err == nil {
			res.Country = rec.Country.IsoCode
		} else {
			e.logger.Debug("GeoIP lookup failed", "addr", addr, "error", err)
		}
	}
	if e.client != nil {
		ptr, err := e.reverse(ctx, ip)
		if err != nil {
			e.logger.Debug("PTR lookup failed", "addr", addr, "error", err)
		}
		res.PTR = ptr
	}

	e.mu.Lock()
	e.cache[addr] = cached{res: res, ts: now}
	e.pruneLocked(now)
	e.mu.Unlock()
	return res
}

// pruneLocked drops stale entries, at most once per cache TTL.
func (e *Enricher) pruneLocked(now time.Time) {
	if now.Sub(e.lastPrune) < defaultCacheTTL {
		return
	}
	for addr, c := range e.cache {
		if now.Sub(c.ts) >= defaultCacheTTL {
			delete(e.cache, addr)
		}
	}
	e.lastPrune = now
}

func (e *Enricher) reverse(ctx context.Context, ip net.IP) (string, error) {
	name, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", err
	}
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypePTR)
	m.RecursionDesired = true

	r, _, err := e.client.ExchangeContext(ctx, m, e.resolver)
	if err != nil {
		return "", err
	}
	if r.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("PTR %s: %s", name, dns.RcodeToString[r.Rcode])
	}
	for _, rr := range r.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}

// Wait blocks until in-flight lookups finish.
func (e *Enricher) Wait() {
	e.wg.Wait()
}

// Close waits for lookups and releases the GeoIP database.
func (e *Enricher) Close() error {
	e.wg.Wait()
	if e.geo != nil {
		return e.geo.Close()
	}
	return nil
}
