package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CurrentSchemaVersion is the latest config schema version.
const CurrentSchemaVersion = "1.0"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level blockd configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// Ingest
	Listen       string `hcl:"listen,optional" json:"listen,omitempty"`
	ReadBuffer   int    `hcl:"read_buffer,optional" json:"read_buffer,omitempty"`
	SocketBuffer int    `hcl:"socket_buffer,optional" json:"socket_buffer,omitempty"`

	// Expiry
	TTL           string `hcl:"ttl,optional" json:"ttl,omitempty"`
	SweepInterval string `hcl:"sweep_interval,optional" json:"sweep_interval,omitempty"`
	BatchSize     int    `hcl:"batch_size,optional" json:"batch_size,omitempty"`

	// RenewAddsRule installs a fresh rule on every renewal. Nil means true.
	RenewAddsRule *bool `hcl:"renew_adds_rule,optional" json:"renew_adds_rule,omitempty"`

	Firewall *FirewallConfig `hcl:"firewall,block" json:"firewall,omitempty"`
	Log      *LogConfig      `hcl:"log,block" json:"log,omitempty"`
	Syslog   *SyslogConfig   `hcl:"syslog,block" json:"syslog,omitempty"`
	Metrics  *MetricsConfig  `hcl:"metrics,block" json:"metrics,omitempty"`
	Enrich   *EnrichConfig   `hcl:"enrich,block" json:"enrich,omitempty"`

	RateLimit *RateLimitConfig `hcl:"rate_limit,block" json:"rate_limit,omitempty"`
	Audit     *AuditConfig     `hcl:"audit,block" json:"audit,omitempty"`
}

// FirewallConfig selects the backend and the chain blockd owns.
type FirewallConfig struct {
	Backend  string `hcl:"backend,optional" json:"backend,omitempty"`
	Family   string `hcl:"family,optional" json:"family,omitempty"`
	Table    string `hcl:"table,optional" json:"table,omitempty"`
	Chain    string `hcl:"chain,optional" json:"chain,omitempty"`
	Hook     string `hcl:"hook,optional" json:"hook,omitempty"`
	Priority int    `hcl:"priority,optional" json:"priority,omitempty"`
	NFTPath  string `hcl:"nft_path,optional" json:"nft_path,omitempty"`
	Timeout  string `hcl:"timeout,optional" json:"timeout,omitempty"`
}

// LogConfig controls local logging.
type LogConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// SyslogConfig tees logs to a remote syslog server.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
	Host     string `hcl:"host,optional" json:"host,omitempty"`
	Port     int    `hcl:"port,optional" json:"port,omitempty"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"`
	Tag      string `hcl:"tag,optional" json:"tag,omitempty"`
}

// MetricsConfig exposes Prometheus metrics over HTTP.
type MetricsConfig struct {
	Enabled        bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
	Listen         string `hcl:"listen,optional" json:"listen,omitempty"`
	SampleInterval string `hcl:"sample_interval,optional" json:"sample_interval,omitempty"`
}

// EnrichConfig enables GeoIP and reverse DNS annotation of new blocks.
type EnrichConfig struct {
	GeoIPDB  string `hcl:"geoip_db,optional" json:"geoip_db,omitempty"`
	Resolver string `hcl:"resolver,optional" json:"resolver,omitempty"`
	Timeout  string `hcl:"timeout,optional" json:"timeout,omitempty"`
}

// RateLimitConfig caps datagrams accepted from one source address per
// interval. PerSource 0 disables the limit.
type RateLimitConfig struct {
	PerSource int    `hcl:"per_source,optional" json:"per_source,omitempty"`
	Interval  string `hcl:"interval,optional" json:"interval,omitempty"`
}

// AuditConfig enables the SQLite history of block decisions. An empty Path
// disables it. Retention "0" keeps events forever.
type AuditConfig struct {
	Path      string `hcl:"path,optional" json:"path,omitempty"`
	Retention string `hcl:"retention,optional" json:"retention,omitempty"`
}

// Default returns a fully populated configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.Listen == "" {
		c.Listen = "0.0.0.0:1234"
	}
	if c.ReadBuffer == 0 {
		c.ReadBuffer = 1024
	}
	if c.TTL == "" {
		c.TTL = "5m"
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1s"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.RenewAddsRule == nil {
		v := true
		c.RenewAddsRule = &v
	}

	if c.Firewall == nil {
		c.Firewall = &FirewallConfig{}
	}
	fw := c.Firewall
	if fw.Backend == "" {
		fw.Backend = "nft"
	}
	if fw.Family == "" {
		fw.Family = "bridge"
	}
	if fw.Table == "" {
		fw.Table = "filter"
	}
	if fw.Chain == "" {
		fw.Chain = "forward"
	}
	if fw.Hook == "" {
		fw.Hook = "forward"
	}
	if fw.NFTPath == "" {
		fw.NFTPath = "nft"
	}
	if fw.Timeout == "" {
		fw.Timeout = "10s"
	}

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Syslog == nil {
		c.Syslog = &SyslogConfig{}
	}
	if c.Syslog.Port == 0 {
		c.Syslog.Port = 514
	}
	if c.Syslog.Protocol == "" {
		c.Syslog.Protocol = "udp"
	}
	if c.Syslog.Tag == "" {
		c.Syslog.Tag = "blockd"
	}

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9465"
	}
	if c.Metrics.SampleInterval == "" {
		c.Metrics.SampleInterval = "30s"
	}

	if c.Enrich == nil {
		c.Enrich = &EnrichConfig{}
	}
	if c.Enrich.Timeout == "" {
		c.Enrich.Timeout = "1s"
	}

	if c.RateLimit == nil {
		c.RateLimit = &RateLimitConfig{}
	}
	if c.RateLimit.Interval == "" {
		c.RateLimit.Interval = "1s"
	}

	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.Retention == "" {
		c.Audit.Retention = "720h"
	}
}

// RenewAdds reports the effective renew_adds_rule setting.
func (c *Config) RenewAdds() bool {
	return c.RenewAddsRule == nil || *c.RenewAddsRule
}

// Durations holds the parsed duration settings.
type Durations struct {
	TTL            time.Duration
	SweepInterval  time.Duration
	SampleInterval time.Duration
	EnrichTimeout  time.Duration
	RateInterval   time.Duration
	AuditRetention  time.Duration
	FirewallTimeout time.Duration
}

// Durations parses every duration field. Call after ApplyDefaults.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	var err error
	if d.TTL, err = ParseDuration(c.TTL); err != nil {
		return d, fmt.Errorf("ttl: %w", err)
	}
	if d.SweepInterval, err = ParseDuration(c.SweepInterval); err != nil {
		return d, fmt.Errorf("sweep_interval: %w", err)
	}
	if c.Metrics != nil {
		if d.SampleInterval, err = ParseDuration(c.Metrics.SampleInterval); err != nil {
			return d, fmt.Errorf("metrics.sample_interval: %w", err)
		}
	}
	if c.Enrich != nil {
		if d.EnrichTimeout, err = ParseDuration(c.Enrich.Timeout); err != nil {
			return d, fmt.Errorf("enrich.timeout: %w", err)
		}
	}
	if c.RateLimit != nil {
		if d.RateInterval, err = ParseDuration(c.RateLimit.Interval); err != nil {
			return d, fmt.Errorf("rate_limit.interval: %w", err)
		}
	}
	if c.Firewall != nil {
		if d.FirewallTimeout, err = ParseDuration(c.Firewall.Timeout); err != nil {
			return d, fmt.Errorf("firewall.timeout: %w", err)
		}
	}
	if c.Audit != nil {
		if d.AuditRetention, err = ParseDuration(c.Audit.Retention); err != nil {
			return d, fmt.Errorf("audit.retention: %w", err)
		}
	}
	return d, nil
}

// ParseDuration accepts Go duration syntax or a bare integer of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
