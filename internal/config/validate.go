package config

import (
	"fmt"
	"strings"

	"grimm.is/blockd/internal/firewall"
	"grimm.is/blockd/internal/logging"
	"grimm.is/blockd/internal/validation"
)

var firewallBackends = []string{firewall.BackendNFT, firewall.BackendNative, firewall.BackendMemory}

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalid.
func (e ValidationErrors) Unwrap() error { return ErrInvalid }

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks a defaulted Config. It returns ValidationErrors (which
// matches ErrInvalid) or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := checkSchemaVersion(c.SchemaVersion); err != nil {
		add("schema_version", "%v", err)
	}

	if err := validation.ValidateHostPort(c.Listen, true); err != nil {
		add("listen", "%v", err)
	}
	if c.ReadBuffer < 1 {
		add("read_buffer", "must be at least 1, got %d", c.ReadBuffer)
	}
	if c.SocketBuffer < 0 {
		add("socket_buffer", "must not be negative")
	}
	if c.BatchSize < 1 {
		add("batch_size", "must be at least 1, got %d", c.BatchSize)
	}

	if d, err := ParseDuration(c.TTL); err != nil {
		add("ttl", "%v", err)
	} else if d <= 0 {
		add("ttl", "must be positive")
	}
	if d, err := ParseDuration(c.SweepInterval); err != nil {
		add("sweep_interval", "%v", err)
	} else if d <= 0 {
		add("sweep_interval", "must be positive")
	}

	if fw := c.Firewall; fw != nil {
		if err := validation.ValidateAllowlist(fw.Backend, firewallBackends); err != nil {
			add("firewall.backend", "%v", err)
		}
		if err := c.FirewallTable().Validate(); err != nil {
			add("firewall", "%v", err)
		}
		if d, err := ParseDuration(fw.Timeout); err != nil || d <= 0 {
			add("firewall.timeout", "must be a positive duration")
		}
	}

	if c.Log != nil {
		if _, err := logging.ParseLevel(c.Log.Level); err != nil {
			add("log.level", "%v", err)
		}
	}

	if s := c.Syslog; s != nil && s.Enabled {
		if s.Host == "" {
			add("syslog.host", "required when syslog is enabled")
		}
		if err := validation.ValidatePortNumber(s.Port); err != nil {
			add("syslog.port", "%v", err)
		}
		if err := validation.ValidateAllowlist(s.Protocol, []string{"udp", "tcp"}); err != nil {
			add("syslog.protocol", "%v", err)
		}
	}

	if m := c.Metrics; m != nil && m.Enabled {
		if err := validation.ValidateHostPort(m.Listen, true); err != nil {
			add("metrics.listen", "%v", err)
		}
		if d, err := ParseDuration(m.SampleInterval); err != nil || d <= 0 {
			add("metrics.sample_interval", "must be a positive duration")
		}
	}

	if e := c.Enrich; e != nil {
		if d, err := ParseDuration(e.Timeout); err != nil || d <= 0 {
			add("enrich.timeout", "must be a positive duration")
		}
	}

	if r := c.RateLimit; r != nil {
		if r.PerSource < 0 {
			add("rate_limit.per_source", "must not be negative")
		}
		if d, err := ParseDuration(r.Interval); err != nil || d <= 0 {
			add("rate_limit.interval", "must be a positive duration")
		}
	}

	if a := c.Audit; a != nil {
		if d, err := ParseDuration(a.Retention); err != nil || d < 0 {
			add("audit.retention", "must be a non-negative duration")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// FirewallTable returns the firewall location described by the config.
func (c *Config) FirewallTable() firewall.Table {
	fw := c.Firewall
	if fw == nil {
		return firewall.DefaultTable()
	}
	return firewall.Table{
		Family:   fw.Family,
		Name:     fw.Table,
		Chain:    fw.Chain,
		Hook:     fw.Hook,
		Priority: fw.Priority,
	}
}
