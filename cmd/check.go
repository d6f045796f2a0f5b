package cmd

import (
	"io"

	"grimm.is/blockd/internal/config"
)

// RunCheck validates cfg and prints the effective settings.
func RunCheck(cfg *config.Config, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d, err := cfg.Durations()
	if err != nil {
		return err
	}

	fw := cfg.Firewall
	Printer.Fprintf(out, "Configuration valid!\n")
	Printer.Fprintf(out, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(out, "Listen: udp %s (read buffer %d bytes)\n", cfg.Listen, cfg.ReadBuffer)
	Printer.Fprintf(out, "TTL: %s, sweep every %s, at most %d removals per sweep\n", d.TTL, d.SweepInterval, cfg.BatchSize)
	Printer.Fprintf(out, "Renewal adds rule: %t\n", cfg.RenewAdds())
	Printer.Fprintf(out, "Firewall: %s backend, %s (command timeout %s)\n", fw.Backend, cfg.FirewallTable(), d.FirewallTimeout)
	if r := cfg.RateLimit; r.PerSource > 0 {
		Printer.Fprintf(out, "Rate limit: %d datagrams per source every %s\n", r.PerSource, d.RateInterval)
	}
	if a := cfg.Audit; a.Path != "" {
		Printer.Fprintf(out, "Audit history: %s (retention %s)\n", a.Path, d.AuditRetention)
	}
	if cfg.Metrics.Enabled {
		Printer.Fprintf(out, "Metrics: http://%s/metrics\n", cfg.Metrics.Listen)
	}
	if cfg.Syslog.Enabled {
		Printer.Fprintf(out, "Syslog: %s %s:%d\n", cfg.Syslog.Protocol, cfg.Syslog.Host, cfg.Syslog.Port)
	}
	if e := cfg.Enrich; e.GeoIPDB != "" || e.Resolver != "" {
		Printer.Fprintf(out, "Enrichment: geoip=%q resolver=%q\n", e.GeoIPDB, e.Resolver)
	}
	return nil
}
