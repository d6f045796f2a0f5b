package config

import (
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// GenerateHCL renders cfg as formatted HCL. Nil blocks are omitted; the
// syslog, enrich, rate_limit and audit blocks are written only when they carry
// settings.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	setString(body, "schema_version", cfg.SchemaVersion)
	setString(body, "listen", cfg.Listen)
	setString(body, "ttl", cfg.TTL)
	setString(body, "sweep_interval", cfg.SweepInterval)
	setInt(body, "batch_size", cfg.BatchSize)
	setInt(body, "read_buffer", cfg.ReadBuffer)
	setInt(body, "socket_buffer", cfg.SocketBuffer)
	if cfg.RenewAddsRule != nil {
		body.SetAttributeValue("renew_adds_rule", cty.BoolVal(*cfg.RenewAddsRule))
	}

	if fw := cfg.Firewall; fw != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("firewall", nil).Body()
		setString(b, "backend", fw.Backend)
		setString(b, "family", fw.Family)
		setString(b, "table", fw.Table)
		setString(b, "chain", fw.Chain)
		setString(b, "hook", fw.Hook)
		b.SetAttributeValue("priority", cty.NumberIntVal(int64(fw.Priority)))
		setString(b, "nft_path", fw.NFTPath)
		setString(b, "timeout", fw.Timeout)
	}

	if l := cfg.Log; l != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("log", nil).Body()
		setString(b, "level", l.Level)
		b.SetAttributeValue("json", cty.BoolVal(l.JSON))
	}

	if s := cfg.Syslog; s != nil && (s.Enabled || s.Host != "") {
		body.AppendNewline()
		b := body.AppendNewBlock("syslog", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(s.Enabled))
		setString(b, "host", s.Host)
		setInt(b, "port", s.Port)
		setString(b, "protocol", s.Protocol)
		setString(b, "tag", s.Tag)
	}

	if m := cfg.Metrics; m != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("metrics", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(m.Enabled))
		setString(b, "listen", m.Listen)
		setString(b, "sample_interval", m.SampleInterval)
	}

	if e := cfg.Enrich; e != nil && (e.GeoIPDB != "" || e.Resolver != "") {
		body.AppendNewline()
		b := body.AppendNewBlock("enrich", nil).Body()
		setString(b, "geoip_db", e.GeoIPDB)
		setString(b, "resolver", e.Resolver)
		setString(b, "timeout", e.Timeout)
	}

	if r := cfg.RateLimit; r != nil && r.PerSource > 0 {
		body.AppendNewline()
		b := body.AppendNewBlock("rate_limit", nil).Body()
		setInt(b, "per_source", r.PerSource)
		setString(b, "interval", r.Interval)
	}

	if a := cfg.Audit; a != nil && a.Path != "" {
		body.AppendNewline()
		b := body.AppendNewBlock("audit", nil).Body()
		setString(b, "path", a.Path)
		setString(b, "retention", a.Retention)
	}

	return hclwrite.Format(f.Bytes())
}

func setString(b *hclwrite.Body, name, v string) {
	if v != "" {
		b.SetAttributeValue(name, cty.StringVal(v))
	}
}

func setInt(b *hclwrite.Body, name string, v int) {
	if v != 0 {
		b.SetAttributeValue(name, cty.NumberIntVal(int64(v)))
	}
}
