package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:1234", cfg.Listen)
	assert.Equal(t, 1024, cfg.ReadBuffer)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.True(t, cfg.RenewAdds())
	assert.Equal(t, "nft", cfg.Firewall.Backend)

	d, err := cfg.Durations()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, d.TTL)
	assert.Equal(t, time.Second, d.SweepInterval)
	assert.Equal(t, time.Second, d.EnrichTimeout)
	assert.Equal(t, time.Second, d.RateInterval)
	assert.Equal(t, 30*24*time.Hour, d.AuditRetention)
	assert.Empty(t, cfg.Audit.Path)
	assert.Zero(t, cfg.RateLimit.PerSource)

	tbl := cfg.FirewallTable()
	assert.Equal(t, "bridge", tbl.Family)
	assert.Equal(t, "filter", tbl.Name)
	assert.Equal(t, "forward", tbl.Chain)
}

func TestLoadHCL(t *testing.T) {
	src := `
listen          = "127.0.0.1:4000"
ttl             = 600
sweep_interval  = "250ms"
batch_size      = 10
renew_adds_rule = false

firewall {
  backend  = "native"
  family   = "inet"
  table    = "blockd"
  chain    = "input"
  hook     = "input"
  priority = -5
}

log {
  level = "debug"
  json  = true
}

metrics {
  enabled = true
  listen  = "127.0.0.1:9999"
}
`
	cfg, err := LoadHCL([]byte(src), "test.hcl")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Listen)
	assert.False(t, cfg.RenewAdds())
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 1024, cfg.ReadBuffer)
	assert.Equal(t, "native", cfg.Firewall.Backend)
	assert.Equal(t, -5, cfg.Firewall.Priority)
	assert.Equal(t, "nft", cfg.Firewall.NFTPath)
	assert.True(t, cfg.Log.JSON)
	assert.True(t, cfg.Metrics.Enabled)

	d, err := cfg.Durations()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d.TTL)
	assert.Equal(t, 250*time.Millisecond, d.SweepInterval)
}

func TestLoadHCL_Empty(t *testing.T) {
	cfg, err := LoadHCL(nil, "empty.hcl")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadHCL_Env(t *testing.T) {
	t.Setenv("BLOCKD_TEST_SYSLOG", "192.0.2.1")
	src := `
syslog {
  enabled = true
  host    = env.BLOCKD_TEST_SYSLOG
}
`
	cfg, err := LoadHCL([]byte(src), "env.hcl")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", cfg.Syslog.Host)
	assert.Equal(t, 514, cfg.Syslog.Port)
}

func TestLoadHCL_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `listen = `},
		{"unknown attribute", `bogus = 1`},
		{"bad ttl", `ttl = "forever"`},
		{"zero batch", `batch_size = -1`},
		{"bad backend", "firewall {\n backend = \"iptables\"\n}"},
		{"bad family", "firewall {\n family = \"arp\"\n}"},
		{"bad level", "log {\n level = \"loud\"\n}"},
		{"syslog without host", "syslog {\n enabled = true\n}"},
		{"syslog bad port", "syslog {\n enabled = true\n host = \"h\"\n port = 70000\n}"},
		{"named listen port", `listen = "127.0.0.1:http"`},
		{"bad version", `schema_version = "2.0"`},
		{"negative rate limit", "rate_limit {\n per_source = -1\n}"},
		{"bad audit retention", "audit {\n retention = \"-1h\"\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tt.src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestValidate_ErrInvalid(t *testing.T) {
	cfg := Default()
	cfg.ReadBuffer = 0
	cfg.TTL = "-1s"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "read_buffer")
	assert.Contains(t, err.Error(), "ttl")
}

func TestLoadJSON(t *testing.T) {
	cfg, err := LoadJSON([]byte(`{"listen": "127.0.0.1:1", "firewall": {"backend": "memory"}}`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Firewall.Backend)
	assert.Equal(t, "bridge", cfg.Firewall.Family)

	_, err = LoadJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestSaveFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.TTL = "15m"
	off := false
	cfg.RenewAddsRule = &off
	cfg.Firewall.Priority = -10
	cfg.Syslog.Enabled = true
	cfg.Syslog.Host = "10.0.0.1"
	cfg.Enrich.Resolver = "127.0.0.1:53"
	cfg.RateLimit.PerSource = 20
	cfg.Audit.Path = "/var/lib/blockd/audit.db"

	for _, name := range []string{"blockd.hcl", "blockd.json"} {
		path := filepath.Join(dir, "sub", name)
		require.NoError(t, SaveFile(cfg, path))

		loaded, err := LoadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, cfg, loaded, name)
	}
}

func TestGenerateHCL_Default(t *testing.T) {
	out := string(GenerateHCL(Default()))
	assert.Regexp(t, `listen\s+= "0.0.0.0:1234"`, out)
	assert.Contains(t, out, "firewall {")
	assert.NotContains(t, out, "syslog")
	assert.NotContains(t, out, "enrich")
	assert.NotContains(t, out, "rate_limit")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("300")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = ParseDuration("1h30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("soon")
	assert.Error(t, err)
}

func TestCheckSchemaVersion(t *testing.T) {
	for _, ok := range []string{"", "1.0", "1.7"} {
		assert.NoError(t, checkSchemaVersion(ok), ok)
	}
	for _, bad := range []string{"1", "2.0", "0.9", "1.x", "a.0", "1.-1"} {
		assert.Error(t, checkSchemaVersion(bad), bad)
	}
}
