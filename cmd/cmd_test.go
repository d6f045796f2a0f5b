package cmd

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/blockd/internal/audit"
	"grimm.is/blockd/internal/config"
	"grimm.is/blockd/internal/firewall"
	"grimm.is/blockd/internal/logging"
)

func TestLoadConfig_MissingDefaultFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blockd.hcl")

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = LoadConfig(path, true)
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte("firewall {\n"), 0644))

	_, err := LoadConfig(path, false)
	assert.ErrorContains(t, err, "configuration invalid")
}

func TestOverrides_Apply(t *testing.T) {
	cfg := config.Default()
	err := Overrides{
		Listen:    "127.0.0.1:5555",
		TTL:       "10m",
		BatchSize: 5,
		Backend:   "memory",
		RenewAdds: "false",
	}.Apply(cfg)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5555", cfg.Listen)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, "memory", cfg.Firewall.Backend)
	assert.False(t, cfg.RenewAdds())

	assert.Error(t, Overrides{RenewAdds: "maybe"}.Apply(config.Default()))
	assert.Error(t, Overrides{BatchSize: -3}.Apply(config.Default()))
}

func TestRunConfigInit(t *testing.T) {
	t.Setenv("BLOCKD_STATE_DIR", "/srv/blockd")
	path := filepath.Join(t.TempDir(), "etc", "blockd.hcl")
	var out bytes.Buffer

	require.NoError(t, RunConfigInit(path, false, &out))
	assert.Contains(t, out.String(), path)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	want := config.Default()
	want.Audit.Path = "/srv/blockd/audit.db"
	assert.Equal(t, want, cfg)

	assert.Error(t, RunConfigInit(path, false, &out))
	assert.NoError(t, RunConfigInit(path, true, &out))
}

func TestRunCheck(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Default()
	cfg.Metrics.Enabled = true

	require.NoError(t, RunCheck(cfg, &out))
	s := out.String()
	assert.Contains(t, s, "Configuration valid!")
	assert.Contains(t, s, "bridge filter forward")
	assert.Contains(t, s, "/metrics")

	cfg.BatchSize = 0
	assert.Error(t, RunCheck(cfg, &out))
}

func TestRunList(t *testing.T) {
	fw := firewall.NewMemory()
	fw.Seed("10.0.0.2", "10.0.0.1", "10.0.0.2")
	var out bytes.Buffer

	require.NoError(t, RunList(config.Default(), fw, &out))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Regexp(t, `^10\.0\.0\.1\s+2$`, string(lines[1]))
	assert.Regexp(t, `^10\.0\.0\.2\s+3$`, string(lines[2]))
	assert.Contains(t, string(lines[3]), "2 blocked")
}

func TestRunSend(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	var out bytes.Buffer
	require.NoError(t, RunSend(pc.LocalAddr().String(), []string{"10.0.0.5", "10.0.0.6"}, &out))

	buf := make([]byte, 64)
	var got []string
	for i := 0; i < 2; i++ {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		got = append(got, string(buf[:n]))
	}
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, got)

	assert.Error(t, RunSend(pc.LocalAddr().String(), nil, &out))
}

func TestRunHistory(t *testing.T) {
	cfg := config.Default()
	var buf bytes.Buffer
	assert.Error(t, RunHistory(cfg, HistoryOptions{}, &buf), "disabled without a path")

	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	store, err := audit.NewStore(cfg.Audit.Path, 0, nil)
	require.NoError(t, err)
	require.NoError(t, store.Write(audit.Event{Action: audit.ActionBlock, Addr: "10.0.0.1", Source: "192.0.2.1"}))
	require.NoError(t, store.Write(audit.Event{Action: audit.ActionUnblock, Addr: "10.0.0.1", Details: map[string]any{"handle": "4"}}))
	require.NoError(t, store.Write(audit.Event{Action: audit.ActionBlock, Addr: "10.0.0.2"}))
	require.NoError(t, store.Close())

	buf.Reset()
	require.NoError(t, RunHistory(cfg, HistoryOptions{Addr: "10.0.0.1"}, &buf))
	out := buf.String()
	assert.Contains(t, out, "192.0.2.1")
	assert.Contains(t, out, "handle=4")
	assert.NotContains(t, out, "10.0.0.2")
	assert.Contains(t, out, "2 events")

	buf.Reset()
	require.NoError(t, RunHistory(cfg, HistoryOptions{Action: audit.ActionBlock, Since: time.Hour, Limit: 1}, &buf))
	assert.Contains(t, buf.String(), "1 events")
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "debug"
	logger, closer, err := NewLogger(cfg)
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, logging.LevelDebug, logger.Level())

	cfg.Log.Level = "loud"
	_, _, err = NewLogger(cfg)
	assert.Error(t, err)
}
