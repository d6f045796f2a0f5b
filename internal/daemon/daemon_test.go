package daemon

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/blockd/internal/audit"
	"grimm.is/blockd/internal/clock"
	"grimm.is/blockd/internal/config"
	"grimm.is/blockd/internal/firewall"
	"grimm.is/blockd/internal/logging"
	"grimm.is/blockd/internal/metrics"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Firewall.Backend = firewall.BackendMemory
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config, fw *firewall.Memory, clk clock.Clock) *Daemon {
	t.Helper()
	d, err := New(Options{
		Config:  cfg,
		Logger:  logging.Discard(),
		Adapter: fw,
		Clock:   clk,
		Metrics: metrics.New(),
	})
	require.NoError(t, err)
	return d
}

func TestBootstrap_SeedsFromFirewall(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMockClock(now)
	fw := firewall.NewMemory()
	fw.SetClock(clk)
	fw.Seed("10.0.0.1", "10.0.0.2", "10.0.0.1")

	d := newTestDaemon(t, testConfig(), fw, clk)
	require.NoError(t, d.Bootstrap())

	assert.True(t, fw.Ensured())
	assert.Equal(t, 2, d.Cache().Len())
	got, ok := d.Cache().Get("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, now, got)
}

func TestBootstrap_EnsureFailureIsFatal(t *testing.T) {
	fw := firewall.NewMemory()
	fw.EnsureErr = errors.New("operation not permitted")

	d := newTestDaemon(t, testConfig(), fw, nil)
	err := d.Bootstrap()
	require.Error(t, err)
	assert.ErrorIs(t, err, firewall.ErrCommand)
	assert.Equal(t, 0, fw.Calls("ListBlocked"))

	// Run must not start any worker either.
	err = d.Run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, d.ingest.Addr())
}

func TestBootstrap_ListFailureStartsEmpty(t *testing.T) {
	fw := firewall.NewMemory()
	fw.Seed("10.0.0.1")
	fw.ListErr = errors.New("nft: command not found")

	d := newTestDaemon(t, testConfig(), fw, nil)
	require.NoError(t, d.Bootstrap())
	assert.Equal(t, 0, d.Cache().Len())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.TTL = "never"
	_, err = New(Options{Config: cfg, Logger: logging.Discard()})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_BuildsAdapterFromConfig(t *testing.T) {
	d, err := New(Options{Config: testConfig(), Logger: logging.Discard(), Metrics: metrics.New()})
	require.NoError(t, err)
	assert.IsType(t, &firewall.Memory{}, d.fw)
}

func TestRun_BindFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Listen = "256.0.0.1:1234"
	d := newTestDaemon(t, cfg, firewall.NewMemory(), nil)

	err := d.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = "200ms"
	cfg.SweepInterval = "10ms"
	fw := firewall.NewMemory()
	fw.Seed("10.9.9.9")
	d := newTestDaemon(t, cfg, fw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.ingest.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	conn, err := net.Dial("udp", d.ingest.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("10.0.0.5"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := d.Cache().Get("10.0.0.5")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Both the seeded and the ingested block expire and their rules go.
	require.Eventually(t, func() bool {
		return d.Cache().Len() == 0 && len(fw.Rules()) == 0
	}, 3*time.Second, 10*time.Millisecond)

	st := d.Status()
	assert.Equal(t, uint64(1), st.Received)
	assert.Equal(t, uint64(2), st.Expired)
	assert.NotZero(t, st.Sweeps)
	require.Len(t, st.Services, 2)
	assert.True(t, st.Services[0].Running)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRun_AuditHistory(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = "100ms"
	cfg.SweepInterval = "10ms"
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	cfg.RateLimit.PerSource = 100
	fw := firewall.NewMemory()
	fw.Seed("10.9.9.9")
	d := newTestDaemon(t, cfg, fw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.ingest.Addr() != nil }, 2*time.Second, 5*time.Millisecond)
	conn, err := net.Dial("udp", d.ingest.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("10.0.0.5"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return d.Status().Expired == 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	store, err := audit.NewStore(cfg.Audit.Path, 0, nil)
	require.NoError(t, err)
	defer store.Close()

	blocks, err := store.Query(audit.Filter{Action: audit.ActionBlock})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "10.0.0.5", blocks[0].Addr)
	assert.Equal(t, "127.0.0.1", blocks[0].Source)

	unblocks, err := store.Query(audit.Filter{Action: audit.ActionUnblock})
	require.NoError(t, err)
	assert.Len(t, unblocks, 2)
}
