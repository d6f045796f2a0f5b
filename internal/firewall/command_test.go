package firewall

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Output(t *testing.T) {
	requireShell(t)
	r := ExecRunner{}

	out, err := r.Output(context.Background(), "sh", "-c", "echo ip saddr 10.0.0.1 drop")
	require.NoError(t, err)
	assert.Equal(t, "ip saddr 10.0.0.1 drop\n", string(out))

	_, err = r.Output(context.Background(), "sh", "-c", "echo 'No such file or directory' >&2; exit 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such file or directory")
}

func TestExecRunner_Run(t *testing.T) {
	requireShell(t)
	r := ExecRunner{}

	require.NoError(t, r.Run(context.Background(), "sh", "-c", "exit 0"))

	err := r.Run(context.Background(), "sh", "-c", "echo 'Error: Could not process rule' ; exit 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not process rule")
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ExecRunner{}.Run(ctx, "sh", "-c", "exec sleep 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

type deadlineRunner struct {
	left time.Duration
}

func (d *deadlineRunner) Run(ctx context.Context, _ string, _ ...string) error {
	if dl, ok := ctx.Deadline(); ok {
		d.left = time.Until(dl)
	}
	return nil
}

func (d *deadlineRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, d.Run(ctx, name, args...)
}

func TestNFT_CommandsCarryTimeout(t *testing.T) {
	r := &deadlineRunner{}
	n := NewNFT(DefaultTable(), "")
	n.SetRunner(r)

	require.NoError(t, n.AddRule("10.0.0.1"))
	assert.InDelta(t, DefaultCommandTimeout.Seconds(), r.left.Seconds(), 1)

	n.SetTimeout(2 * time.Second)
	_, err := n.ListHandles()
	require.NoError(t, err)
	assert.InDelta(t, 2, r.left.Seconds(), 1)

	n.SetTimeout(0)
	require.NoError(t, n.RemoveRule("3"))
	assert.InDelta(t, DefaultCommandTimeout.Seconds(), r.left.Seconds(), 1)
}
