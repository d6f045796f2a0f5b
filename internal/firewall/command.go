package firewall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds one nft invocation.
const DefaultCommandTimeout = 10 * time.Second

// CommandRunner executes external programs. The nft backend goes through it
// so tests can script the tool's output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec. A process still running when ctx
// ends is killed.
type ExecRunner struct{}

// DefaultCommandRunner is the runner new NFT adapters start with.
var DefaultCommandRunner CommandRunner = ExecRunner{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return commandError(ctx, name, err, out)
	}
	return nil
}

// Output returns stdout. Stderr is folded into the error on failure.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, commandError(ctx, name, err, stderr.Bytes())
	}
	return out, nil
}

func commandError(ctx context.Context, name string, err error, detail []byte) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out: %w", name, ctxErr)
	}
	if msg := strings.TrimSpace(string(detail)); msg != "" {
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return fmt.Errorf("%s: %w", name, err)
}
