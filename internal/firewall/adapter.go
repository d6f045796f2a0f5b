package firewall

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"grimm.is/blockd/internal/clock"
	"grimm.is/blockd/internal/validation"
)

var (
	// ErrCommand wraps failures reported by the packet filter.
	ErrCommand = errors.New("firewall command failed")
	// ErrUnsupported is returned for addresses a backend cannot express.
	ErrUnsupported = errors.New("unsupported address")
	// ErrUnknownBackend is returned by New for unknown backend names.
	ErrUnknownBackend = errors.New("unknown firewall backend")
)

// Adapter is the command surface blockd uses against the packet filter.
type Adapter interface {
	// EnsureTable idempotently creates the table and hooked chain.
	EnsureTable() error
	// ListBlocked returns one entry per blocked address, stamped with the
	// current time (the engine does not expose install time).
	ListBlocked() (map[string]time.Time, error)
	// ListHandles maps each blocked address to a rule handle. When several
	// rules match one address, the last one listed wins.
	ListHandles() (map[string]string, error)
	// AddRule installs an additional drop rule for addr. It never checks
	// for an existing rule first.
	AddRule(addr string) error
	// RemoveRule deletes the rule with the given handle. An empty handle is
	// a no-op.
	RemoveRule(handle string) error
}

// Backend names accepted by New.
const (
	BackendNFT    = "nft"
	BackendNative = "native"
	BackendMemory = "memory"
)

// Table identifies the nftables location blockd manages.
type Table struct {
	Family   string
	Name     string
	Chain    string
	Hook     string
	Priority int
}

// DefaultTable returns the bridge filter forward chain.
func DefaultTable() Table {
	return Table{
		Family:   "bridge",
		Name:     "filter",
		Chain:    "forward",
		Hook:     "forward",
		Priority: 0,
	}
}

var tableFamilies = []string{"bridge", "ip", "inet", "netdev"}

// Validate rejects names that could smuggle extra nft syntax.
func (t Table) Validate() error {
	if err := validation.ValidateAllowlist(t.Family, tableFamilies); err != nil {
		return fmt.Errorf("invalid table family: %w", err)
	}
	for _, f := range []struct{ field, v string }{{"table", t.Name}, {"chain", t.Chain}, {"hook", t.Hook}} {
		if err := validation.ValidateIdentifier(f.v); err != nil {
			return fmt.Errorf("invalid %s name: %w", f.field, err)
		}
	}
	return nil
}

// chainSpec renders the chain definition passed to "nft add chain".
func (t Table) chainSpec() string {
	return fmt.Sprintf("{ type filter hook %s priority %d; }", t.Hook, t.Priority)
}

func (t Table) String() string {
	return strings.Join([]string{t.Family, t.Name, t.Chain}, " ")
}

// Options configures New.
type Options struct {
	Backend string
	Table   Table
	NFTPath string
	Runner  CommandRunner
	Clock   clock.Clock
	// Timeout bounds each nft invocation; zero means DefaultCommandTimeout.
	Timeout time.Duration
}

// New builds the adapter selected by opts.Backend.
func New(opts Options) (Adapter, error) {
	if opts.Table == (Table{}) {
		opts.Table = DefaultTable()
	}
	if err := opts.Table.Validate(); err != nil {
		return nil, err
	}

	switch opts.Backend {
	case "", BackendNFT:
		a := NewNFT(opts.Table, opts.NFTPath)
		a.SetTimeout(opts.Timeout)
		if opts.Runner != nil {
			a.SetRunner(opts.Runner)
		}
		if opts.Clock != nil {
			a.SetClock(opts.Clock)
		}
		return a, nil
	case BackendNative:
		return newNativeDefault(opts.Table, opts.Clock)
	case BackendMemory:
		m := NewMemory()
		if opts.Clock != nil {
			m.SetClock(opts.Clock)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
