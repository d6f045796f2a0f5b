package firewall

import (
	"context"
	"fmt"
	"time"

	"grimm.is/blockd/internal/clock"
)

const defaultNFTPath = "nft"

// NFT drives the packet filter through the nft command line tool.
type NFT struct {
	table   Table
	path    string
	runner  CommandRunner
	clock   clock.Clock
	timeout time.Duration
}

// NewNFT returns an nft CLI adapter for table. An empty path means "nft"
// resolved through PATH.
func NewNFT(table Table, path string) *NFT {
	if path == "" {
		path = defaultNFTPath
	}
	return &NFT{
		table:   table,
		path:    path,
		runner:  DefaultCommandRunner,
		clock:   clock.Real,
		timeout: DefaultCommandTimeout,
	}
}

// SetRunner sets the command runner (for testing).
func (n *NFT) SetRunner(r CommandRunner) {
	n.runner = r
}

// SetClock sets the clock used to stamp listed addresses.
func (n *NFT) SetClock(c clock.Clock) {
	n.clock = clock.Or(c)
}

// SetTimeout bounds each nft invocation. Zero or less restores the default.
func (n *NFT) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultCommandTimeout
	}
	n.timeout = d
}

func (n *NFT) EnsureTable() error {
	if err := n.run("add", "table", n.table.Family, n.table.Name); err != nil {
		return err
	}
	return n.run("add", "chain", n.table.Family, n.table.Name, n.table.Chain, n.table.chainSpec())
}

func (n *NFT) ListBlocked() (map[string]time.Time, error) {
	out, err := n.output("list", "chain", n.table.Family, n.table.Name, n.table.Chain)
	if err != nil {
		return nil, err
	}
	now := n.clock.Now()
	blocked := make(map[string]time.Time)
	for _, addr := range parseBlocked(string(out)) {
		blocked[addr] = now
	}
	return blocked, nil
}

func (n *NFT) ListHandles() (map[string]string, error) {
	out, err := n.output("--handle", "--numeric", "list", "chain", n.table.Family, n.table.Name, n.table.Chain)
	if err != nil {
		return nil, err
	}
	return parseHandles(string(out)), nil
}

// AddRule passes addr through verbatim; nft rejects anything it cannot parse.
func (n *NFT) AddRule(addr string) error {
	return n.run("add", "rule", n.table.Family, n.table.Name, n.table.Chain, "ip", "saddr", addr, "drop")
}

func (n *NFT) RemoveRule(handle string) error {
	if handle == "" {
		return nil
	}
	return n.run("delete", "rule", n.table.Family, n.table.Name, n.table.Chain, "handle", handle)
}

func (n *NFT) run(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.runner.Run(ctx, n.path, args...); err != nil {
		return fmt.Errorf("%w: nft %s: %v", ErrCommand, args[0], err)
	}
	return nil
}

func (n *NFT) output(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	out, err := n.runner.Output(ctx, n.path, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: nft list chain %s: %v", ErrCommand, n.table, err)
	}
	return out, nil
}
