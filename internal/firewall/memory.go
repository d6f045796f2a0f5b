package firewall

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"grimm.is/blockd/internal/clock"
)

// Memory is an in-process Adapter. It mirrors the nft chain semantics that
// matter to blockd: duplicate rules are allowed, handles are unique and
// monotonically assigned, and deleting an unknown handle fails.
type Memory struct {
	mu         sync.Mutex
	clock      clock.Clock
	ensured    bool
	rules      []Rule
	nextHandle uint64

	// Injected failures, returned verbatim (wrapped in ErrCommand).
	EnsureErr error
	ListErr   error
	AddErr    error
	RemoveErr error

	calls map[string]int
}

// Rule is one installed drop rule.
type Rule struct {
	Addr   string
	Handle string
}

// NewMemory returns an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{
		clock:      clock.Real,
		nextHandle: 1,
		calls:      make(map[string]int),
	}
}

// SetClock sets the clock used to stamp listed addresses.
func (m *Memory) SetClock(c clock.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock.Or(c)
}

// Seed installs rules directly, as if a previous process had added them.
func (m *Memory) Seed(addrs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range addrs {
		m.appendLocked(a)
	}
}

// Rules returns a copy of the installed rules in chain order.
func (m *Memory) Rules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Calls reports how many times the named operation was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Ensured reports whether EnsureTable has succeeded.
func (m *Memory) Ensured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensured
}

func (m *Memory) EnsureTable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["EnsureTable"]++
	if m.EnsureErr != nil {
		return fmt.Errorf("%w: %v", ErrCommand, m.EnsureErr)
	}
	m.ensured = true
	return nil
}

func (m *Memory) ListBlocked() (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListBlocked"]++
	if m.ListErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommand, m.ListErr)
	}
	now := m.clock.Now()
	out := make(map[string]time.Time, len(m.rules))
	for _, r := range m.rules {
		out[r.Addr] = now
	}
	return out, nil
}

func (m *Memory) ListHandles() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListHandles"]++
	if m.ListErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommand, m.ListErr)
	}
	out := make(map[string]string, len(m.rules))
	for _, r := range m.rules {
		out[r.Addr] = r.Handle
	}
	return out, nil
}

func (m *Memory) AddRule(addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["AddRule"]++
	if m.AddErr != nil {
		return fmt.Errorf("%w: %v", ErrCommand, m.AddErr)
	}
	m.appendLocked(addr)
	return nil
}

func (m *Memory) RemoveRule(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["RemoveRule"]++
	if handle == "" {
		return nil
	}
	if m.RemoveErr != nil {
		return fmt.Errorf("%w: %v", ErrCommand, m.RemoveErr)
	}
	for i, r := range m.rules {
		if r.Handle == handle {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: no rule with handle %s", ErrCommand, handle)
}

func (m *Memory) appendLocked(addr string) {
	m.rules = append(m.rules, Rule{Addr: addr, Handle: strconv.FormatUint(m.nextHandle, 10)})
	m.nextHandle++
}
