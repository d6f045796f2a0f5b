//go:build linux

package firewall

import (
	"sync"

	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
)

// MockNFTablesConn is a mock implementation of NFTablesConn for testing.
// Added rules are kept in memory with increasing handles and are visible
// immediately; Flush batching is not modelled.
type MockNFTablesConn struct {
	mock.Mock
	mu sync.Mutex

	tables     map[string]*nftables.Table
	chains     map[string]*nftables.Chain
	rules      map[string][]*nftables.Rule
	nextHandle uint64
}

// NewMockNFTablesConn creates a new mock nftables connection.
func NewMockNFTablesConn() *MockNFTablesConn {
	return &MockNFTablesConn{
		tables:     make(map[string]*nftables.Table),
		chains:     make(map[string]*nftables.Chain),
		rules:      make(map[string][]*nftables.Rule),
		nextHandle: 1,
	}
}

func (m *MockNFTablesConn) AddTable(t *nftables.Table) *nftables.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(t)
	m.tables[t.Name] = t
	return t
}

func (m *MockNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	m.chains[c.Table.Name+"/"+c.Name] = c
	return c
}

func (m *MockNFTablesConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(r)
	key := r.Table.Name + "/" + r.Chain.Name
	r.Handle = m.nextHandle
	m.nextHandle++
	m.rules[key] = append(m.rules[key], r)
	return r
}

func (m *MockNFTablesConn) DelRule(r *nftables.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(r)
	key := r.Table.Name + "/" + r.Chain.Name
	rules := m.rules[key]
	for i, existing := range rules {
		if existing.Handle == r.Handle {
			m.rules[key] = append(rules[:i], rules[i+1:]...)
			break
		}
	}
	return args.Error(0)
}

func (m *MockNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(t, c)
	if args.Get(0) != nil {
		return args.Get(0).([]*nftables.Rule), args.Error(1)
	}
	return m.rules[t.Name+"/"+c.Name], args.Error(1)
}

func (m *MockNFTablesConn) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called()
	return args.Error(0)
}

// HasChain reports whether AddChain was called for table/chain.
func (m *MockNFTablesConn) HasChain(table, chain string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.chains[table+"/"+chain]
	return ok
}
