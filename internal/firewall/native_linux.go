//go:build linux

package firewall

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"grimm.is/blockd/internal/clock"
)

// NFTablesConn abstracts the subset of nftables.Conn used by Native.
type NFTablesConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	DelRule(r *nftables.Rule) error
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

// RealNFTablesConn wraps the actual nftables.Conn.
type RealNFTablesConn struct {
	conn *nftables.Conn
}

// NewRealNFTablesConn creates a new RealNFTablesConn wrapping an nftables.Conn.
func NewRealNFTablesConn(conn *nftables.Conn) *RealNFTablesConn {
	return &RealNFTablesConn{conn: conn}
}

func (r *RealNFTablesConn) AddTable(t *nftables.Table) *nftables.Table { return r.conn.AddTable(t) }
func (r *RealNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain { return r.conn.AddChain(c) }
func (r *RealNFTablesConn) AddRule(rule *nftables.Rule) *nftables.Rule { return r.conn.AddRule(rule) }
func (r *RealNFTablesConn) DelRule(rule *nftables.Rule) error          { return r.conn.DelRule(rule) }
func (r *RealNFTablesConn) Flush() error                               { return r.conn.Flush() }

func (r *RealNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	return r.conn.GetRules(t, c)
}

var familyMap = map[string]nftables.TableFamily{
	"bridge": nftables.TableFamilyBridge,
	"ip":     nftables.TableFamilyIPv4,
	"inet":   nftables.TableFamilyINet,
	"netdev": nftables.TableFamilyNetdev,
}

var hookMap = map[string]*nftables.ChainHook{
	"prerouting":  nftables.ChainHookPrerouting,
	"input":       nftables.ChainHookInput,
	"forward":     nftables.ChainHookForward,
	"output":      nftables.ChainHookOutput,
	"postrouting": nftables.ChainHookPostrouting,
	"ingress":     nftables.ChainHookIngress,
}

// Native manages the blocklist chain over netlink. The conn queues messages
// until Flush sends them as one batch, so mu covers each queue and Flush
// sequence to keep concurrent callers from flushing each other's messages.
type Native struct {
	mu    sync.Mutex
	conn  NFTablesConn
	table *nftables.Table
	chain *nftables.Chain
	clock clock.Clock
}

// NewNative builds a netlink adapter on conn.
func NewNative(conn NFTablesConn, t Table, c clock.Clock) (*Native, error) {
	family, ok := familyMap[t.Family]
	if !ok {
		return nil, fmt.Errorf("unsupported table family: %q", t.Family)
	}
	hook, ok := hookMap[t.Hook]
	if !ok {
		return nil, fmt.Errorf("unsupported hook: %q", t.Hook)
	}
	table := &nftables.Table{Name: t.Name, Family: family}
	return &Native{
		conn:  conn,
		table: table,
		chain: &nftables.Chain{
			Name:     t.Chain,
			Table:    table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  hook,
			Priority: nftables.ChainPriorityRef(nftables.ChainPriority(t.Priority)),
		},
		clock: clock.Or(c),
	}, nil
}

func newNativeDefault(t Table, c clock.Clock) (Adapter, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("%w: netlink: %v", ErrCommand, err)
	}
	return NewNative(NewRealNFTablesConn(conn), t, c)
}

func (n *Native) EnsureTable() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conn.AddTable(n.table)
	n.conn.AddChain(n.chain)
	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("%w: ensure %s %s: %v", ErrCommand, n.table.Name, n.chain.Name, err)
	}
	return nil
}

func (n *Native) ListBlocked() (map[string]time.Time, error) {
	rules, err := n.rules()
	if err != nil {
		return nil, err
	}
	now := n.clock.Now()
	out := make(map[string]time.Time)
	for _, r := range rules {
		if addr, ok := matchSaddrDrop(r); ok {
			out[addr] = now
		}
	}
	return out, nil
}

func (n *Native) ListHandles() (map[string]string, error) {
	rules, err := n.rules()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, r := range rules {
		if addr, ok := matchSaddrDrop(r); ok {
			out[addr] = strconv.FormatUint(r.Handle, 10)
		}
	}
	return out, nil
}

// AddRule installs "ip saddr <addr> drop". Only IPv4 literals are accepted.
func (n *Native) AddRule(addr string) error {
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return fmt.Errorf("%w: %q", ErrUnsupported, addr)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conn.AddRule(&nftables.Rule{
		Table: n.table,
		Chain: n.chain,
		Exprs: saddrDropExprs(ip),
	})
	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("%w: add rule %s: %v", ErrCommand, addr, err)
	}
	return nil
}

func (n *Native) RemoveRule(handle string) error {
	if handle == "" {
		return nil
	}
	h, err := strconv.ParseUint(handle, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad handle %q", ErrCommand, handle)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.DelRule(&nftables.Rule{Table: n.table, Chain: n.chain, Handle: h}); err != nil {
		return fmt.Errorf("%w: delete handle %s: %v", ErrCommand, handle, err)
	}
	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("%w: delete handle %s: %v", ErrCommand, handle, err)
	}
	return nil
}

func (n *Native) rules() ([]*nftables.Rule, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rules, err := n.conn.GetRules(n.table, n.chain)
	if err != nil {
		return nil, fmt.Errorf("%w: list chain %s %s: %v", ErrCommand, n.table.Name, n.chain.Name, err)
	}
	return rules, nil
}

func saddrDropExprs(ip net.IP) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyPROTOCOL, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.BigEndian.PutUint16(unix.ETH_P_IP)},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 12, Len: 4},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ip},
		&expr.Verdict{Kind: expr.VerdictDrop},
	}
}

// matchSaddrDrop recognises an IPv4 source-address equality match that ends
// in a drop verdict. Rules of any other shape are ignored.
func matchSaddrDrop(r *nftables.Rule) (string, bool) {
	var addr net.IP
	for i, e := range r.Exprs {
		p, ok := e.(*expr.Payload)
		if !ok || p.Base != expr.PayloadBaseNetworkHeader || p.Offset != 12 || p.Len != 4 {
			continue
		}
		if i+1 >= len(r.Exprs) {
			return "", false
		}
		c, ok := r.Exprs[i+1].(*expr.Cmp)
		if !ok || c.Op != expr.CmpOpEq || len(c.Data) != 4 {
			return "", false
		}
		addr = net.IP(bytes.Clone(c.Data))
		break
	}
	if addr == nil || len(r.Exprs) == 0 {
		return "", false
	}
	v, ok := r.Exprs[len(r.Exprs)-1].(*expr.Verdict)
	if !ok || v.Kind != expr.VerdictDrop {
		return "", false
	}
	return addr.String(), true
}
