// Package blockcache holds the set of addresses blockd intends to keep
// blocked, each with the time it was last requested.
//
// The cache is the intended state; the firewall chain is the actual state.
// One mutex guards every access. Plain operations never do I/O while holding
// it; Locked hands the held lock to a caller that must (the expiry sweeper).
package blockcache

import (
	"sort"
	"sync"
	"time"
)

// Entry is one cached block.
type Entry struct {
	Addr     string
	LastSeen time.Time
}

// Cache maps address to last-seen time.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]time.Time)}
}

// NewFrom returns a cache seeded with entries (copied).
func NewFrom(entries map[string]time.Time) *Cache {
	c := New()
	c.Seed(entries)
	return c
}

// Seed inserts entries, overwriting any existing timestamps.
func (c *Cache) Seed(entries map[string]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, t := range entries {
		c.entries[addr] = t
	}
}

// Get returns the last-seen time for addr.
func (c *Cache) Get(addr string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[addr]
	return t, ok
}

// InsertOrRenew records addr as seen at t and reports whether it was
// already present.
func (c *Cache) InsertOrRenew(addr string, t time.Time) (renewed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, renewed = c.entries[addr]
	c.entries[addr] = t
	return renewed
}

// RenewIfFresh refreshes addr to t only if it is cached and its age at t
// does not exceed ttl. It reports whether the entry was refreshed.
func (c *Cache) RenewIfFresh(addr string, t time.Time, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.entries[addr]
	if !ok || t.Sub(last) > ttl {
		return false
	}
	c.entries[addr] = t
	return true
}

// RemoveAndReturn deletes addr and returns its last-seen time, or the zero
// time if it was absent.
func (c *Cache) RemoveAndReturn(addr string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return removeLocked(c.entries, addr)
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cache sorted by address.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for addr, t := range c.entries {
		out = append(out, Entry{Addr: addr, LastSeen: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Locked runs fn with the cache lock held for its whole duration. fn may
// perform blocking I/O; every other cache operation waits until it returns.
func (c *Cache) Locked(fn func(tx *Tx)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := &Tx{entries: c.entries}
	defer tx.close()
	fn(tx)
}

// Tx is a view of the cache valid only inside Locked. Using it after fn
// returns panics.
type Tx struct {
	entries map[string]time.Time
}

func (tx *Tx) close() { tx.entries = nil }

func (tx *Tx) live() map[string]time.Time {
	if tx.entries == nil {
		panic("blockcache: Tx used outside Locked")
	}
	return tx.entries
}

// Expired returns addresses whose age at now is strictly greater than ttl,
// oldest first. Entries stamped after now are treated as fresh.
func (tx *Tx) Expired(now time.Time, ttl time.Duration) []string {
	var expired []Entry
	for addr, t := range tx.live() {
		age := now.Sub(t)
		if age <= 0 || age <= ttl {
			continue
		}
		expired = append(expired, Entry{Addr: addr, LastSeen: t})
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].LastSeen.Equal(expired[j].LastSeen) {
			return expired[i].Addr < expired[j].Addr
		}
		return expired[i].LastSeen.Before(expired[j].LastSeen)
	})
	out := make([]string, len(expired))
	for i, e := range expired {
		out[i] = e.Addr
	}
	return out
}

// Remove deletes addr and returns its last-seen time (zero if absent).
func (tx *Tx) Remove(addr string) time.Time {
	return removeLocked(tx.live(), addr)
}

// Len returns the number of cached addresses.
func (tx *Tx) Len() int {
	return len(tx.live())
}

func removeLocked(m map[string]time.Time, addr string) time.Time {
	t := m[addr]
	delete(m, addr)
	return t
}
