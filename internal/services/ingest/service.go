// Package ingest receives block requests over UDP. One datagram carries one
// address as raw text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"grimm.is/blockd/internal/audit"
	"grimm.is/blockd/internal/blockcache"
	"grimm.is/blockd/internal/clock"
	"grimm.is/blockd/internal/firewall"
	"grimm.is/blockd/internal/logging"
	"grimm.is/blockd/internal/metrics"
	"grimm.is/blockd/internal/ratelimit"
	"grimm.is/blockd/internal/services"
)

const (
	DefaultListen     = "0.0.0.0:1234"
	DefaultReadBuffer = 1024
)

// Rejection reasons reported to metrics.
const (
	RejectInvalidUTF8 = "invalid_utf8"
	RejectEmpty       = "empty"
	RejectRateLimited = "rate_limited"
)

// Config controls the listener.
type Config struct {
	Listen string
	// ReadBuffer is the datagram read size; longer payloads are truncated.
	ReadBuffer int
	// SocketBuffer sets SO_RCVBUF when positive.
	SocketBuffer int
	TTL          time.Duration
	// RenewAddsRule installs another rule when a cached, unexpired address
	// is seen again. When false the timestamp is refreshed only.
	RenewAddsRule bool
}

// Service is the ingest listener.
type Service struct {
	cfg     Config
	cache   *blockcache.Cache
	fw      firewall.Adapter
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.Registry
	onNew   func(addr string)
	limiter *ratelimit.Limiter
	audit   audit.Sink

	mu    sync.Mutex
	conn  net.PacketConn
	state services.Tracker

	received atomic.Uint64
	rejected atomic.Uint64
}

// NewService creates an ingest listener that blocks addresses through fw and
// records them in cache.
func NewService(cfg Config, cache *blockcache.Cache, fw firewall.Adapter, logger *logging.Logger) *Service {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = DefaultReadBuffer
	}
	return &Service{
		cfg:     cfg,
		cache:   cache,
		fw:      fw,
		clock:   clock.Real,
		logger:  logger,
		metrics: metrics.New(),
	}
}

// SetClock sets the clock (for testing).
func (s *Service) SetClock(c clock.Clock) { s.clock = clock.Or(c) }

// SetMetrics sets the metrics registry.
func (s *Service) SetMetrics(r *metrics.Registry) { s.metrics = r }

// SetOnNew registers a callback for first-time blocks. It runs on the
// listener goroutine after the cache is updated and must not block.
func (s *Service) SetOnNew(fn func(addr string)) { s.onNew = fn }

// SetLimiter caps datagrams per source host. Nil disables the cap.
func (s *Service) SetLimiter(l *ratelimit.Limiter) { s.limiter = l }

// SetAudit records block and renew decisions to sink.
func (s *Service) SetAudit(sink audit.Sink) { s.audit = sink }

func (s *Service) Name() string { return "ingest" }

// Listen binds the socket. It is separate from Run so bind failures surface
// during startup.
func (s *Service) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	lc := net.ListenConfig{Control: socketControl(s.cfg.SocketBuffer)}
	conn, err := lc.ListenPacket(ctx, "udp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Listen, err)
	}
	s.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run serves datagrams until ctx is done. A socket read error is returned.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	s.logger.Info("Listening", "addr", conn.LocalAddr().String())
	s.state.Started(s.clock.Now())

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, s.cfg.ReadBuffer)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.state.Stopped(nil)
				return nil
			}
			s.state.Stopped(err)
			return fmt.Errorf("ingest read: %w", err)
		}
		s.received.Add(1)
		s.handle(buf[:n], src)
	}
}

// Status reports listener state.
func (s *Service) Status() services.ServiceStatus {
	return s.state.Status(s.Name())
}

// Counts returns datagrams received and rejected.
func (s *Service) Counts() (received, rejected uint64) {
	return s.received.Load(), s.rejected.Load()
}

func (s *Service) handle(payload []byte, src net.Addr) {
	addr, reason := decode(payload)
	if reason == "" && s.limiter != nil && !s.limiter.Allow(srcHost(src)) {
		reason = RejectRateLimited
	}
	if reason != "" {
		s.rejected.Add(1)
		s.metrics.RecordRejected(reason)
		s.logger.Warn("Dropping datagram", "reason", reason, "src", srcString(src), "len", len(payload))
		return
	}
	s.block(addr, srcHost(src))
}

// Block applies one block request: log new or renewed, add the rule, then
// record addr in the cache as seen now. The cache is updated even when the
// rule cannot be added.
func (s *Service) Block(addr string) {
	s.block(addr, "")
}

func (s *Service) block(addr, source string) {
	now := s.clock.Now()

	if !s.cfg.RenewAddsRule && s.cache.RenewIfFresh(addr, now, s.cfg.TTL) {
		s.logger.Info("Renewing block", "addr", addr)
		s.metrics.RecordBlock(true)
		s.record(audit.Event{Time: now, Action: audit.ActionRenew, Addr: addr, Source: source})
		return
	}

	_, cached := s.cache.Get(addr)
	if cached {
		s.logger.Info("Renewing block", "addr", addr)
	} else {
		s.logger.Info("Blocking", "addr", addr)
	}

	var details map[string]any
	if err := s.fw.AddRule(addr); err != nil {
		s.metrics.RecordFirewallError("add")
		s.logger.Error("Failed to add rule", "addr", addr, "error", err)
		details = map[string]any{"error": err.Error()}
	}

	renewed := s.cache.InsertOrRenew(addr, now)
	s.metrics.RecordBlock(renewed)
	s.metrics.SetCacheEntries(s.cache.Len())

	action := audit.ActionBlock
	if renewed {
		action = audit.ActionRenew
	}
	s.record(audit.Event{Time: now, Action: action, Addr: addr, Source: source, Details: details})

	if !renewed && s.onNew != nil {
		s.onNew(addr)
	}
}

func (s *Service) record(evt audit.Event) {
	if s.audit != nil {
		s.audit.Record(evt)
	}
}

// decode validates a payload and returns the address text, or a rejection
// reason.
func decode(payload []byte) (string, string) {
	if !utf8.Valid(payload) {
		return "", RejectInvalidUTF8
	}
	addr := strings.TrimSpace(string(payload))
	if addr == "" {
		return "", RejectEmpty
	}
	return addr, ""
}

// srcHost keys rate limiting on the sender address without its port.
func srcHost(a net.Addr) string {
	if u, ok := a.(*net.UDPAddr); ok {
		return u.IP.String()
	}
	return srcString(a)
}

func srcString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
