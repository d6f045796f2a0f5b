package logging

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

const syslogDialTimeout = 5 * time.Second

// SyslogConfig names a remote syslog server.
type SyslogConfig struct {
	Host     string
	Port     int    // default 514
	Protocol string // udp or tcp, default udp
	Tag      string // default blockd
	Facility int    // default 1 (user)
}

func (c SyslogConfig) normalize() SyslogConfig {
	if c.Port == 0 {
		c.Port = 514
	}
	if c.Protocol == "" {
		c.Protocol = "udp"
	}
	if c.Tag == "" {
		c.Tag = "blockd"
	}
	if c.Facility == 0 {
		c.Facility = 1
	}
	return c
}

func (c SyslogConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SyslogHandler sends RFC 3164 messages to a remote server. The syslog
// severity follows the record level. TCP messages are newline framed.
type SyslogHandler struct {
	conn  *syslogConn
	level slog.Leveler
	state textState
}

type syslogConn struct {
	mu       sync.Mutex
	cfg      SyslogConfig
	conn     net.Conn
	hostname string
	pid      int
}

// DialSyslog connects to the server in cfg. A nil level means info.
func DialSyslog(cfg SyslogConfig, level slog.Leveler) (*SyslogHandler, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	cfg = cfg.normalize()
	conn, err := net.DialTimeout(cfg.Protocol, cfg.addr(), syslogDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog server %s: %w", cfg.addr(), err)
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &SyslogHandler{
		conn:  &syslogConn{cfg: cfg, conn: conn, hostname: hostname, pid: os.Getpid()},
		level: level,
	}, nil
}

func (h *SyslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *SyslogHandler) Handle(_ context.Context, r slog.Record) error {
	c := h.conn
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	pri := c.cfg.Facility*8 + severity(r.Level)

	buf := make([]byte, 0, 256)
	buf = fmt.Appendf(buf, "<%d>%s %s %s[%d]: ", pri, t.Format(time.Stamp), c.hostname, c.cfg.Tag, c.pid)
	buf = h.state.appendBody(buf, r)
	if c.cfg.Protocol == "tcp" {
		buf = append(buf, '\n')
	}
	return c.send(buf)
}

func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.state = h.state.withAttrs(attrs)
	return &c
}

func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.state = h.state.withGroup(name)
	return &c
}

// Close closes the connection. Later records are dropped with an error.
func (h *SyslogHandler) Close() error {
	c := h.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// send writes msg, redialing once if the write fails.
func (c *syslogConn) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("syslog connection closed")
	}
	if _, err := c.conn.Write(msg); err == nil {
		return nil
	}
	c.conn.Close()
	conn, err := net.DialTimeout(c.cfg.Protocol, c.cfg.addr(), syslogDialTimeout)
	if err != nil {
		c.conn = nil
		return fmt.Errorf("syslog reconnect: %w", err)
	}
	c.conn = conn
	_, err = c.conn.Write(msg)
	return err
}

// severity maps a slog level to an RFC 5424 severity.
func severity(l slog.Level) int {
	switch {
	case l >= LevelError:
		return 3
	case l >= LevelWarn:
		return 4
	case l >= LevelInfo:
		return 6
	default:
		return 7
	}
}
