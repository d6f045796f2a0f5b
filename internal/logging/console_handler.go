package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ConsoleHandler writes one human-readable line per record:
//
//	2026-04-01T10:00:00Z blockd[812]: [info] ingest: Blocking addr=203.0.113.9
type ConsoleHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	header string
	state  textState
}

// NewConsoleHandler creates a ConsoleHandler. An empty name means "blockd";
// a nil level means info.
func NewConsoleHandler(out io.Writer, name string, level slog.Leveler) *ConsoleHandler {
	if name == "" {
		name = "blockd"
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{
		out:    out,
		mu:     &sync.Mutex{},
		level:  level,
		header: strings.ToLower(name) + "[" + strconv.Itoa(os.Getpid()) + "]: ",
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	buf := make([]byte, 0, 256)
	buf = t.AppendFormat(buf, time.RFC3339)
	buf = append(buf, ' ')
	buf = append(buf, h.header...)
	buf = append(buf, '[')
	buf = append(buf, strings.ToLower(r.Level.String())...)
	buf = append(buf, "] "...)
	buf = h.state.appendBody(buf, r)
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.state = h.state.withAttrs(attrs)
	return &c
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.state = h.state.withGroup(name)
	return &c
}
