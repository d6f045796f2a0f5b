package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})

	t.Run("Levels", func(t *testing.T) {
		for _, tc := range []struct {
			log func(string, ...any)
			msg string
		}{
			{logger.Debug, "debug msg"},
			{logger.Info, "info msg"},
			{logger.Warn, "warn msg"},
			{logger.Error, "error msg"},
		} {
			buf.Reset()
			tc.log(tc.msg)
			if !strings.Contains(buf.String(), tc.msg) {
				t.Errorf("logging %q failed", tc.msg)
			}
		}
	})

	t.Run("ComponentField", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("sweeper").Info("Removing block", "addr", "10.0.0.5", "handle", "7")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSON %q: %v", buf.String(), err)
		}
		if rec["component"] != "sweeper" || rec["addr"] != "10.0.0.5" || rec["handle"] != "7" {
			t.Errorf("unexpected record: %v", rec)
		}
	})
}

func TestLogger_SharedLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: LevelInfo, Output: &buf})
	child := root.WithComponent("ingest").With("listen", "0.0.0.0:1234")

	root.SetLevel(LevelError)
	if child.Level() != LevelError {
		t.Fatalf("child level = %v, want error", child.Level())
	}
	child.Warn("should not appear")
	if buf.Len() > 0 {
		t.Errorf("logged below level: %q", buf.String())
	}

	child.SetLevel(LevelDebug)
	root.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("level change on child did not reach root")
	}
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.WithComponent("Ingest").Info("Blocking", "addr", "10.0.0.5", "note", "two words", "ttl", 5*time.Minute)

	line := buf.String()
	re := regexp.MustCompile(`^\S+ blockd\[\d+\]: \[info\] ingest: Blocking addr=10\.0\.0\.5 note="two words" ttl=5m0s\n$`)
	if !re.MatchString(line) {
		t.Errorf("unexpected line %q", line)
	}
}

func TestConsoleHandler_NameAndGroups(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, Name: "BlockCtl"})

	l.WithGroup("sweep").With("batch", 100).Info("Done", slog.Group("result", "removed", 3, "deferred", 0), "empty", "")

	line := buf.String()
	if !strings.Contains(line, " blockctl[") {
		t.Errorf("missing name in %q", line)
	}
	for _, want := range []string{"sweep.batch=100", "sweep.result.removed=3", "sweep.result.deferred=0", `sweep.empty=""`} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %q", want, line)
		}
	}
}

func TestConsoleHandler_RecordComponentWins(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.WithComponent("daemon").Info("Loaded", "component", "firewall")
	if !strings.Contains(buf.String(), "] firewall: Loaded") {
		t.Errorf("unexpected line %q", buf.String())
	}
	if strings.Contains(buf.String(), "component=") {
		t.Errorf("component repeated as attr: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestDefaultAndSetDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default returned nil")
	}
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})
	SetDefault(l)
	if Default() != l {
		t.Error("SetDefault did not replace the default logger")
	}
	slog.Info("via slog")
	if !strings.Contains(buf.String(), "via slog") {
		t.Error("slog default not routed to logger")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	if l.Enabled(context.Background(), LevelError) {
		t.Error("Discard should not enable error level")
	}
}

func TestOpen_NoSyslog(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := Open(Config{Level: LevelInfo, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hello")
	if err := closer.Close(); err != nil {
		t.Error(err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Error("missing output")
	}
}
