package logging

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// textState is the bound context of a text handler: the component, the
// pre-rendered attrs, and the open group prefix. The console and syslog
// handlers share it and differ only in the line header.
type textState struct {
	component string
	attrs     []byte
	group     string
}

func (s textState) withAttrs(as []slog.Attr) textState {
	ns := s
	ns.attrs = slices.Clone(s.attrs)
	for _, a := range as {
		if a.Key == componentKey && s.group == "" {
			ns.component = a.Value.String()
			continue
		}
		ns.attrs = appendAttr(ns.attrs, s.group, a)
	}
	return ns
}

func (s textState) withGroup(name string) textState {
	if name == "" {
		return s
	}
	ns := s
	ns.group = s.group + name + "."
	return ns
}

// appendBody renders "component: message k=v ..." for r.
func (s textState) appendBody(buf []byte, r slog.Record) []byte {
	component := s.component
	var tail []byte
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == componentKey && s.group == "" {
			component = a.Value.String()
			return true
		}
		tail = appendAttr(tail, s.group, a)
		return true
	})

	if component != "" {
		buf = append(buf, strings.ToLower(component)...)
		buf = append(buf, ": "...)
	}
	buf = append(buf, r.Message...)
	buf = append(buf, s.attrs...)
	return append(buf, tail...)
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, prefix, ga)
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		s = v.Duration().String()
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}
