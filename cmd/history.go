package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"grimm.is/blockd/internal/audit"
	"grimm.is/blockd/internal/config"
)

// HistoryOptions filters RunHistory.
type HistoryOptions struct {
	Addr   string
	Action string
	Since  time.Duration
	Limit  int
}

// RunHistory prints recorded block decisions, newest first.
func RunHistory(cfg *config.Config, opts HistoryOptions, out io.Writer) error {
	if cfg.Audit == nil || cfg.Audit.Path == "" {
		return fmt.Errorf("audit history is disabled (set audit.path)")
	}
	store, err := audit.NewStore(cfg.Audit.Path, 0, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	f := audit.Filter{Addr: opts.Addr, Action: opts.Action, Limit: opts.Limit}
	if opts.Since > 0 {
		f.Since = time.Now().Add(-opts.Since)
	}
	events, err := store.Query(f)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tADDRESS\tSOURCE\tDETAILS")
	for _, evt := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			evt.Time.Local().Format(time.DateTime), evt.Action, evt.Addr, dash(evt.Source), formatDetails(evt.Details))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	Printer.Fprintf(out, "%d events\n", len(events))
	return nil
}

func formatDetails(d map[string]any) string {
	if len(d) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return strings.Join(parts, " ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
