package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"grimm.is/blockd/internal/config"
	"grimm.is/blockd/internal/firewall"
)

// RunList prints the addresses currently blocked in the firewall chain and
// the handle blockd would delete for each.
func RunList(cfg *config.Config, fw firewall.Adapter, out io.Writer) error {
	if fw == nil {
		d, err := cfg.Durations()
		if err != nil {
			return err
		}
		fw, err = firewall.New(firewall.Options{
			Backend: cfg.Firewall.Backend,
			Table:   cfg.FirewallTable(),
			NFTPath: cfg.Firewall.NFTPath,
			Timeout: d.FirewallTimeout,
		})
		if err != nil {
			return err
		}
	}

	handles, err := fw.ListHandles()
	if err != nil {
		return fmt.Errorf("list handles: %w", err)
	}

	addrs := make([]string, 0, len(handles))
	for addr := range handles {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tHANDLE")
	for _, addr := range addrs {
		fmt.Fprintf(w, "%s\t%s\n", addr, handles[addr])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	Printer.Fprintf(out, "%d blocked in %s\n", len(addrs), cfg.FirewallTable())
	return nil
}
