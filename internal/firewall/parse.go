package firewall

import (
	"bufio"
	"strings"
)

// parseBlocked extracts addresses from "nft list chain" output. Only
// four-field lines of the form "ip saddr <addr> drop" are accepted;
// anything else (headers, braces, other rule shapes) is ignored.
func parseBlocked(out string) []string {
	var addrs []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) != 4 || parts[0] != "ip" {
			continue
		}
		addrs = append(addrs, parts[2])
	}
	return addrs
}

// parseHandles extracts address to handle pairs from
// "nft --handle --numeric list chain" output, where rule lines look like
// "ip saddr <addr> drop # handle <n>". A later line for the same address
// overwrites an earlier one.
func parseHandles(out string) map[string]string {
	handles := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) != 7 || parts[0] != "ip" {
			continue
		}
		handles[parts[2]] = parts[6]
	}
	return handles
}
