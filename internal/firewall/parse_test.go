package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const listChainOutput = `table bridge filter {
	chain forward {
		type filter hook forward priority filter; policy accept;
		ip saddr 10.0.0.1 drop
		ip saddr 10.0.0.2 drop
		ip saddr 10.0.0.3 counter drop
		ip daddr 10.0.0.4 drop
		ether type arp drop
	}
}
`

const listHandlesOutput = `table bridge filter {
	chain forward { # handle 1
		type filter hook forward priority 0; policy accept;
		ip saddr 10.0.0.1 drop # handle 4
		ip saddr 10.0.0.2 drop # handle 5
		ip saddr 10.0.0.1 drop # handle 9
		ip saddr 10.0.0.3 counter drop # handle 6
	}
}
`

func TestParseBlocked(t *testing.T) {
	addrs := parseBlocked(listChainOutput)
	// "ip daddr" also has four fields and the original parse does not
	// inspect the second token.
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.4"}, addrs)
}

func TestParseBlocked_Empty(t *testing.T) {
	assert.Empty(t, parseBlocked(""))
	assert.Empty(t, parseBlocked("table bridge filter {\n}\n"))
}

func TestParseHandles_LastWins(t *testing.T) {
	handles := parseHandles(listHandlesOutput)
	assert.Equal(t, map[string]string{
		"10.0.0.1": "9",
		"10.0.0.2": "5",
	}, handles)
}

func TestParseHandles_IgnoresMalformed(t *testing.T) {
	out := "ip saddr 10.0.0.1 drop # handle\nip saddr 10.0.0.2\nfoo saddr 10.0.0.3 drop # handle 7\n"
	assert.Empty(t, parseHandles(out))
}
