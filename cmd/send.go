package cmd

import (
	"fmt"
	"io"
	"net"
	"time"
)

// RunSend submits one block request datagram per address to the daemon at
// to.
func RunSend(to string, addrs []string, out io.Writer) error {
	if len(addrs) == 0 {
		return fmt.Errorf("no addresses given")
	}
	conn, err := net.DialTimeout("udp", to, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", to, err)
	}
	defer conn.Close()

	for _, addr := range addrs {
		if _, err := conn.Write([]byte(addr)); err != nil {
			return fmt.Errorf("send %s: %w", addr, err)
		}
	}
	Printer.Fprintf(out, "Sent %d block request(s) to %s\n", len(addrs), to)
	return nil
}
