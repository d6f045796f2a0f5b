// Package validation holds input checks shared by config loading and the
// firewall adapters. Anything that ends up on an nft command line goes
// through here first.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Valid identifier: alphanumeric, dash, underscore
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Characters that would let a value escape its argv slot or nft statement.
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "{", "}", "\\", "\"", "'", "\n", "\r"}
)

// ValidateIdentifier validates a table, chain or hook name.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > 255 {
		return fmt.Errorf("identifier too long (max 255 characters)")
	}

	for _, char := range dangerousChars {
		if strings.Contains(id, char) {
			return fmt.Errorf("identifier contains dangerous character: %q", char)
		}
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_)", id)
	}

	return nil
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%q not one of: %s", value, strings.Join(allowed, ", "))
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// ValidateHostPort checks a "host:port" listen or dial address. The host may
// be empty (all interfaces) but the port must be numeric. Port 0 is accepted
// only when allowZero is set, for listeners that pick an ephemeral port.
func ValidateHostPort(addr string, allowZero bool) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host != "" && net.ParseIP(host) == nil {
		if err := validateHostname(host); err != nil {
			return err
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q", portStr)
	}
	if port == 0 && allowZero {
		return nil
	}
	return ValidatePortNumber(port)
}

func validateHostname(host string) error {
	if len(host) > 253 {
		return fmt.Errorf("hostname too long: %s", host)
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 || !identifierRegex.MatchString(label) {
			return fmt.Errorf("invalid hostname: %s", host)
		}
	}
	return nil
}
