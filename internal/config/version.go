package config

import (
	"fmt"
	"strconv"
	"strings"
)

// supportedMajor is the schema major this build reads. Minor bumps only add
// optional fields.
const supportedMajor = 1

// checkSchemaVersion accepts "MAJOR.MINOR" strings with a supported major.
// Empty means CurrentSchemaVersion.
func checkSchemaVersion(s string) error {
	if s == "" {
		return nil
	}
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok {
		return fmt.Errorf("invalid version format %q (expected MAJOR.MINOR)", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return fmt.Errorf("invalid major version in %q", s)
	}
	if minor, err := strconv.Atoi(minorStr); err != nil || minor < 0 {
		return fmt.Errorf("invalid minor version in %q", s)
	}
	if major != supportedMajor {
		return fmt.Errorf("unsupported version %s (this build reads %d.x)", s, supportedMajor)
	}
	return nil
}
