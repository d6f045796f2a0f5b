// Package brand names the program and the filesystem locations it uses.
package brand

import (
	"os"
	"path/filepath"
)

const (
	Name        = "blockd"
	BinaryName  = "blockd"
	Description = "Self-expiring nftables blocklist daemon"

	// EnvPrefix prefixes the environment overrides read by ConfigDir and
	// StateDir.
	EnvPrefix      = "BLOCKD"
	ConfigFileName = "blockd.hcl"
	AuditFileName  = "audit.db"

	defaultConfigDir = "/etc/blockd"
	defaultStateDir  = "/var/lib/blockd"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ConfigDir returns the configuration directory.
// Priority: BLOCKD_CONFIG_DIR > BLOCKD_PREFIX/etc > /etc/blockd
func ConfigDir() string {
	return dirFromEnv("_CONFIG_DIR", "etc", defaultConfigDir)
}

// StateDir returns the directory for runtime state such as the audit
// history.
// Priority: BLOCKD_STATE_DIR > BLOCKD_PREFIX/state > /var/lib/blockd
func StateDir() string {
	return dirFromEnv("_STATE_DIR", "state", defaultStateDir)
}

// DefaultConfigPath returns the path of the main configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// DefaultAuditPath returns the audit database path written by config-init.
func DefaultAuditPath() string {
	return filepath.Join(StateDir(), AuditFileName)
}

func dirFromEnv(suffix, sub, fallback string) string {
	if dir := os.Getenv(EnvPrefix + suffix); dir != "" {
		return dir
	}
	if prefix := os.Getenv(EnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return fallback
}
