package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"grimm.is/blockd/internal/brand"
	"grimm.is/blockd/internal/config"
)

// LoadConfig reads path. When the file is missing and was not named
// explicitly, built-in defaults are used instead.
func LoadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("configuration invalid: %w", err)
}

// Overrides are command-line values that replace file settings when set.
type Overrides struct {
	Listen        string
	TTL           string
	SweepInterval string
	BatchSize     int
	Backend       string
	LogLevel      string
	RenewAdds     string // "true", "false" or empty
}

// Apply copies set fields into cfg and revalidates it.
func (o Overrides) Apply(cfg *config.Config) error {
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.TTL != "" {
		cfg.TTL = o.TTL
	}
	if o.SweepInterval != "" {
		cfg.SweepInterval = o.SweepInterval
	}
	if o.BatchSize != 0 {
		cfg.BatchSize = o.BatchSize
	}
	if o.Backend != "" {
		cfg.Firewall.Backend = o.Backend
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	switch o.RenewAdds {
	case "":
	case "true", "false":
		v := o.RenewAdds == "true"
		cfg.RenewAddsRule = &v
	default:
		return fmt.Errorf("renew-adds-rule must be true or false, got %q", o.RenewAdds)
	}
	return cfg.Validate()
}

// RunConfigInit writes a default configuration file to path, with the
// audit history enabled under the state directory.
func RunConfigInit(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	cfg := config.Default()
	cfg.Audit.Path = brand.DefaultAuditPath()
	if err := config.SaveFile(cfg, path); err != nil {
		return err
	}
	Printer.Fprintf(out, "Wrote default configuration to %s\n", path)
	return nil
}
