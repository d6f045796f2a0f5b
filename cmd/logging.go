package cmd

import (
	"io"

	"grimm.is/blockd/internal/brand"
	"grimm.is/blockd/internal/config"
	"grimm.is/blockd/internal/logging"
)

// NewLogger builds the process logger from cfg and makes it the default.
// When remote syslog is enabled the closer shuts the connection down.
func NewLogger(cfg *config.Config) (*logging.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.JSON = cfg.Log.JSON
	lc.Name = brand.BinaryName
	if s := cfg.Syslog; s != nil && s.Enabled {
		lc.Syslog = &logging.SyslogConfig{
			Host:     s.Host,
			Port:     s.Port,
			Protocol: s.Protocol,
			Tag:      s.Tag,
		}
	}

	logger, closer, err := logging.Open(lc)
	if err != nil {
		return nil, nil, err
	}
	logging.SetDefault(logger)
	return logger, closer, nil
}
