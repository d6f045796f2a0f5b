// Package config handles blockd's HCL configuration.
//
// # Overview
//
// The daemon reads one file, /etc/blockd/blockd.hcl by default. JSON is
// accepted when the file name ends in .json. Every setting has a default, so
// an empty file (or no file) yields a working configuration:
//
//	listen          = "0.0.0.0:1234"
//	ttl             = "5m"
//	sweep_interval  = "1s"
//	batch_size      = 100
//	read_buffer     = 1024
//	renew_adds_rule = true
//
//	firewall {
//	  backend = "nft"
//	  family  = "bridge"
//	  table   = "filter"
//	  chain   = "forward"
//	}
//
// Optional blocks: log, syslog, metrics, enrich.
//
// # Environment
//
// The process environment is visible to expressions as the env object:
//
//	syslog {
//	  enabled = true
//	  host    = env.SYSLOG_HOST
//	}
//
// Durations accept Go syntax ("90s", "5m") or a bare number of seconds.
package config
