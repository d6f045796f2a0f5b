package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/blockd/cmd"
	"grimm.is/blockd/internal/brand"
	"grimm.is/blockd/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		configFile, explicit := configFlag(runFlags)
		var o cmd.Overrides
		runFlags.StringVar(&o.Listen, "listen", "", "UDP listen address (host:port)")
		runFlags.StringVar(&o.TTL, "ttl", "", "Block lifetime, e.g. 5m")
		runFlags.StringVar(&o.SweepInterval, "sweep-interval", "", "Expiry check interval, e.g. 1s")
		runFlags.IntVar(&o.BatchSize, "batch-size", 0, "Maximum removals per sweep")
		runFlags.StringVar(&o.Backend, "backend", "", "Firewall backend: nft, native or memory")
		runFlags.StringVar(&o.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
		runFlags.StringVar(&o.RenewAdds, "renew-adds-rule", "", "Add a rule on every renewal (true/false)")
		runFlags.Parse(os.Args[2:])

		cfg, err := cmd.LoadConfig(*configFile, *explicit)
		if err == nil {
			err = o.Apply(cfg)
		}
		if err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := cmd.RunDaemon(ctx, cfg); err != nil {
			printer.Fprintf(os.Stderr, "Daemon failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		configFile, explicit := configFlag(checkFlags)
		checkFlags.Parse(os.Args[2:])
		if checkFlags.NArg() > 0 {
			*configFile, *explicit = checkFlags.Arg(0), true
		}

		cfg, err := cmd.LoadConfig(*configFile, *explicit)
		if err == nil {
			err = cmd.RunCheck(cfg, os.Stdout)
		}
		if err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "list":
		listFlags := flag.NewFlagSet("list", flag.ExitOnError)
		configFile, explicit := configFlag(listFlags)
		listFlags.Parse(os.Args[2:])

		cfg, err := cmd.LoadConfig(*configFile, *explicit)
		if err == nil {
			err = cmd.RunList(cfg, nil, os.Stdout)
		}
		if err != nil {
			printer.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}

	case "history":
		histFlags := flag.NewFlagSet("history", flag.ExitOnError)
		configFile, explicit := configFlag(histFlags)
		var o cmd.HistoryOptions
		histFlags.StringVar(&o.Addr, "addr", "", "Only show this address")
		histFlags.StringVar(&o.Action, "action", "", "Only show block, renew or unblock")
		histFlags.DurationVar(&o.Since, "since", 0, "Only show events newer than this, e.g. 1h")
		histFlags.IntVar(&o.Limit, "limit", 50, "Maximum events to show (0 for all)")
		histFlags.Parse(os.Args[2:])

		cfg, err := cmd.LoadConfig(*configFile, *explicit)
		if err == nil {
			err = cmd.RunHistory(cfg, o, os.Stdout)
		}
		if err != nil {
			printer.Fprintf(os.Stderr, "History failed: %v\n", err)
			os.Exit(1)
		}

	case "send":
		sendFlags := flag.NewFlagSet("send", flag.ExitOnError)
		to := sendFlags.String("to", "127.0.0.1:1234", "Daemon address (host:port)")
		sendFlags.Parse(os.Args[2:])

		if err := cmd.RunSend(*to, sendFlags.Args(), os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "Send failed: %v\n", err)
			os.Exit(1)
		}

	case "config-init":
		initFlags := flag.NewFlagSet("config-init", flag.ExitOnError)
		force := initFlags.Bool("force", false, "Overwrite an existing file")
		initFlags.Parse(os.Args[2:])

		path := brand.DefaultConfigPath()
		if initFlags.NArg() > 0 {
			path = initFlags.Arg(0)
		}
		if err := cmd.RunConfigInit(path, *force, os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "Config init failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		printer.Printf("%s %s (built %s, commit %s)\n", brand.Name, brand.Version, brand.BuildTime, brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// configFlag registers -config/-c. The second value reports whether the
// user set it.
func configFlag(fs *flag.FlagSet) (*string, *bool) {
	path := brand.DefaultConfigPath()
	explicit := new(bool)
	set := func(v string) error {
		path = v
		*explicit = true
		return nil
	}
	fs.Func("config", "Configuration file (default "+path+")", set)
	fs.Func("c", "Configuration file (short)", set)
	return &path, explicit
}

func printUsage() {
	printer.Fprintf(os.Stderr, `%s - self-expiring firewall blocklist daemon

Usage:
  %s <command> [options]

Commands:
  run          Run the daemon in the foreground
  check        Validate the configuration and print effective settings
  list         Show addresses blocked in the firewall chain
  history      Show recorded block and unblock events
  send         Send block requests to a running daemon
  config-init  Write a default configuration file
  version      Print version information

Run '%s <command> -h' for command options.
`, brand.Name, brand.BinaryName, brand.BinaryName)
}
