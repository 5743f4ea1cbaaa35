// Package cmd wires up the CLI flags and dispatches to the daemon.
package cmd

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"switchboard/config"
	"switchboard/eventbus"
	"switchboard/focus"
	"switchboard/internal/metrics"
	"switchboard/internal/ws"
	"switchboard/session"
	"switchboard/tunnel"
	"switchboard/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X switchboard/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the requested switchboard command.
func Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("switchboard", flag.ContinueOnError)

	// ── daemon ───────────────────────────────────────────────────
	var configPath, host, token string
	var port int
	fs.StringVarP(&configPath, "config", "f", "", "Config file (YAML)")
	fs.StringVar(&host, "host", "", "Bind address")
	fs.IntVarP(&port, "port", "p", 0, "HTTP/WebSocket port")
	fs.StringVar(&token, "token", "", "Require this bearer token on every request")

	// ── session defaults ─────────────────────────────────────────
	var shell, workdir string
	var noProcStats bool
	fs.StringVar(&shell, "shell", "", "Shell for local sessions")
	fs.StringVar(&workdir, "workdir", "", "Working directory for local sessions")
	fs.BoolVar(&noProcStats, "no-proc-stats", false, "Disable per-session process stats")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var dryRun, showVersion, showHelp bool
	fs.BoolVar(&dryRun, "dry-run", false, "Resolve and validate the configuration, then exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("switchboard %s\n", version)
		return nil
	}

	// ── resolve configuration: flags > env > file > defaults ─────
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	config.LoadFromEnv(cfg)

	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if token != "" {
		cfg.Server.AuthToken = token
	}
	if shell != "" {
		cfg.Session.Shell = shell
	}
	if workdir != "" {
		cfg.Session.WorkingDir = workdir
	}
	if noProcStats {
		cfg.Session.DisableProcStats = true
	}
	if verbose > 0 {
		cfg.Verbose = verbose
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := util.NewLogger(cfg.Verbose)

	// ── dispatch ─────────────────────────────────────────────────
	command := "serve"
	rest := fs.Args()
	if len(rest) > 0 {
		command = rest[0]
		rest = rest[1:]
	}

	switch command {
	case "serve":
		if dryRun {
			fmt.Printf("config ok: would listen on %s (%d profile(s))\n",
				util.FormatAddr(cfg.Server.Host, cfg.Server.Port), len(cfg.Profiles))
			return nil
		}
		return runServe(ctx, cfg, logger)
	case "check":
		fmt.Printf("config ok: %s, %d profile(s)\n",
			util.FormatAddr(cfg.Server.Host, cfg.Server.Port), len(cfg.Profiles))
		return nil
	case "probe":
		return runProbe(ctx, cfg, logger, rest)
	case "token":
		tok, err := config.GenerateToken()
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		fmt.Println(tok)
		return nil
	default:
		return fmt.Errorf("unknown command %q (use --help for usage)", command)
	}
}

// runServe builds the daemon and serves until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, logger *util.Logger) error {
	bus := eventbus.New()
	router := focus.NewRouter(bus)
	registry := session.NewRegistry(router)
	m := metrics.New()

	conns := ws.Connectors{
		Local: &tunnel.LocalConnector{
			Shell:          cfg.Session.Shell,
			WorkingDir:     cfg.Session.WorkingDir,
			CommandTimeout: cfg.Connect.CommandTimeout,
			Logger:         logger,
			Metrics:        m,
		},
		Remote: &tunnel.SSHConnector{
			Timeout:        cfg.Connect.Timeout,
			CommandTimeout: cfg.Connect.CommandTimeout,
			Logger:         logger,
			Metrics:        m,
		},
		Socket: &tunnel.SocketConnector{
			Timeout:        cfg.Connect.Timeout,
			CommandTimeout: cfg.Connect.CommandTimeout,
			Logger:         logger,
			Metrics:        m,
		},
	}

	if cfg.Server.AuthToken == "" {
		logger.Warn("no auth token configured; the API is open to anyone who can reach %s",
			util.FormatAddr(cfg.Server.Host, cfg.Server.Port))
	}

	srv := ws.NewServer(cfg, registry, router, bus, conns, logger, m)
	return srv.Run(ctx)
}

// runProbe checks which ports on a host accept connections, without
// starting the daemon.
func runProbe(ctx context.Context, cfg *config.Config, logger *util.Logger, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: switchboard probe <host> <port|start-end> ...")
	}
	host := args[0]

	var ports []int
	for _, arg := range args[1:] {
		pr, err := config.ParsePortSpec(arg)
		if err != nil {
			return fmt.Errorf("port %q: %w", arg, err)
		}
		ports = append(ports, pr.Expand()...)
	}

	results := tunnel.Probe(ctx, host, ports, cfg.Connect.ProbeTimeout, cfg.Connect.ProbeConcurrency, nil)

	open := 0
	for _, res := range results {
		if res.Open {
			open++
			fmt.Printf("%s open\n", util.FormatAddr(host, res.Port))
		} else {
			logger.Verbose("%s closed: %v", util.FormatAddr(host, res.Port), res.Err)
		}
	}
	fmt.Printf("%d/%d ports open on %s\n", open, len(ports), host)
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `switchboard - session routing daemon v%s

Manages local, SSH, and socket sessions behind one HTTP/WebSocket API,
with a single input focus routed across them.

Usage:
  switchboard [options] [serve]               Run the daemon
  switchboard [options] check                 Validate configuration
  switchboard [options] probe <host> <ports>  Probe host reachability
  switchboard token                           Generate a bearer token

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  switchboard -f /etc/switchboard.yml          Serve with a config file
  switchboard -p 7333 --token s3cret           Serve with bearer auth
  switchboard --dry-run -f switchboard.yml     Validate and exit
  switchboard probe db-internal 5432 6000-6010 Check reachability
  SWITCHBOARD_PORT=8400 switchboard            Configure via environment
`)
}
