// Command oraclenode runs one decentralized oracle gateway node: it loads
// configuration, opens local storage, and starts the polling scheduler,
// peer collector/server, reputation and ledger subsystems, metrics bus, and
// operator control socket until a shutdown signal arrives.
//
// Startup sequence:
//  1. Load and validate config from the given path.
//  2. Initialize structured logger (zap).
//  3. Build the Node (opens storage, constructs every component).
//  4. Run until SIGINT/SIGTERM, then drain in-flight work and close
//     resources.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rodiolabs/oraclenode/internal/config"
	"github.com/rodiolabs/oraclenode/internal/node"
)

func main() {
	configPath := flag.String("config", "/etc/oraclenode/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("oraclenode %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("oraclenode starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.Node.ID),
		zap.String("config", *configPath),
	)

	n, err := node.New(cfg, log)
	if err != nil {
		log.Fatal("node construction failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — config hot-reload is not supported; restart to apply changes")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		log.Error("node run exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("oraclenode shutdown complete")
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
