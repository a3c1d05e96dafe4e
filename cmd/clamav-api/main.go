// Package main is the clamav-api binary: an HTTP scanning gateway in front of
// a clamd daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/api"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/clamd"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/config"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/logging"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/scanner"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "clamav-api",
		Short:         "HTTP virus-scanning API backed by clamd",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("clamav-api version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
		},
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty}
	log := logging.NewWithComponent(logCfg, "main")

	dialer := &clamd.Dialer{
		Host:     cfg.ClamdHost,
		Port:     cfg.ClamdPort,
		Attempts: cfg.ConnectRetries,
		Backoff:  cfg.ConnectBackoff,
		Log:      logging.NewWithComponent(logCfg, "clamd"),
	}
	pool := scanner.NewPool(dialer, cfg.MaxConnections, cfg.MaxQueueSize,
		logging.NewWithComponent(logCfg, "pool"))
	defer pool.Close()

	sc := scanner.New(pool,
		scanner.WithTimeout(cfg.ScanTimeout),
		scanner.WithRetries(cfg.ScanRetries),
		scanner.WithRetryDelay(cfg.RetryDelay),
		scanner.WithLogger(logging.NewWithComponent(logCfg, "scanner")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Best-effort warm-up; the pool dials lazily on first scan if clamd is
	// not up yet.
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := pool.WarmUp(warmCtx); err != nil {
		log.Warn().Err(err).Msg("clamd warm-up failed, will retry on first scan")
	}
	cancel()

	srv := api.NewServer(cfg.ListenAddr, sc, cfg.MaxFileSize,
		logging.NewWithComponent(logCfg, "api"))
	return srv.Run(ctx)
}
