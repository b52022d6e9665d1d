// Package main is the entry point for the agentstate diagnostics CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/agentstate/internal/config"
	"github.com/szaher/agentstate/internal/manager"
	"github.com/szaher/agentstate/internal/persist"
	"github.com/szaher/agentstate/internal/store"
	"github.com/szaher/agentstate/internal/telemetry"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configPath    string
	verbose       bool
	correlationID string
)

const defaultConfigFile = "agentstate.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentstate",
		Short: "Inspect and manage conversational session state",
		Long: `agentstate is the diagnostics CLI for the session/agent state store.
It reads the same configuration as the embedding process and operates on
the configured persistence backend (memory, file, postgres, or etcd).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigFile, "Path to config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose output")
	root.PersistentFlags().StringVar(&correlationID, "correlation-id", "", "Set explicit correlation ID")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newWatchCmd())

	return root
}

// env bundles the wired-up state store for a command invocation.
type env struct {
	cfg     *config.Config
	backend persist.Backend
	mgr     *manager.Manager
	close   func()
}

// setup loads configuration and wires backend, store, and manager.
func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.PersistOptions()
	if err != nil {
		return nil, err
	}
	backend, closeBackend, err := persist.Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	logger := telemetry.NewLogger(os.Stderr, level)

	metrics := telemetry.NewMetrics()
	st := store.New(backend, store.WithSaveObserver(func(d time.Duration) {
		metrics.PersistDuration.Observe(d.Seconds())
	}))

	return &env{
		cfg:     cfg,
		backend: backend,
		mgr:     manager.NewManager(st, logger, metrics),
		close:   closeBackend,
	}, nil
}

// cmdContext returns a context carrying the correlation ID flag.
func cmdContext() context.Context {
	return telemetry.WithCorrelationID(context.Background(), correlationID)
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
