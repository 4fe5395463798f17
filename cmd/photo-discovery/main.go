package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"photo-discovery/internal/config"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/memory"

	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath  string
	metricsAddr string
	dbPath      string
	logLevel    string
}

func main() {
	// Set GOMEMLIMIT before anything allocates.
	memory.ConfigureFromEnv()

	err := newRootCommand().ExecuteContext(context.Background())
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "photo-discovery",
		Short:         "Incremental photo folder discovery with artifact caching",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}
			level, err := logging.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logging.SetLevel(level)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", `serve /metrics and /healthz on this address, e.g. ":9090"`)
	flags.StringVar(&opts.dbPath, "db", "", "SQLite file for persistent artifacts")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newThumbsCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	return cmd
}

// loadConfig layers defaults, the config file, the environment and the
// shared flags. Commands apply their own flags and validate again.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("db") {
		cfg.DatabasePath = opts.dbPath
	}
	return cfg, nil
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			config.LogShutdownInitiated(sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
