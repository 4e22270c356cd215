package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agenthands/roundup/internal/config"
	"github.com/agenthands/roundup/internal/core"
)

var (
	configPath string
	logLevel   string
	logger     zerolog.Logger
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "roundup",
		Short: "Round-based near-duplicate consolidation",
		Long: `roundup clusters near-duplicate items, asks an LLM to adjudicate each
cluster and repeats in rounds until the collection stops shrinking.
Runs are checkpointed and resume where they stopped.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.toml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(GraphCmd())
	rootCmd.AddCommand(ExportCmd())
	rootCmd.AddCommand(AutoDedupCmd())
	rootCmd.AddCommand(StatusCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(ImportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger() error {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	if logLevel == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return nil
	}
	return setLevel(logLevel)
}

func setLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logLevel == "" && cfg.Log.Level != "" {
		if err := setLevel(cfg.Log.Level); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openConsolidator loads configuration and opens the stores. The returned
// context is cancelled on SIGINT or SIGTERM.
func openConsolidator() (context.Context, *core.Consolidator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c, err := core.New(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := c.Close(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store")
		}
		stop()
	}
	return ctx, c, cleanup, nil
}
