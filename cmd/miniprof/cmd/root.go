// Package cmd provides the command-line interface of miniprof.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/miniprof/config"
	"github.com/sarchlab/miniprof/tracestore"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	configPath string
	envFiles   []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "miniprof",
	Short: "miniprof records and shows where the time of web requests goes.",
	Long: `miniprof records and shows where the time of web requests goes. ` +
		`It serves the stored profiles (serve), prints them (show), and ` +
		`profiles a small demo application (demo).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It runs the functions registered with atexit before the
// process ends.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a YAML configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil,
		"dotenv files to load before reading MINIPROF_* variables "+
			"(default .env if present)")
}

// session is what the subcommands share: the configuration, the logger and
// the opened store.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	store  tracestore.Store
}

// openSession loads the configuration and opens the store. The store is
// closed when the process exits.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(configPath, envFiles...)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	store, err := tracestore.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	atexit.Register(func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	})

	logger.Debug("store opened", "backend", cfg.Store.Backend)

	return &session{cfg: cfg, logger: logger, store: store}, nil
}
