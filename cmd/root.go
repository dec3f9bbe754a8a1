package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/abhisek/adaptest/internal/config"
	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/logger"
	"github.com/abhisek/adaptest/internal/store"
)

// PCG streams keyed off the configured seeds. fit and simulate share the
// split stream so both see the same calibration/testing partition.
const (
	splitStream = 1
	initStream  = 2
)

var rootCmd = &cobra.Command{
	Use:           "adaptest",
	Short:         "Computerized adaptive testing with IRT models",
	Long:          "adaptest calibrates IRT/MIRT item banks from response logs and simulates adaptive tests with pluggable item selection.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides ADAPTEST_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-mode", "", "Logger mode: dev or prod")

	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config, applies env overrides and then --log-mode.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if mode, _ := cmd.Flags().GetString("log-mode"); mode != "" {
		cfg.Log.Mode = mode
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then store.path from the config (which ADAPTEST_DB overrides), then the
// default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg.Store.Path != "" {
		return cfg.Store.Path, store.EnsureDir(cfg.Store.Path)
	}
	return store.DefaultDBPath()
}

func openStore(cmd *cobra.Command, cfg config.Config) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

// loadSplit reads a dataset and partitions its students the same way for
// every command.
func loadSplit(path string, cfg config.Config) (ds, calib, testSet *dataset.Dataset, err error) {
	if path == "" {
		return nil, nil, nil, fmt.Errorf("--data is required")
	}
	ds, err = dataset.LoadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load dataset: %w", err)
	}
	calib, testSet, err = dataset.Split(ds, cfg.Test.TrainFrac, rand.NewPCG(cfg.Model.Seed, splitStream))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("split dataset: %w", err)
	}
	return ds, calib, testSet, nil
}
