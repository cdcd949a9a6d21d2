// Package main implements the tbank CLI for operating the toolbank
// learning engine from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/toolbank/internal/config"
	"github.com/fyrsmithlabs/toolbank/internal/experience"
	"github.com/fyrsmithlabs/toolbank/internal/logging"
	"github.com/fyrsmithlabs/toolbank/internal/patterns"
	"github.com/fyrsmithlabs/toolbank/internal/storage"
	"github.com/fyrsmithlabs/toolbank/internal/telemetry"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tbank",
	Short: "CLI for the toolbank tool-selection and pattern learning engine",
	Long: `tbank operates the toolbank learning engine: record session outcomes,
ask for tool suggestions and blended candidates, run batch pattern
learning, and prune stale data.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/toolbank/config.yaml)")
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
}

// app wires the engine components behind the CLI commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Store

	telemetry   *telemetry.Manager
	experiences *experience.Store
	patterns    *patterns.Store
	learner     *patterns.Learner
}

// newApp loads configuration and builds the full engine stack.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	l := cfg.Learning
	manager, err := telemetry.NewManager(store, logger,
		telemetry.WithHalfLife(l.HalfLife.Duration()),
		telemetry.WithMinSamples(l.MinSamples),
		telemetry.WithHighConfidenceSamples(l.HighConfidenceSamples),
		telemetry.WithMaxRecordsPerContext(l.MaxRecordsPerContext),
		telemetry.WithMaxGroupsPerContext(l.MaxGroupsPerContext),
		telemetry.WithFlushDelay(l.FlushDelay.Duration()),
		telemetry.WithRelatedDiscount(l.RelatedDiscount),
	)
	if err != nil {
		return nil, err
	}

	exps, err := experience.NewStore(store, logger,
		experience.WithMaxExperiences(l.MaxExperiences),
		experience.WithFlushDelay(l.FlushDelay.Duration()),
	)
	if err != nil {
		return nil, err
	}

	pats, err := patterns.NewStore(store, logger)
	if err != nil {
		return nil, err
	}

	learner, err := patterns.NewLearner(exps, pats, logger,
		patterns.WithExtractionEpsilon(l.ExtractionEpsilon),
		patterns.WithMinGroupSize(l.MinGroupSize),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		telemetry:   manager,
		experiences: exps,
		patterns:    pats,
		learner:     learner,
	}, nil
}

// Close flushes pending writes and releases the backing store.
func (a *app) Close(ctx context.Context) error {
	var firstErr error
	if err := a.telemetry.Close(ctx); err != nil {
		firstErr = err
	}
	if err := a.experiences.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "file":
		return storage.NewFileStore(cfg.Path)
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Path)
	case "memory":
		return storage.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// withApp builds the app, runs fn, and always closes afterward.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	runErr := fn(ctx, a)
	if closeErr := a.Close(ctx); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	return runErr
}
