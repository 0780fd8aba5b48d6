package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/logger"
)

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "puzzlebox",
		Short:         "Riddle, joke and idiom question/answer service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the configuration file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newCrawlCmd(opts))
	cmd.AddCommand(newKeyCmd(opts))
	return cmd
}

// app bundles what every command needs after startup.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
}

func loadApp(opts *rootOptions, name string) (*app, error) {
	cfg, warning, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	log, closer := logger.NewFromConfig(cfg.Log, name, cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	if warning != "" {
		log.Warn(warning)
	}
	return &app{cfg: cfg, log: log, closer: closer}, nil
}

func (a *app) Close() {
	_ = a.closer.Close()
}

func (a *app) openStore() (db.Service, error) {
	store, err := db.NewService(a.cfg.Database)
	if err != nil {
		a.log.Error("Error initializing database", "error", err)
		return nil, err
	}
	a.log.Info("Database initialized", "type", a.cfg.Database.Type)
	return store, nil
}

func closeStore(store db.Service) {
	if sqlDB, err := store.GetDB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}
