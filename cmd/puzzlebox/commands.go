package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ubuygold/puzzlebox/internal/crawler"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/entries"
	"github.com/ubuygold/puzzlebox/internal/migrate"
	"github.com/ubuygold/puzzlebox/internal/model"
	"github.com/ubuygold/puzzlebox/internal/scheduler"
	"github.com/ubuygold/puzzlebox/internal/seed"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty database with sample entries",
		Long:  "Insert the built-in samples, or the riddles of a corpus file, when the entries table is empty.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Corpus file to import as riddles instead of the built-in samples")
	return cmd
}

func runSeed(cmd *cobra.Command, opts *rootOptions, file string) error {
	a, err := loadApp(opts, "seed")
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	svc := entries.NewService(store, a.cfg.Categories, a.log)
	result, err := seed.Run(cmd.Context(), store, svc, file, a.log)
	if err != nil {
		a.log.Error("Error seeding database", "error", err, "file", file)
		return err
	}

	out := cmd.OutOrStdout()
	if result.Skipped {
		fmt.Fprintf(out, "Database already contains %d entries, nothing to seed.\n", result.Existing)
		return nil
	}
	fmt.Fprintf(out, "Seeded %d entries (%d duplicates, %d failed).\n", result.Added, result.Duplicates, result.Failed)
	return nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-legacy",
		Short: "Split a legacy content-only entries table into question and answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}
}

func runMigrate(cmd *cobra.Command, opts *rootOptions) error {
	a, err := loadApp(opts, "migrate")
	if err != nil {
		return err
	}
	defer a.Close()

	gdb, err := db.Open(a.cfg.Database)
	if err != nil {
		a.log.Error("Error opening database", "error", err)
		return err
	}
	defer closeStore(db.NewServiceFromDB(gdb))

	result, err := migrate.Legacy(cmd.Context(), gdb, a.log)
	if err != nil {
		a.log.Error("Error migrating legacy entries", "error", err)
		return err
	}

	out := cmd.OutOrStdout()
	if result.AlreadyMigrated {
		fmt.Fprintln(out, "Database already has question and answer columns. No migration needed.")
		return nil
	}
	fmt.Fprintf(out, "Successfully migrated %d entries (%d duplicates removed).\n", result.Migrated, result.Removed)
	return nil
}

func newCrawlCmd(opts *rootOptions) *cobra.Command {
	var importEntries bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the riddle site and append new pairs to the corpus file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts, importEntries)
		},
	}
	cmd.Flags().BoolVar(&importEntries, "import", false, "Also store the new pairs as riddles")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *rootOptions, importEntries bool) error {
	a, err := loadApp(opts, "crawler")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := crawler.New(a.cfg.Crawler, a.log)
	out := cmd.OutOrStdout()

	if !importEntries {
		result, err := c.Run(ctx)
		if err != nil {
			a.log.Error("Error crawling riddles", "error", err)
			return err
		}
		fmt.Fprintf(out, "Crawled %d pages, saved %d new riddles to %s.\n", result.Pages, len(result.Saved), a.cfg.Crawler.OutputFile)
		return nil
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	sched := scheduler.NewScheduler(c, entries.NewService(store, a.cfg.Categories, a.log), a.log)
	batch, err := sched.RunImport(ctx)
	if err != nil {
		a.log.Error("Error importing riddles", "error", err)
		return err
	}
	fmt.Fprintf(out, "Imported %d riddles (%d duplicates, %d failed).\n", len(batch.Success), len(batch.Duplicates), len(batch.Failed))
	return nil
}

func newKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
	}
	cmd.AddCommand(newKeyCreateCmd(opts))
	cmd.AddCommand(newKeyListCmd(opts))
	cmd.AddCommand(newKeyToggleCmd(opts))
	return cmd
}

func newKeyCreateCmd(opts *rootOptions) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, "key", func(a *app, store db.Service) error {
				key, err := model.GenerateAPIKey()
				if err != nil {
					return err
				}
				apiKey := &model.APIKey{Key: key, Description: description, IsActive: true}
				if err := store.CreateAPIKey(cmd.Context(), apiKey); err != nil {
					return fmt.Errorf("create api key: %w", err)
				}
				a.log.Info("API key created", "id", apiKey.ID, "key_suffix", model.KeySuffix(key))
				fmt.Fprintf(cmd.OutOrStdout(), "API key %d created: %s\n", apiKey.ID, key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Human-readable description for the key")
	return cmd
}

func newKeyListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, "key", func(a *app, store db.Service) error {
				keys, err := store.ListAPIKeys(cmd.Context())
				if err != nil {
					return fmt.Errorf("list api keys: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKEY\tDESCRIPTION\tACTIVE\tCREATED\tLAST USED")
				for _, k := range keys {
					lastUsed := "-"
					if k.LastUsedAt != nil {
						lastUsed = k.LastUsedAt.Format(time.DateTime)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\n",
						k.ID, k.Key, k.Description, k.IsActive, k.CreatedAt.Format(time.DateTime), lastUsed)
				}
				return w.Flush()
			})
		},
	}
}

func newKeyToggleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Activate or deactivate an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid key id %q", args[0])
			}
			return withStore(opts, "key", func(a *app, store db.Service) error {
				key, err := store.ToggleAPIKey(cmd.Context(), uint(id))
				if err != nil {
					return fmt.Errorf("toggle api key %d: %w", id, err)
				}
				state := "deactivated"
				if key.IsActive {
					state = "activated"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key %d %s.\n", key.ID, state)
				return nil
			})
		},
	}
}

func withStore(opts *rootOptions, name string, fn func(*app, db.Service) error) error {
	a, err := loadApp(opts, name)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)
	return fn(a, store)
}
