package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivescan/drivescan/internal/localindex"
)

// timeRound trims subsecond noise from the elapsed time shown to users.
const timeRound = 10 * time.Millisecond

func newIndexCmd() *cobra.Command {
	var (
		flagDatabase    string
		flagConcurrency int
		flagInclude     []string
		flagExclude     []string
	)

	cmd := &cobra.Command{
		Use:   "index <directory>",
		Short: "Index a local directory tree into SQLite",
		Long: `Index walks a local directory, computes SHA-256 and QuickXorHash
digests for every regular file, and records them in an embedded SQLite
database. Each invocation is a separate run, so local state can be
compared against drive inventories by hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := resolvedCfg

			if flagDatabase != "" {
				cfg.Index.Database = flagDatabase
			}

			if cmd.Flags().Changed("concurrency") {
				cfg.Index.HashConcurrency = flagConcurrency
			}

			if len(flagInclude) > 0 {
				cfg.Index.Include = flagInclude
			}

			if len(flagExclude) > 0 {
				cfg.Index.Exclude = flagExclude
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := buildLogger()

			dbPath := cfg.Index.Database
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}

			store, err := localindex.NewStore(dbPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			indexer := localindex.NewIndexer(store, localindex.IndexerOptions{
				Concurrency: cfg.Index.HashConcurrency,
				Walk: localindex.WalkOptions{
					Include: cfg.Index.Include,
					Exclude: cfg.Index.Exclude,
				},
			}, logger)

			summary, err := indexer.Index(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files (%d bytes) in %s, run %s\n",
				summary.FileCount, summary.TotalBytes, summary.Elapsed.Round(timeRound), summary.RunID)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagDatabase, "db", "", "index database path")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "parallel file hashers")
	cmd.Flags().StringSliceVar(&flagInclude, "include", nil, "only index files matching these patterns")
	cmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "skip files and directories matching these patterns")

	return cmd
}
