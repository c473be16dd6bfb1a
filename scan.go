package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivescan/drivescan/internal/config"
	"github.com/drivescan/drivescan/internal/crawl"
	"github.com/drivescan/drivescan/internal/export"
	"github.com/drivescan/drivescan/internal/graph"
	"github.com/drivescan/drivescan/internal/secrets"
)

// httpClientTimeout bounds each request attempt. Prevents hung
// connections from stalling a scan indefinitely.
const httpClientTimeout = 30 * time.Second

// scanRootItemID addresses the drive root in the Graph API.
const scanRootItemID = "root"

func newScanCmd() *cobra.Command {
	var (
		flagTenantID     string
		flagClientID     string
		flagClientSecret string
		flagDriveID      string
		flagRootItem     string
		flagFormat       string
		flagOutput       string
		flagConcurrency  int
		flagBatch        bool
		flagBatchSize    int
		flagSkipDetails  bool
		flagFailFast     bool
		flagMaxRetries   int
		flagNoProgress   bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a drive into a JSON or CSV inventory",
		Long: `Scan enumerates a document library breadth-first, enriches every file
with its content hash and sensitivity label, and writes the inventory
to stdout or a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := resolvedCfg

			applyScanFlags(cmd, cfg, scanFlagValues{
				tenantID: flagTenantID, clientID: flagClientID,
				clientSecret: flagClientSecret, driveID: flagDriveID,
				format: flagFormat, output: flagOutput,
				concurrency: flagConcurrency, batch: flagBatch,
				batchSize: flagBatchSize, skipDetails: flagSkipDetails,
				failFast: flagFailFast, maxRetries: flagMaxRetries,
				noProgress: flagNoProgress,
			})

			if err := config.ValidateForScan(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runScan(ctx, cfg, flagRootItem)
		},
	}

	cmd.Flags().StringVar(&flagTenantID, "tenant", "", "Entra tenant ID")
	cmd.Flags().StringVar(&flagClientID, "client-id", "", "application (client) ID")
	cmd.Flags().StringVar(&flagClientSecret, "client-secret", "", "client secret reference (literal, env:NAME, or aws-sm:id[#key])")
	cmd.Flags().StringVar(&flagDriveID, "drive", "", "drive ID to scan")
	cmd.Flags().StringVar(&flagRootItem, "root", scanRootItemID, "item ID to scan from")
	cmd.Flags().StringVar(&flagFormat, "format", "", "output format (json or csv)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "parallel detail fetches")
	cmd.Flags().BoolVar(&flagBatch, "batch", false, "group detail fetches into $batch requests")
	cmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "items per $batch request (max 20)")
	cmd.Flags().BoolVar(&flagSkipDetails, "skip-enrichment", false, "skip per-item detail fetches")
	cmd.Flags().BoolVar(&flagFailFast, "fail-fast", false, "abort on the first throttle instead of backing off")
	cmd.Flags().IntVar(&flagMaxRetries, "max-retries", 0, "retry budget per failure class")
	cmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "disable the progress status line")

	return cmd
}

type scanFlagValues struct {
	tenantID, clientID, clientSecret, driveID string
	format, output                            string
	concurrency, batchSize, maxRetries        int
	batch, skipDetails, failFast, noProgress  bool
}

// applyScanFlags layers explicitly-set command flags over the resolved
// config. Changed() distinguishes --batch=false from an absent flag.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config, v scanFlagValues) {
	if v.tenantID != "" {
		cfg.Graph.TenantID = v.tenantID
	}

	if v.clientID != "" {
		cfg.Graph.ClientID = v.clientID
	}

	if v.clientSecret != "" {
		cfg.Graph.ClientSecret = v.clientSecret
	}

	if v.driveID != "" {
		cfg.Graph.DriveID = v.driveID
	}

	if v.format != "" {
		cfg.Scan.OutputFormat = v.format
	}

	if v.output != "" {
		cfg.Scan.OutputFile = v.output
	}

	if cmd.Flags().Changed("concurrency") {
		cfg.Scan.Concurrency = v.concurrency
	}

	if cmd.Flags().Changed("batch") {
		cfg.Scan.BatchMode = v.batch
	}

	if cmd.Flags().Changed("batch-size") {
		cfg.Scan.BatchSize = v.batchSize
	}

	if cmd.Flags().Changed("skip-enrichment") {
		cfg.Scan.SkipEnrichment = v.skipDetails
	}

	if cmd.Flags().Changed("fail-fast") {
		cfg.Graph.FailFast = v.failFast
	}

	if cmd.Flags().Changed("max-retries") {
		cfg.Graph.MaxRetries = v.maxRetries
	}

	if cmd.Flags().Changed("no-progress") {
		cfg.Scan.NoProgress = v.noProgress
	}
}

func runScan(ctx context.Context, cfg *config.Config, rootItemID string) error {
	logger := buildLogger()

	format, err := export.ParseFormat(cfg.Scan.OutputFormat)
	if err != nil {
		return err
	}

	resolver := secrets.NewResolver(nil, logger)

	clientSecret, err := resolver.Resolve(ctx, cfg.Graph.ClientSecret)
	if err != nil {
		return fmt.Errorf("resolving client secret: %w", err)
	}

	token := graph.NewClientCredentialsSource(graph.Credentials{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: clientSecret,
	}, logger)

	client := graph.NewClient(cfg.Graph.BaseURL, &http.Client{Timeout: httpClientTimeout},
		token, logger, graph.Options{
			MaxRetries: cfg.Graph.MaxRetries,
			FailFast:   cfg.Graph.FailFast,
		})

	emitter := crawl.NewEmitter()

	var consumer *crawl.Consumer
	if !cfg.Scan.NoProgress {
		consumer = crawl.NewConsumer(os.Stderr, cfg.Scan.ProgressIntervalDuration(), logger)
		consumer.Start(emitter.Events())
	}

	details, err := scanDrive(ctx, cfg, client, emitter, logger, rootItemID)

	emitter.Stop()

	if consumer != nil {
		counters := consumer.Wait()
		logger.Debug("progress counters",
			"containers", counters.Containers,
			"leaves", counters.Leaves,
			"details", counters.Details,
			"dropped_events", emitter.Dropped(),
		)
	}

	if err != nil {
		return err
	}

	logger.Info("scan complete", "details", len(details))

	return writeOutput(cfg.Scan.OutputFile, format, details)
}

// scanDrive runs the two phases: breadth-first enumeration, then
// bounded-concurrency enrichment.
func scanDrive(
	ctx context.Context,
	cfg *config.Config,
	client *graph.Client,
	emitter *crawl.Emitter,
	logger *slog.Logger,
	rootItemID string,
) ([]crawl.Detail, error) {
	crawler := crawl.NewCrawler(client, cfg.Graph.DriveID, emitter, logger)

	tree, err := crawler.Crawl(ctx, rootItemID)
	if err != nil {
		return nil, err
	}

	mode := crawl.ModePerItem
	if cfg.Scan.BatchMode {
		mode = crawl.ModeBatch
	}

	fetcher := crawl.NewFetcher(client, cfg.Graph.DriveID, crawl.FetcherOptions{
		Concurrency:    cfg.Scan.Concurrency,
		Mode:           mode,
		BatchSize:      cfg.Scan.BatchSize,
		SkipEnrichment: cfg.Scan.SkipEnrichment,
	}, emitter, logger)

	details, _, err := fetcher.FetchAll(ctx, tree.Leaves)

	return details, err
}

func writeOutput(path string, format export.Format, details []crawl.Detail) error {
	if path == "" {
		return export.Write(os.Stdout, format, details)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	if err := export.Write(f, format, details); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
