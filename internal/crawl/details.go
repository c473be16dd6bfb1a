package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/drivescan/drivescan/internal/graph"
)

// Default tuning for the enrichment phase.
const (
	defaultConcurrency = 8
	defaultBatchSize   = graph.BatchLimit
)

// DetailSource provides the enrichment calls. graph.Client satisfies it.
type DetailSource interface {
	GetItemDetail(ctx context.Context, driveID, itemID string) (graph.Enrichment, error)
	BatchItemDetails(ctx context.Context, driveID string, itemIDs []string) (map[string]graph.BatchOutcome, error)
}

// Mode selects the enrichment strategy for a run. The two strategies
// are mutually exclusive and chosen up front.
type Mode int

const (
	// ModePerItem issues one enrichment call per leaf.
	ModePerItem Mode = iota
	// ModeBatch groups leaves into $batch envelopes, falling back to
	// per-item fetches for any group whose batch call fails outright.
	ModeBatch
)

// BatchFailure wraps the error from a grouped request that failed as a
// whole (throttle exhaustion, transport failure). It triggers per-item
// fallback for the group's members instead of losing them.
type BatchFailure struct {
	GroupSize int
	Err       error
}

func (e *BatchFailure) Error() string {
	return fmt.Sprintf("crawl: batch of %d failed: %v", e.GroupSize, e.Err)
}

func (e *BatchFailure) Unwrap() error {
	return e.Err
}

// FetcherOptions tunes the enrichment phase. The zero value uses
// defaults with per-item mode.
type FetcherOptions struct {
	Concurrency int
	Mode        Mode
	BatchSize   int

	// SkipEnrichment builds details from listing-page fields only,
	// issuing no per-item calls at all.
	SkipEnrichment bool
}

// Report summarizes an enrichment run.
type Report struct {
	Completed      int // details emitted, including partial ones
	Partial        int // details missing enrichment due to a local failure
	BatchFallbacks int // groups re-fetched per-item after a whole-batch failure
}

// Fetcher enriches leaves with bounded concurrency. Per-item failures
// degrade the affected Detail and never abort the run; the output
// always contains exactly one Detail per input leaf unless the context
// is canceled.
type Fetcher struct {
	source   DetailSource
	driveID  string
	opts     FetcherOptions
	progress *Emitter
	logger   *slog.Logger
}

// NewFetcher builds a detail fetcher. progress may be nil.
func NewFetcher(source DetailSource, driveID string, opts FetcherOptions, progress *Emitter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	if opts.BatchSize <= 0 || opts.BatchSize > graph.BatchLimit {
		opts.BatchSize = defaultBatchSize
	}

	return &Fetcher{
		source:   source,
		driveID:  driveID,
		opts:     opts,
		progress: progress,
		logger:   logger,
	}
}

// FetchAll enriches every leaf and returns one Detail per input, in
// no particular order. Only context cancellation aborts the run.
func (f *Fetcher) FetchAll(ctx context.Context, leaves []graph.Item) ([]Detail, *Report, error) {
	f.progress.Emit(EventSetInitial, len(leaves))

	f.logger.Info("starting detail enrichment",
		slog.Int("leaves", len(leaves)),
		slog.Int("concurrency", f.opts.Concurrency),
		slog.Bool("batch_mode", f.opts.Mode == ModeBatch),
	)

	var (
		mu      gosync.Mutex
		details = make([]Detail, 0, len(leaves))
		report  Report
	)

	emit := func(d Detail, partial bool) {
		mu.Lock()
		details = append(details, d)
		report.Completed++

		if partial {
			report.Partial++
		}
		mu.Unlock()

		f.progress.Emit(EventAddDetails, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)

	if f.opts.Mode == ModeBatch && !f.opts.SkipEnrichment {
		f.dispatchBatches(gctx, g, leaves, emit, &mu, &report)
	} else {
		f.dispatchPerItem(gctx, g, leaves, emit)
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("crawl: enrichment aborted: %w", err)
	}

	f.logger.Info("detail enrichment complete",
		slog.Int("completed", report.Completed),
		slog.Int("partial", report.Partial),
		slog.Int("batch_fallbacks", report.BatchFallbacks),
	)

	return details, &report, nil
}

// dispatchPerItem schedules one gated worker per leaf.
func (f *Fetcher) dispatchPerItem(ctx context.Context, g *errgroup.Group, leaves []graph.Item, emit func(Detail, bool)) {
	for i := range leaves {
		leaf := &leaves[i]

		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			d, partial := f.fetchOne(ctx, leaf)
			emit(d, partial)

			return nil
		})
	}
}

// fetchOne builds the detail for one leaf, degrading to listing-page
// fields when the enrichment call fails.
func (f *Fetcher) fetchOne(ctx context.Context, leaf *graph.Item) (Detail, bool) {
	d := detailFromItem(leaf)

	if f.opts.SkipEnrichment {
		return d, false
	}

	enr, err := f.source.GetItemDetail(ctx, f.driveID, leaf.ID)
	if err != nil {
		f.logger.Warn("detail fetch failed, keeping listing fields",
			slog.String("item_id", leaf.ID),
			slog.String("path", d.Path),
			slog.String("error", err.Error()),
		)

		return d, true
	}

	d.applyEnrichment(enr)

	return d, false
}

// dispatchBatches schedules one gated worker per group of leaves.
func (f *Fetcher) dispatchBatches(
	ctx context.Context,
	g *errgroup.Group,
	leaves []graph.Item,
	emit func(Detail, bool),
	mu *gosync.Mutex,
	report *Report,
) {
	for start := 0; start < len(leaves); start += f.opts.BatchSize {
		end := min(start+f.opts.BatchSize, len(leaves))
		group := leaves[start:end]

		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			ids := make([]string, len(group))
			for i := range group {
				ids[i] = group[i].ID
			}

			outcomes, err := f.source.BatchItemDetails(ctx, f.driveID, ids)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				bf := &BatchFailure{GroupSize: len(group), Err: err}
				f.logger.Warn("grouped request failed outright, falling back to per-item",
					slog.Int("group_size", bf.GroupSize),
					slog.String("error", err.Error()),
				)

				mu.Lock()
				report.BatchFallbacks++
				mu.Unlock()

				// Fallback keeps the gate slot: the group's members are
				// re-fetched sequentially so total fan-out stays bounded.
				for i := range group {
					if ctx.Err() != nil {
						return ctx.Err()
					}

					d, partial := f.fetchOne(ctx, &group[i])
					emit(d, partial)
				}

				return nil
			}

			for i := range group {
				leaf := &group[i]
				d := detailFromItem(leaf)

				outcome, ok := outcomes[leaf.ID]
				switch {
				case !ok:
					f.logger.Warn("batch response missing sub-response",
						slog.String("item_id", leaf.ID),
					)

					emit(d, true)
				case outcome.Status < http.StatusOK || outcome.Status >= http.StatusMultipleChoices:
					emit(d, true)
				default:
					d.applyEnrichment(outcome.Enrichment)
					emit(d, false)
				}
			}

			return nil
		})
	}
}
