package localindex

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drivescan/drivescan/pkg/quickxorhash"
)

const (
	defaultHashConcurrency = 4
	insertBatchSize        = 200
)

// Summary is the outcome of one indexing pass.
type Summary struct {
	RunID      string
	FileCount  int64
	TotalBytes int64
	Elapsed    time.Duration
}

// IndexerOptions tunes an indexing pass. The zero value uses defaults.
type IndexerOptions struct {
	Concurrency int
	Walk        WalkOptions
}

// Indexer walks a directory tree and records every regular file with
// its SHA-256 and QuickXorHash digests. Hashing is fan-out bounded;
// database writes happen in batches on the coordinating goroutine.
type Indexer struct {
	store  *Store
	opts   IndexerOptions
	logger *slog.Logger
}

// NewIndexer builds an indexer over store.
func NewIndexer(store *Store, opts IndexerOptions, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultHashConcurrency
	}

	return &Indexer{store: store, opts: opts, logger: logger}
}

// Index runs one pass over root. Unreadable files abort the pass: a
// partial index silently missing files is worse than no index.
func (ix *Indexer) Index(ctx context.Context, root string) (*Summary, error) {
	start := time.Now()

	entries, err := Walk(ctx, root, ix.opts.Walk)
	if err != nil {
		return nil, err
	}

	run, err := ix.store.BeginRun(ctx, root)
	if err != nil {
		return nil, err
	}

	ix.logger.Info("indexing local tree",
		slog.String("run_id", run.ID),
		slog.String("root", root),
		slog.Int("files", len(entries)),
		slog.Int("concurrency", ix.opts.Concurrency),
	)

	records := make(chan FileRecord, ix.opts.Concurrency)

	g, gctx := errgroup.WithContext(ctx)

	hashers, hctx := errgroup.WithContext(gctx)
	hashers.SetLimit(ix.opts.Concurrency)

	g.Go(func() error {
		defer close(records)

		for i := range entries {
			entry := entries[i]

			hashers.Go(func() error {
				rec, err := hashEntry(hctx, run.ID, entry)
				if err != nil {
					return err
				}

				select {
				case records <- rec:
					return nil
				case <-hctx.Done():
					return hctx.Err()
				}
			})
		}

		return hashers.Wait()
	})

	var summary Summary

	g.Go(func() error {
		batch := make([]FileRecord, 0, insertBatchSize)

		flush := func() error {
			if err := ix.store.InsertFiles(gctx, batch); err != nil {
				return err
			}

			batch = batch[:0]

			return nil
		}

		for rec := range records {
			summary.FileCount++
			summary.TotalBytes += rec.Size

			batch = append(batch, rec)
			if len(batch) >= insertBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		return flush()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ix.store.FinishRun(ctx, run.ID, summary.FileCount, summary.TotalBytes); err != nil {
		return nil, err
	}

	summary.RunID = run.ID
	summary.Elapsed = time.Since(start)

	ix.logger.Info("index run complete",
		slog.String("run_id", summary.RunID),
		slog.Int64("files", summary.FileCount),
		slog.Int64("bytes", summary.TotalBytes),
		slog.Duration("elapsed", summary.Elapsed),
	)

	return &summary, nil
}

// hashEntry computes both digests in one read of the file.
func hashEntry(ctx context.Context, runID string, entry Entry) (FileRecord, error) {
	if ctx.Err() != nil {
		return FileRecord{}, ctx.Err()
	}

	f, err := os.Open(entry.AbsPath)
	if err != nil {
		return FileRecord{}, fmt.Errorf("localindex: open %s: %w", entry.Path, err)
	}
	defer f.Close()

	sha := sha256.New()
	qx := quickxorhash.New()

	if _, err := io.Copy(io.MultiWriter(sha, qx), f); err != nil {
		return FileRecord{}, fmt.Errorf("localindex: hashing %s: %w", entry.Path, err)
	}

	return FileRecord{
		RunID:        runID,
		Path:         entry.Path,
		Name:         path.Base(entry.Path),
		Size:         entry.Size,
		SHA256:       hex.EncodeToString(sha.Sum(nil)),
		QuickXorHash: base64.StdEncoding.EncodeToString(qx.Sum(nil)),
		ModifiedAt:   time.Unix(0, entry.ModTime),
		IndexedAt:    time.Now().UTC(),
	}, nil
}
