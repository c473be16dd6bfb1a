// Package localindex builds a content index of a local directory tree
// in an embedded SQLite database: one row per regular file with its
// size, SHA-256 and QuickXorHash digests, keyed by index run. Runs are
// immutable snapshots, so two runs over the same tree can be diffed by
// hash.
package localindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

const walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("localindex: run not found")

// Run is one indexing pass over a root directory.
type Run struct {
	ID         string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	FileCount  int64
	TotalBytes int64
}

// FileRecord is one indexed regular file.
type FileRecord struct {
	RunID        string
	Path         string // slash-separated, relative to the run root
	Name         string
	Size         int64
	SHA256       string
	QuickXorHash string
	ModifiedAt   time.Time
	IndexedAt    time.Time
}

// Store persists index runs in SQLite with WAL mode. Use ":memory:"
// as the path for tests.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stmts statements
}

type statements struct {
	insertRun, finishRun, getRun, latestRun *sql.Stmt
	insertFile, listFiles, findByHash      *sql.Stmt
}

// NewStore opens the database at dbPath, applies migrations, and
// prepares repeated statements.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening index database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("localindex: open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("localindex: prepare statements: %w", err)
	}

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = NORMAL", "synchronous NORMAL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("localindex: set pragma %s: %w", p.desc, err)
		}
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	prepare := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}

		*dst, err = s.db.PrepareContext(ctx, query)
	}

	prepare(&s.stmts.insertRun,
		`INSERT INTO runs (id, root, started_at) VALUES (?, ?, ?)`)
	prepare(&s.stmts.finishRun,
		`UPDATE runs SET finished_at = ?, file_count = ?, total_bytes = ? WHERE id = ?`)
	prepare(&s.stmts.getRun,
		`SELECT id, root, started_at, finished_at, file_count, total_bytes FROM runs WHERE id = ?`)
	prepare(&s.stmts.latestRun,
		`SELECT id, root, started_at, finished_at, file_count, total_bytes
		 FROM runs WHERE finished_at IS NOT NULL ORDER BY started_at DESC LIMIT 1`)
	prepare(&s.stmts.insertFile,
		`INSERT INTO files (run_id, path, name, size, sha256, quick_xor_hash, modified_at, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, path) DO UPDATE SET
		   size = excluded.size, sha256 = excluded.sha256,
		   quick_xor_hash = excluded.quick_xor_hash,
		   modified_at = excluded.modified_at, indexed_at = excluded.indexed_at`)
	prepare(&s.stmts.listFiles,
		`SELECT run_id, path, name, size, sha256, quick_xor_hash, modified_at, indexed_at
		 FROM files WHERE run_id = ? ORDER BY path`)
	prepare(&s.stmts.findByHash,
		`SELECT run_id, path, name, size, sha256, quick_xor_hash, modified_at, indexed_at
		 FROM files WHERE run_id = ? AND (sha256 = ? OR quick_xor_hash = ?) ORDER BY path`)

	return err
}

// BeginRun records the start of a new indexing pass and returns it.
func (s *Store) BeginRun(ctx context.Context, root string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: time.Now().UTC(),
	}

	if _, err := s.stmts.insertRun.ExecContext(ctx, run.ID, run.Root, run.StartedAt.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("localindex: begin run: %w", err)
	}

	return run, nil
}

// FinishRun marks the run complete with its final totals.
func (s *Store) FinishRun(ctx context.Context, runID string, fileCount, totalBytes int64) error {
	res, err := s.stmts.finishRun.ExecContext(ctx,
		time.Now().UTC().Format(time.RFC3339Nano), fileCount, totalBytes, runID)
	if err != nil {
		return fmt.Errorf("localindex: finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("localindex: finish run: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return nil
}

// GetRun loads one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	run, err := scanRun(s.stmts.getRun.QueryRowContext(ctx, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return run, err
}

// LatestRun loads the most recently started finished run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	run, err := scanRun(s.stmts.latestRun.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}

	return run, err
}

func scanRun(row *sql.Row) (*Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)

	if err := row.Scan(&run.ID, &run.Root, &started, &finished, &run.FileCount, &run.TotalBytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("localindex: scan run: %w", err)
	}

	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)

	if finished.Valid {
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}

	return &run, nil
}

// InsertFiles writes a batch of file records in one transaction.
func (s *Store) InsertFiles(ctx context.Context, records []FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localindex: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.stmts.insertFile)

	for i := range records {
		r := &records[i]

		_, err := stmt.ExecContext(ctx,
			r.RunID, r.Path, r.Name, r.Size, r.SHA256, r.QuickXorHash,
			r.ModifiedAt.UTC().Format(time.RFC3339Nano),
			r.IndexedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("localindex: insert %s: %w", r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("localindex: commit batch: %w", err)
	}

	return nil
}

// ListFiles returns every record of a run, path-sorted.
func (s *Store) ListFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := s.stmts.listFiles.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("localindex: list files: %w", err)
	}

	return collectFiles(rows)
}

// FindByHash returns the run's records matching either digest.
func (s *Store) FindByHash(ctx context.Context, runID, hash string) ([]FileRecord, error) {
	rows, err := s.stmts.findByHash.QueryContext(ctx, runID, hash, hash)
	if err != nil {
		return nil, fmt.Errorf("localindex: find by hash: %w", err)
	}

	return collectFiles(rows)
}

func collectFiles(rows *sql.Rows) ([]FileRecord, error) {
	defer rows.Close()

	var records []FileRecord

	for rows.Next() {
		var (
			r                 FileRecord
			modified, indexed string
		)

		if err := rows.Scan(&r.RunID, &r.Path, &r.Name, &r.Size, &r.SHA256,
			&r.QuickXorHash, &modified, &indexed); err != nil {
			return nil, fmt.Errorf("localindex: scan file: %w", err)
		}

		r.ModifiedAt, _ = time.Parse(time.RFC3339Nano, modified)
		r.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexed)

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("localindex: iterate files: %w", err)
	}

	return records, nil
}

// Close releases prepared statements and the database handle.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmts.insertRun, s.stmts.finishRun, s.stmts.getRun, s.stmts.latestRun,
		s.stmts.insertFile, s.stmts.listFiles, s.stmts.findByHash,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}
