package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
)

// Validation range constants.
const (
	minConcurrency      = 1
	maxConcurrency      = 64
	minBatchSize        = 1
	maxBatchSize        = 20 // Graph $batch sub-request limit
	maxRetriesCeiling   = 10
	minProgressInterval = 100 * time.Millisecond
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateGraph(&cfg.Graph)...)
	errs = append(errs, validateScan(&cfg.Scan)...)
	errs = append(errs, validateIndex(&cfg.Index)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateForScan additionally requires the Graph credentials, which are
// optional for commands that never talk to the API.
func ValidateForScan(cfg *Config) error {
	var errs []error

	if cfg.Graph.TenantID == "" {
		errs = append(errs, errors.New("graph.tenant_id: required for scanning"))
	}

	if cfg.Graph.ClientID == "" {
		errs = append(errs, errors.New("graph.client_id: required for scanning"))
	}

	if cfg.Graph.ClientSecret == "" {
		errs = append(errs, errors.New("graph.client_secret: required for scanning"))
	}

	if cfg.Graph.DriveID == "" {
		errs = append(errs, errors.New("graph.drive_id: required for scanning"))
	}

	return errors.Join(errs...)
}

func validateGraph(g *GraphConfig) []error {
	var errs []error

	if g.BaseURL == "" {
		errs = append(errs, errors.New("graph.base_url: must not be empty"))
	} else if !strings.HasPrefix(g.BaseURL, "https://") && !strings.HasPrefix(g.BaseURL, "http://") {
		errs = append(errs, fmt.Errorf("graph.base_url: %q is not an HTTP(S) URL", g.BaseURL))
	}

	if g.MaxRetries < 0 || g.MaxRetries > maxRetriesCeiling {
		errs = append(errs, fmt.Errorf("graph.max_retries: must be 0-%d, got %d", maxRetriesCeiling, g.MaxRetries))
	}

	return errs
}

func validateScan(s *ScanConfig) []error {
	var errs []error

	if s.Concurrency < minConcurrency || s.Concurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("scan.concurrency: must be %d-%d, got %d",
			minConcurrency, maxConcurrency, s.Concurrency))
	}

	if s.BatchSize < minBatchSize || s.BatchSize > maxBatchSize {
		errs = append(errs, fmt.Errorf("scan.batch_size: must be %d-%d, got %d",
			minBatchSize, maxBatchSize, s.BatchSize))
	}

	switch s.OutputFormat {
	case "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("scan.output_format: must be json or csv, got %q", s.OutputFormat))
	}

	if d, err := time.ParseDuration(s.ProgressInterval); err != nil {
		errs = append(errs, fmt.Errorf("scan.progress_interval: %w", err))
	} else if d < minProgressInterval {
		errs = append(errs, fmt.Errorf("scan.progress_interval: must be at least %s, got %s",
			minProgressInterval, d))
	}

	return errs
}

func validateIndex(ix *IndexConfig) []error {
	var errs []error

	if ix.Database == "" {
		errs = append(errs, errors.New("index.database: must not be empty"))
	}

	if ix.HashConcurrency < minConcurrency || ix.HashConcurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("index.hash_concurrency: must be %d-%d, got %d",
			minConcurrency, maxConcurrency, ix.HashConcurrency))
	}

	for _, pat := range append(append([]string{}, ix.Include...), ix.Exclude...) {
		if _, err := path.Match(pat, "probe"); err != nil {
			errs = append(errs, fmt.Errorf("index pattern %q: %w", pat, err))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if _, err := ParseLogLevel(l.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.log_format: must be auto, text or json, got %q", l.LogFormat))
	}

	return errs
}

// ParseLogLevel maps a config string to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.log_level: must be debug, info, warn or error, got %q", s)
	}
}

// ProgressIntervalDuration returns the parsed progress interval. Call after
// Validate; an unparseable value falls back to the default.
func (s *ScanConfig) ProgressIntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.ProgressInterval)
	if err != nil {
		d, _ = time.ParseDuration(defaultProgressInterval)
	}

	return d
}
