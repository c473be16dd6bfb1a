// Package config implements TOML configuration loading, validation, and
// environment overrides for drivescan. Settings follow a three-layer
// override chain (defaults -> config file -> environment/CLI flags);
// unknown keys in the file are fatal, with "did you mean?" suggestions.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Graph   GraphConfig   `toml:"graph"`
	Scan    ScanConfig    `toml:"scan"`
	Index   IndexConfig   `toml:"index"`
	Logging LoggingConfig `toml:"logging"`
}

// GraphConfig holds the Microsoft Graph connection settings. The client
// secret is a reference: a literal value, "env:NAME", or
// "aws-sm:secret-id[#json-key]".
type GraphConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	DriveID      string `toml:"drive_id"`
	BaseURL      string `toml:"base_url"`
	MaxRetries   int    `toml:"max_retries"`
	FailFast     bool   `toml:"fail_fast"`
}

// ScanConfig controls the enumeration and enrichment phases.
type ScanConfig struct {
	Concurrency      int    `toml:"concurrency"`
	BatchMode        bool   `toml:"batch_mode"`
	BatchSize        int    `toml:"batch_size"`
	SkipEnrichment   bool   `toml:"skip_enrichment"`
	OutputFormat     string `toml:"output_format"`
	OutputFile       string `toml:"output_file"`
	ProgressInterval string `toml:"progress_interval"`
	NoProgress       bool   `toml:"no_progress"`
}

// IndexConfig controls the local directory indexer.
type IndexConfig struct {
	Database        string   `toml:"database"`
	HashConcurrency int      `toml:"hash_concurrency"`
	Include         []string `toml:"include"`
	Exclude         []string `toml:"exclude"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value" — --batch=false is different from
// not passing --batch at all.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)

	TenantID     string
	ClientID     string
	ClientSecret string
	DriveID      string

	Concurrency    *int
	BatchMode      *bool
	SkipEnrichment *bool
	OutputFormat   string
	OutputFile     string
}
