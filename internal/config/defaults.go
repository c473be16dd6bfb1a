package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work without any config file as long as the Graph
// credentials arrive via environment or flags.
const (
	defaultBaseURL          = "https://graph.microsoft.com/v1.0"
	defaultMaxRetries       = 6
	defaultConcurrency      = 8
	defaultBatchSize        = 20
	defaultOutputFormat     = "json"
	defaultProgressInterval = "2s"
	defaultDatabase         = "drivescan-index.db"
	defaultHashConcurrency  = 4
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			BaseURL:    defaultBaseURL,
			MaxRetries: defaultMaxRetries,
		},
		Scan: ScanConfig{
			Concurrency:      defaultConcurrency,
			BatchSize:        defaultBatchSize,
			OutputFormat:     defaultOutputFormat,
			ProgressInterval: defaultProgressInterval,
		},
		Index: IndexConfig{
			Database:        defaultDatabase,
			HashConcurrency: defaultHashConcurrency,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
