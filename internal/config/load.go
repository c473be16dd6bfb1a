package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports zero-config
// use where everything arrives via environment and flags.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// CLI flags always win, matching user expectations for one-off
// overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := env.ConfigPath
	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	var (
		cfg *Config
		err error
	)

	if cfgPath != "" {
		cfg, err = Load(cfgPath)
	} else {
		cfg, err = LoadOrDefault(DefaultConfigPath())
	}

	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.TenantID != "" {
		cfg.Graph.TenantID = env.TenantID
	}

	if env.ClientID != "" {
		cfg.Graph.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.Graph.ClientSecret = env.ClientSecret
	}

	if env.DriveID != "" {
		cfg.Graph.DriveID = env.DriveID
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.TenantID != "" {
		cfg.Graph.TenantID = cli.TenantID
	}

	if cli.ClientID != "" {
		cfg.Graph.ClientID = cli.ClientID
	}

	if cli.ClientSecret != "" {
		cfg.Graph.ClientSecret = cli.ClientSecret
	}

	if cli.DriveID != "" {
		cfg.Graph.DriveID = cli.DriveID
	}

	if cli.Concurrency != nil {
		cfg.Scan.Concurrency = *cli.Concurrency
	}

	if cli.BatchMode != nil {
		cfg.Scan.BatchMode = *cli.BatchMode
	}

	if cli.SkipEnrichment != nil {
		cfg.Scan.SkipEnrichment = *cli.SkipEnrichment
	}

	if cli.OutputFormat != "" {
		cfg.Scan.OutputFormat = cli.OutputFormat
	}

	if cli.OutputFile != "" {
		cfg.Scan.OutputFile = cli.OutputFile
	}
}
