package config

import (
	"os"
	"path/filepath"
)

const (
	appDirName     = "drivescan"
	configFileName = "config.toml"
)

// DefaultConfigPath returns the platform config file location,
// e.g. ~/.config/drivescan/config.toml on Linux. Falls back to the
// working directory when the user config dir cannot be determined.
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return configFileName
	}

	return filepath.Join(base, appDirName, configFileName)
}

// DefaultDatabasePath returns the default location for the local index
// database, under the platform data directory when available.
func DefaultDatabasePath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return defaultDatabase
	}

	return filepath.Join(base, appDirName, defaultDatabase)
}
