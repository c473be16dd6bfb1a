package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "DRIVESCAN_CONFIG"
	EnvTenantID     = "DRIVESCAN_TENANT_ID"
	EnvClientID     = "DRIVESCAN_CLIENT_ID"
	EnvClientSecret = "DRIVESCAN_CLIENT_SECRET"
	EnvDriveID      = "DRIVESCAN_DRIVE_ID"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string
	TenantID     string
	ClientID     string
	ClientSecret string
	DriveID      string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		TenantID:     os.Getenv(EnvTenantID),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		DriveID:      os.Getenv(EnvDriveID),
	}
}
