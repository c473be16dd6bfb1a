package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsPass(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidateForScan_RequiresCredentials(t *testing.T) {
	cfg := DefaultConfig()

	err := ValidateForScan(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph.tenant_id")
	assert.Contains(t, err.Error(), "graph.client_id")
	assert.Contains(t, err.Error(), "graph.client_secret")
	assert.Contains(t, err.Error(), "graph.drive_id")

	cfg.Graph.TenantID = "t"
	cfg.Graph.ClientID = "c"
	cfg.Graph.ClientSecret = "s"
	cfg.Graph.DriveID = "d"
	assert.NoError(t, ValidateForScan(cfg))
}

func TestValidate_BadBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.BaseURL = "ftp://example.com"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph.base_url")
}

func TestValidate_BadGlobPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Index.Exclude = []string{"[unclosed"}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[unclosed")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"verbose", 0, true},
		{"", 0, true},
	}

	for _, tc := range tests {
		got, err := ParseLogLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}

		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestProgressIntervalDuration(t *testing.T) {
	s := ScanConfig{ProgressInterval: "500ms"}
	assert.Equal(t, "500ms", s.ProgressIntervalDuration().String())

	s.ProgressInterval = "nonsense"
	assert.Equal(t, "2s", s.ProgressIntervalDuration().String())
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"concurency", "concurrency", 1},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, levenshtein(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}
