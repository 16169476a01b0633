package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{
			"-base-url", "https://api.test/", "-user", "u1", "-timeout", "10",
			"-journal-driver", "pgx", "-journal-dsn", "postgres://db",
			"-s3-region", "eu-west-1", "-s3-endpoint", "http://minio:9000",
			"-log-level", "debug", "-log-format", "json", "-metrics-addr", ":9100",
		}, expectPanic: false,
			expected: &Config{
				BaseURL: "https://api.test/", User: "u1", RequestTimeout: 10 * time.Second,
				JournalDriver: "pgx", JournalDSN: "postgres://db",
				S3Region: "eu-west-1", S3Endpoint: "http://minio:9000",
				LogLevel: "debug", LogFormat: "json", MetricsAddr: ":9100",
			}},
		{name: "Test2 foreign flags ignored", args: []string{"-listing", "77", "-timeout=3", "-manifest", "m.json"}, expectPanic: false,
			expected: &Config{RequestTimeout: 3 * time.Second}},
		{name: "Test3 incorrect timeout", args: []string{"-timeout", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config, tt.args) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config, tt.args) })
			}
		})
	}
}
