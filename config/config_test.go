package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, "_INBOX", cfg.InboxPrefix)
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().URL, cfg.URL)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: tls://broker.example.com:4443
name: ingest
verbose: true
retry_interval: 500ms
retry_count: -1
logging:
  level: debug
  format: json
  file: /var/log/ingest-diag.log
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tls://broker.example.com:4443", cfg.URL)
	assert.Equal(t, "ingest", cfg.Name)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, -1, cfg.RetryCount)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/log/ingest-diag.log", cfg.Logging.File)
}

func TestOptionsBuildsFileSink(t *testing.T) {
	cfg := Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "diag.log")

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	_, err = os.Stat(cfg.Logging.File)
	assert.NoError(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yml")
	require.NoError(t, os.WriteFile(path, []byte("url: nats://file-wins:4222\n"), 0644))

	t.Setenv("NATSIO_URL", "ws://env-wins:8080")
	t.Setenv("NATSIO_RETRY_COUNT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://env-wins:8080", cfg.URL)
	assert.Equal(t, 3, cfg.RetryCount)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.URL = "http://x" }},
		{"zero timeout", func(c *Config) { c.ConnectTimeout = 0 }},
		{"zero retry interval", func(c *Config) { c.RetryInterval = 0 }},
		{"retry count below -1", func(c *Config) { c.RetryCount = -2 }},
		{"empty inbox prefix", func(c *Config) { c.InboxPrefix = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "screaming" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOptionsTranslation(t *testing.T) {
	cfg := Default()
	cfg.Verbose = true
	cfg.Name = "svc"
	cfg.NKeySeed = "SUACSSL3UAHUDXKFSNVUZRF5UHPMWZ6BFDTJ7M6USDXIEDNPPQYYYCU3VY"

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}
