package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "skytrace", cfg.Agent.Service)
	assert.Contains(t, cfg.Agent.Instance, "@")
	assert.Equal(t, "127.0.0.1:11800", cfg.Collector.Address)
	assert.Equal(t, ProtocolGRPC, cfg.Collector.Protocol)
	assert.Equal(t, 0, cfg.Reporter.QueueLimit)
	assert.Equal(t, 5*time.Second, cfg.CDS.Interval)
	assert.True(t, cfg.CDS.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SW_AGENT_NAME", "checkout")
	t.Setenv("SW_AGENT_INSTANCE_NAME", "checkout-0")
	t.Setenv("SW_AGENT_COLLECTOR_BACKEND_SERVICES", "oap:11800")
	t.Setenv("SW_AGENT_AUTHENTICATION", "secret")
	t.Setenv("SW_AGENT_IGNORE_SUFFIX", ".jpg,.css")
	t.Setenv("SW_AGENT_REPORTER_QUEUE_LIMIT", "1024")
	t.Setenv("SW_AGENT_CDS_INTERVAL", "20s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "checkout", cfg.Agent.Service)
	assert.Equal(t, "checkout-0", cfg.Agent.Instance)
	assert.Equal(t, "oap:11800", cfg.Collector.Address)
	assert.Equal(t, "secret", cfg.Collector.Authentication)
	assert.Equal(t, []string{".jpg", ".css"}, cfg.Agent.IgnoreSuffix)
	assert.Equal(t, 1024, cfg.Reporter.QueueLimit)
	assert.Equal(t, 20*time.Second, cfg.CDS.Interval)
	// untouched values keep their defaults
	assert.Equal(t, ProtocolGRPC, cfg.Collector.Protocol)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
agent:
  service: payments
  ignore_suffix:
    - .ico
collector:
  address: collector:11800
  protocol: grpc
reporter:
  queue_limit: 10
  stream_batch_size: 50
cds:
  enabled: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SW_AGENT_COLLECTOR_BACKEND_SERVICES", "override:11800")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "payments", cfg.Agent.Service)
	assert.Equal(t, []string{".ico"}, cfg.Agent.IgnoreSuffix)
	assert.Equal(t, "override:11800", cfg.Collector.Address)
	assert.Equal(t, 10, cfg.Reporter.QueueLimit)
	assert.Equal(t, 50, cfg.Reporter.StreamBatchSize)
	assert.False(t, cfg.CDS.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Reporter.ShutdownTimeout)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	content := `
[agent]
service = "inventory"
ignore_suffix = [".png"]

[collector]
address = "oap.internal:11800"
compression = "gzip"

[reporter]
queue_limit = 50

[admin]
allow_origins = ["https://ops.example.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "inventory", cfg.Agent.Service)
	assert.Equal(t, []string{".png"}, cfg.Agent.IgnoreSuffix)
	assert.Equal(t, "oap.internal:11800", cfg.Collector.Address)
	assert.Equal(t, CompressionGzip, cfg.Collector.Compression)
	assert.Equal(t, 50, cfg.Reporter.QueueLimit)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.Admin.AllowOrigins)
	assert.Equal(t, 20, cfg.Admin.RateLimit)
	assert.Equal(t, 5*time.Second, cfg.CDS.Interval)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: [unterminated"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[agent\nservice ="), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service", func(c *Config) { c.Agent.Service = "" }},
		{"empty address", func(c *Config) { c.Collector.Address = "" }},
		{"negative queue limit", func(c *Config) { c.Reporter.QueueLimit = -1 }},
		{"zero initial interval", func(c *Config) { c.Reconnect.InitialInterval = 0 }},
		{"max below initial", func(c *Config) { c.Reconnect.MaxInterval = time.Millisecond }},
		{"multiplier below one", func(c *Config) { c.Reconnect.Multiplier = 0.5 }},
		{"cds without interval", func(c *Config) { c.CDS.Interval = 0 }},
		{"unknown compression", func(c *Config) { c.Collector.Compression = "snappy" }},
		{"negative rate limit", func(c *Config) { c.Admin.RateLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("SW_AGENT_REPORTER_QUEUE_LIMIT", "not-a-number")

	cfg := LoadOrDefault()
	require.NotNil(t, cfg)
	assert.Equal(t, 0, cfg.Reporter.QueueLimit)
}
