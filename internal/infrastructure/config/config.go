package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolREST = "rest"

	CompressionNone = ""
	CompressionGzip = "gzip"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds all agent configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Collector CollectorConfig `yaml:"collector" toml:"collector"`
	Reporter  ReporterConfig  `yaml:"reporter" toml:"reporter"`
	Reconnect ReconnectConfig `yaml:"reconnect" toml:"reconnect"`
	CDS       CDSConfig       `yaml:"cds" toml:"cds"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	Admin     AdminConfig     `yaml:"admin" toml:"admin"`
}

// AgentConfig identifies the instrumented service.
type AgentConfig struct {
	Service      string   `envconfig:"SW_AGENT_NAME" yaml:"service" toml:"service"`
	Instance     string   `envconfig:"SW_AGENT_INSTANCE_NAME" yaml:"instance" toml:"instance"`
	IgnoreSuffix []string `envconfig:"SW_AGENT_IGNORE_SUFFIX" yaml:"ignore_suffix" toml:"ignore_suffix"`
}

// CollectorConfig holds the OAP connection settings.
type CollectorConfig struct {
	Address        string `envconfig:"SW_AGENT_COLLECTOR_BACKEND_SERVICES" yaml:"address" toml:"address"`
	Authentication string `envconfig:"SW_AGENT_AUTHENTICATION" yaml:"authentication" toml:"authentication"`
	Protocol       string `envconfig:"SW_AGENT_PROTOCOL" yaml:"protocol" toml:"protocol"`
	MaxMessageSize int    `envconfig:"SW_AGENT_COLLECTOR_MAX_MESSAGE_SIZE" yaml:"max_message_size" toml:"max_message_size"`
	// Compression names the message compressor; "" sends uncompressed.
	Compression string `envconfig:"SW_AGENT_COLLECTOR_COMPRESSION" yaml:"compression" toml:"compression"`
}

// ReporterConfig tunes the segment stream.
type ReporterConfig struct {
	// QueueLimit caps pending segments; 0 means unbounded.
	QueueLimit int `envconfig:"SW_AGENT_REPORTER_QUEUE_LIMIT" yaml:"queue_limit" toml:"queue_limit"`
	// StreamBatchSize rotates the stream after this many written segments.
	StreamBatchSize int `envconfig:"SW_AGENT_REPORTER_STREAM_BATCH_SIZE" yaml:"stream_batch_size" toml:"stream_batch_size"`
	// StreamLifetime rotates the stream once it has been open this long.
	StreamLifetime  time.Duration `envconfig:"SW_AGENT_REPORTER_STREAM_LIFETIME" yaml:"stream_lifetime" toml:"stream_lifetime"`
	ShutdownTimeout time.Duration `envconfig:"SW_AGENT_REPORTER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// ReconnectConfig shapes the backoff between failed streams.
type ReconnectConfig struct {
	InitialInterval time.Duration `envconfig:"SW_AGENT_RECONNECT_INITIAL_INTERVAL" yaml:"initial_interval" toml:"initial_interval"`
	MaxInterval     time.Duration `envconfig:"SW_AGENT_RECONNECT_MAX_INTERVAL" yaml:"max_interval" toml:"max_interval"`
	Multiplier      float64       `envconfig:"SW_AGENT_RECONNECT_MULTIPLIER" yaml:"multiplier" toml:"multiplier"`
	// MaxElapsedTime ends a burst of retries; 0 retries forever.
	MaxElapsedTime time.Duration `envconfig:"SW_AGENT_RECONNECT_MAX_ELAPSED_TIME" yaml:"max_elapsed_time" toml:"max_elapsed_time"`
}

// CDSConfig controls configuration discovery polling.
type CDSConfig struct {
	Enabled  bool          `envconfig:"SW_AGENT_CDS_ENABLED" yaml:"enabled" toml:"enabled"`
	Interval time.Duration `envconfig:"SW_AGENT_CDS_INTERVAL" yaml:"interval" toml:"interval"`
	Timeout  time.Duration `envconfig:"SW_AGENT_CDS_TIMEOUT" yaml:"timeout" toml:"timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"SW_AGENT_LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"SW_AGENT_LOG_DEV" yaml:"development" toml:"development"`
}

// AdminConfig holds the metrics and health listener; an empty address
// disables it.
type AdminConfig struct {
	Address string `envconfig:"SW_AGENT_ADMIN_ADDR" yaml:"address" toml:"address"`
	// RateLimit caps requests per second per client; 0 disables the limit.
	RateLimit    int      `envconfig:"SW_AGENT_ADMIN_RATE_LIMIT" yaml:"rate_limit" toml:"rate_limit"`
	AllowOrigins []string `envconfig:"SW_AGENT_ADMIN_ALLOW_ORIGINS" yaml:"allow_origins" toml:"allow_origins"`
}

// Load applies environment variables over the defaults.
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile applies a YAML or TOML file over the defaults, then environment
// variables over the file. Files ending in .toml are read as TOML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Service:  "skytrace",
			Instance: defaultInstance(),
		},
		Collector: CollectorConfig{
			Address:        "127.0.0.1:11800",
			Protocol:       ProtocolGRPC,
			MaxMessageSize: 10 * 1024 * 1024,
		},
		Reporter: ReporterConfig{
			StreamBatchSize: 500,
			StreamLifetime:  time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Reconnect: ReconnectConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      1.5,
		},
		CDS: CDSConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
			Timeout:  3 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Admin: AdminConfig{
			Address:   "127.0.0.1:9464",
			RateLimit: 20,
		},
	}
}

// Validate checks values that would otherwise fail deep inside the agent.
// The protocol value itself is checked by the tracer.
func (c *Config) Validate() error {
	switch {
	case c.Agent.Service == "":
		return fmt.Errorf("%w: agent service name is empty", ErrInvalidConfig)
	case c.Collector.Address == "":
		return fmt.Errorf("%w: collector address is empty", ErrInvalidConfig)
	case c.Collector.MaxMessageSize < 0:
		return fmt.Errorf("%w: negative collector max message size", ErrInvalidConfig)
	case c.Reporter.QueueLimit < 0 || c.Reporter.StreamBatchSize < 0:
		return fmt.Errorf("%w: negative reporter limits", ErrInvalidConfig)
	case c.Reconnect.InitialInterval <= 0:
		return fmt.Errorf("%w: reconnect initial interval must be positive", ErrInvalidConfig)
	case c.Reconnect.MaxInterval < c.Reconnect.InitialInterval:
		return fmt.Errorf("%w: reconnect max interval below initial interval", ErrInvalidConfig)
	case c.Reconnect.Multiplier < 1:
		return fmt.Errorf("%w: reconnect multiplier below 1", ErrInvalidConfig)
	case c.CDS.Enabled && c.CDS.Interval <= 0:
		return fmt.Errorf("%w: cds interval must be positive", ErrInvalidConfig)
	case c.Collector.Compression != CompressionNone && c.Collector.Compression != CompressionGzip:
		return fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, c.Collector.Compression)
	case c.Admin.RateLimit < 0:
		return fmt.Errorf("%w: negative admin rate limit", ErrInvalidConfig)
	}
	return nil
}

func defaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return strconv.Itoa(os.Getpid()) + "@" + host
}
