// Package config loads node configuration from an optional YAML file with
// environment variable overrides. Precedence: defaults, then file, then
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full node configuration.
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Gossip     GossipConfig     `yaml:"gossip"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// NodeConfig holds identity and connectivity settings.
type NodeConfig struct {
	// ID identifies this node to its peers. Default: the hostname.
	ID string `yaml:"id"`

	// ListenAddr is the address to accept peer connections on.
	// Default: ":7946"
	ListenAddr string `yaml:"listen_addr"`

	// Peers are addresses this node keeps outbound connections to.
	// Env: PEERMESH_PEERS, comma separated.
	Peers []string `yaml:"peers"`

	// ReconnectInterval is how often missing configured peers are redialed.
	// Default: 5s
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// GossipConfig holds message propagation settings.
type GossipConfig struct {
	// DefaultTTL is the hop budget for locally originated messages.
	// Default: 5
	DefaultTTL int `yaml:"default_ttl"`

	// SeenCapacity bounds the duplicate-suppression window. Zero selects
	// the built-in default.
	SeenCapacity int `yaml:"seen_capacity"`

	// ForwardRate caps outbound forwards per second. Zero disables the cap.
	ForwardRate float64 `yaml:"forward_rate"`

	// ForwardBurst is the limiter burst size when ForwardRate is set.
	ForwardBurst int `yaml:"forward_burst"`
}

// ResilienceConfig holds the settings for peer sends and dials.
type ResilienceConfig struct {
	// AttemptTimeout bounds each send attempt. Default: 2s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// MaxRetries is the number of retries after the first attempt.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase is the delay before the first retry. Default: 100ms
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMax caps the exponential backoff. Default: 5s
	BackoffMax time.Duration `yaml:"backoff_max"`

	// BackoffJitter is the jitter fraction applied to each delay,
	// between 0 and 1. Default: 0.2
	BackoffJitter float64 `yaml:"backoff_jitter"`

	// BreakerFailureThreshold is the consecutive failures that trip a
	// peer's circuit. Default: 3
	BreakerFailureThreshold uint32 `yaml:"breaker_failure_threshold"`

	// BreakerResetTimeout is the open period before a half-open trial.
	// Default: 10s
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout"`

	// DialTimeout bounds each outbound connect. Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// IdempotencyRetention is how long completed request results are kept.
	// Default: 10m
	IdempotencyRetention time.Duration `yaml:"idempotency_retention"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	// Enabled controls the metrics and health HTTP server. Default: true
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address of the metrics server. Default: ":9090"
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`
}

// Load builds the configuration. If PEERMESH_CONFIG_FILE is set, that YAML
// file is layered over the defaults; environment variables override both.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("PEERMESH_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "peermesh"
	}
	return &Config{
		Node: NodeConfig{
			ID:                hostname,
			ListenAddr:        ":7946",
			ReconnectInterval: 5 * time.Second,
		},
		Gossip: GossipConfig{
			DefaultTTL: 5,
		},
		Resilience: ResilienceConfig{
			AttemptTimeout:          2 * time.Second,
			MaxRetries:              2,
			BackoffBase:             100 * time.Millisecond,
			BackoffMax:              5 * time.Second,
			BackoffJitter:           0.2,
			BreakerFailureThreshold: 3,
			BreakerResetTimeout:     10 * time.Second,
			DialTimeout:             5 * time.Second,
			IdempotencyRetention:    10 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnv overrides fields from environment variables. The current value
// acts as the fallback, so unset variables leave file values intact.
func (c *Config) applyEnv() {
	c.Node.ID = getEnvOrDefault("PEERMESH_NODE_ID", c.Node.ID)
	c.Node.ListenAddr = getEnvOrDefault("PEERMESH_LISTEN_ADDR", c.Node.ListenAddr)
	c.Node.Peers = getEnvList("PEERMESH_PEERS", c.Node.Peers)
	c.Node.ReconnectInterval = getEnvDuration("PEERMESH_RECONNECT_INTERVAL", c.Node.ReconnectInterval)

	c.Gossip.DefaultTTL = getEnvInt("PEERMESH_GOSSIP_TTL", c.Gossip.DefaultTTL)
	c.Gossip.SeenCapacity = getEnvInt("PEERMESH_SEEN_CAPACITY", c.Gossip.SeenCapacity)
	c.Gossip.ForwardRate = getEnvFloat("PEERMESH_FORWARD_RATE", c.Gossip.ForwardRate)
	c.Gossip.ForwardBurst = getEnvInt("PEERMESH_FORWARD_BURST", c.Gossip.ForwardBurst)

	c.Resilience.AttemptTimeout = getEnvDuration("PEERMESH_ATTEMPT_TIMEOUT", c.Resilience.AttemptTimeout)
	c.Resilience.MaxRetries = getEnvInt("PEERMESH_MAX_RETRIES", c.Resilience.MaxRetries)
	c.Resilience.BackoffBase = getEnvDuration("PEERMESH_BACKOFF_BASE", c.Resilience.BackoffBase)
	c.Resilience.BackoffMax = getEnvDuration("PEERMESH_BACKOFF_MAX", c.Resilience.BackoffMax)
	c.Resilience.BackoffJitter = getEnvFloat("PEERMESH_BACKOFF_JITTER", c.Resilience.BackoffJitter)
	c.Resilience.BreakerFailureThreshold = uint32(getEnvInt("PEERMESH_CB_FAILURE_THRESHOLD", int(c.Resilience.BreakerFailureThreshold)))
	c.Resilience.BreakerResetTimeout = getEnvDuration("PEERMESH_CB_RESET_TIMEOUT", c.Resilience.BreakerResetTimeout)
	c.Resilience.DialTimeout = getEnvDuration("PEERMESH_DIAL_TIMEOUT", c.Resilience.DialTimeout)
	c.Resilience.IdempotencyRetention = getEnvDuration("PEERMESH_IDEMPOTENCY_RETENTION", c.Resilience.IdempotencyRetention)

	c.Metrics.Enabled = getEnvBool("PEERMESH_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getEnvOrDefault("PEERMESH_METRICS_ADDR", c.Metrics.Addr)

	c.Log.Level = getEnvOrDefault("PEERMESH_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("PEERMESH_LOG_FORMAT", c.Log.Format)
}

// Validate checks configuration correctness.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("PEERMESH_NODE_ID cannot be empty")
	}
	if strings.ContainsAny(c.Node.ID, "|\n\r") {
		return fmt.Errorf("PEERMESH_NODE_ID contains reserved characters")
	}

	if c.Node.ListenAddr == "" {
		return fmt.Errorf("PEERMESH_LISTEN_ADDR cannot be empty")
	}

	for _, peer := range c.Node.Peers {
		if peer == "" {
			return fmt.Errorf("PEERMESH_PEERS contains an empty address")
		}
		if peer == c.Node.ListenAddr {
			return fmt.Errorf("PEERMESH_PEERS must not contain the node's own listen address")
		}
	}

	if c.Node.ReconnectInterval <= 0 {
		return fmt.Errorf("PEERMESH_RECONNECT_INTERVAL must be positive")
	}

	if c.Gossip.DefaultTTL < 0 {
		return fmt.Errorf("PEERMESH_GOSSIP_TTL must not be negative")
	}

	if c.Gossip.SeenCapacity < 0 {
		return fmt.Errorf("PEERMESH_SEEN_CAPACITY must not be negative")
	}

	if c.Gossip.ForwardRate < 0 {
		return fmt.Errorf("PEERMESH_FORWARD_RATE must not be negative")
	}

	if c.Resilience.AttemptTimeout <= 0 {
		return fmt.Errorf("PEERMESH_ATTEMPT_TIMEOUT must be positive")
	}

	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("PEERMESH_MAX_RETRIES must not be negative")
	}

	if c.Resilience.BackoffBase <= 0 {
		return fmt.Errorf("PEERMESH_BACKOFF_BASE must be positive")
	}

	if c.Resilience.BackoffMax < c.Resilience.BackoffBase {
		return fmt.Errorf("PEERMESH_BACKOFF_MAX must be at least PEERMESH_BACKOFF_BASE")
	}

	if c.Resilience.BackoffJitter < 0 || c.Resilience.BackoffJitter > 1 {
		return fmt.Errorf("PEERMESH_BACKOFF_JITTER must be between 0.0 and 1.0")
	}

	if c.Resilience.BreakerFailureThreshold == 0 {
		return fmt.Errorf("PEERMESH_CB_FAILURE_THRESHOLD must be positive")
	}

	if c.Resilience.BreakerResetTimeout <= 0 {
		return fmt.Errorf("PEERMESH_CB_RESET_TIMEOUT must be positive")
	}

	if c.Resilience.DialTimeout <= 0 {
		return fmt.Errorf("PEERMESH_DIAL_TIMEOUT must be positive")
	}

	if c.Resilience.IdempotencyRetention <= 0 {
		return fmt.Errorf("PEERMESH_IDEMPOTENCY_RETENTION must be positive")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("PEERMESH_METRICS_ADDR cannot be empty when metrics are enabled")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("PEERMESH_LOG_LEVEL must be debug, info, warn, or error")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("PEERMESH_LOG_FORMAT must be json or text")
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList parses a comma separated environment variable with default.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvBool parses boolean environment variable with default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt parses integer environment variable with default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat parses float environment variable with default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration parses duration environment variable with default.
// Supports formats like "30s", "1m", "2h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
