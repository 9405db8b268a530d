package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string                     `toml:"environment"` // "development" or "production"
	Server      ServerConfig               `toml:"server"`
	Storage     StorageConfig              `toml:"storage"`
	Queue       QueueConfig                `toml:"queue"`
	RateLimits  map[string]RateLimitConfig `toml:"rate_limits" validate:"dive"`
	Cache       CacheConfig                `toml:"cache"`
	Claude      ClaudeConfig               `toml:"claude"`
	Line        LineConfig                 `toml:"line"`
	Scheduler   SchedulerConfig            `toml:"scheduler"`
	Logging     LoggingConfig              `toml:"logging"`
}

type ServerConfig struct {
	Port       int    `toml:"port" validate:"gt=0,lte=65535"`
	Host       string `toml:"host"`
	CronSecret string `toml:"cron_secret"` // Pre-shared secret for the dispatch trigger endpoint
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type QueueConfig struct {
	BatchSize   int    `toml:"batch_size" validate:"gt=0"`  // Max jobs claimed per dispatch cycle
	Concurrency int    `toml:"concurrency" validate:"gt=0"` // Concurrent job pipelines within a cycle
	MaxRetries  int    `toml:"max_retries" validate:"gte=0"`
	CycleBudget string `toml:"cycle_budget"` // Wall-clock budget per dispatch cycle, e.g. "30s"
	GracePeriod string `toml:"grace_period"` // Extra time for in-flight pipelines after the budget lapses
	StaleAfter  string `toml:"stale_after"`  // Jobs processing longer than this are reset to pending
	Retention   string `toml:"retention"`    // Terminal jobs older than this are deleted
}

// RateLimitConfig defines one named fixed-window limiter class.
type RateLimitConfig struct {
	WindowSeconds int `toml:"window_seconds" validate:"gt=0"`
	Ceiling       int `toml:"ceiling" validate:"gte=0"`
}

type CacheConfig struct {
	MaxSize         int    `toml:"max_size" validate:"gt=0"`
	TTL             string `toml:"ttl"`            // Entry time-to-live, e.g. "30m"
	WarmUpThreshold int    `toml:"warmup_threshold" validate:"gt=0"`
	SweepInterval   string `toml:"sweep_interval"` // Background expiry sweep interval
}

// ClaudeConfig contains Anthropic Claude API configuration for code generation
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`    // Anthropic API key
	Model       string  `toml:"model"`      // Model for generation (default: "claude-sonnet-4-20250514")
	MaxTokens   int     `toml:"max_tokens"` // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`    // Operation timeout as duration string (default: "2m")
	Temperature float32 `toml:"temperature"`
}

// LineConfig contains LINE messaging transport configuration
type LineConfig struct {
	ChannelToken      string `toml:"channel_token"` // LINE channel access token
	Endpoint          string `toml:"endpoint"`      // Push message endpoint (override for tests)
	Timeout           string `toml:"timeout"`       // HTTP request timeout
	MaxFrameSize      int    `toml:"max_frame_size" validate:"gt=0"` // Must be <= the transport ceiling (2000)
	RequestsPerSecond int    `toml:"requests_per_second" validate:"gt=0"`
}

type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`           // Run dispatch cycles on the internal cron as well as the HTTP trigger
	DispatchSchedule string `toml:"dispatch_schedule"` // Cron schedule for dispatch cycles
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// Limiter class names used throughout the service. Each must have an entry
// in Config.RateLimits.
const (
	LimiterAPI        = "api"
	LimiterWebhook    = "webhook"
	LimiterGeneration = "generation"
	LimiterUser       = "user"
	LimiterAuth       = "auth"
)

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in gasgen.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			BatchSize:   5,
			Concurrency: 3,
			MaxRetries:  3,
			CycleBudget: "30s",
			GracePeriod: "10s",
			StaleAfter:  "5m",
			Retention:   "168h", // 7 days
		},
		RateLimits: map[string]RateLimitConfig{
			LimiterAPI:        {WindowSeconds: 60, Ceiling: 60},
			LimiterWebhook:    {WindowSeconds: 60, Ceiling: 100},
			LimiterGeneration: {WindowSeconds: 60, Ceiling: 10},
			LimiterUser:       {WindowSeconds: 60, Ceiling: 2},
			LimiterAuth:       {WindowSeconds: 300, Ceiling: 5},
		},
		Cache: CacheConfig{
			MaxSize:         100,
			TTL:             "30m",
			WarmUpThreshold: 3,
			SweepInterval:   "5m",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "2m",
			Temperature: 0.7,
		},
		Line: LineConfig{
			Endpoint:          "https://api.line.me/v2/bot/message/push",
			Timeout:           "10s",
			MaxFrameSize:      1800, // LINE hard ceiling is 2000 chars; keep a safety margin
			RequestsPerSecond: 10,
		},
		Scheduler: SchedulerConfig{
			Enabled:          false, // Dispatch is driven by the HTTP trigger unless opted in
			DispatchSchedule: "*/1 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for invalid values. Limiter and cache
// misconfiguration must fail here, at startup, not at call time.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Every known limiter class must be configured.
	for _, name := range []string{LimiterAPI, LimiterWebhook, LimiterGeneration, LimiterUser, LimiterAuth} {
		if _, ok := c.RateLimits[name]; !ok {
			return fmt.Errorf("invalid configuration: rate limiter %q is not configured", name)
		}
	}

	// Duration strings are parsed eagerly so a typo fails startup.
	for field, value := range map[string]string{
		"queue.cycle_budget":   c.Queue.CycleBudget,
		"queue.grace_period":   c.Queue.GracePeriod,
		"queue.stale_after":    c.Queue.StaleAfter,
		"queue.retention":      c.Queue.Retention,
		"cache.ttl":            c.Cache.TTL,
		"cache.sweep_interval": c.Cache.SweepInterval,
		"claude.timeout":       c.Claude.Timeout,
		"line.timeout":         c.Line.Timeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", field, err)
		}
	}

	if c.Line.MaxFrameSize > 2000 {
		return fmt.Errorf("invalid configuration: line.max_frame_size %d exceeds the transport ceiling of 2000", c.Line.MaxFrameSize)
	}

	return nil
}

// Duration returns a parsed duration string, falling back to the given
// default when the value is empty or unparseable. Config validation has
// already rejected bad values at startup; the fallback guards direct
// struct construction in tests.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GASGEN_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("GASGEN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("GASGEN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if secret := os.Getenv("GASGEN_CRON_SECRET"); secret != "" {
		config.Server.CronSecret = secret
	}

	// Queue configuration
	if batchSize := os.Getenv("GASGEN_QUEUE_BATCH_SIZE"); batchSize != "" {
		if b, err := strconv.Atoi(batchSize); err == nil {
			config.Queue.BatchSize = b
		}
	}
	if concurrency := os.Getenv("GASGEN_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if maxRetries := os.Getenv("GASGEN_QUEUE_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Queue.MaxRetries = mr
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("GASGEN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// API keys and tokens
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("GASGEN_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if token := os.Getenv("GASGEN_LINE_CHANNEL_TOKEN"); token != "" {
		config.Line.ChannelToken = token
	}

	// Logging configuration
	if level := os.Getenv("GASGEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("GASGEN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
