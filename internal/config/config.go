// Package config defines service configuration and its loading.
package config

import (
	"runtime"
	"time"
)

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderSimulated = "simulated"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the job queue. A full queue rejects new requests.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of concurrent ranking jobs.
	WorkerCount int `koanf:"worker_count"`
	// BatchParallelism bounds in-flight batches of one job after the first.
	BatchParallelism int `koanf:"batch_parallelism"`

	DefaultBatchSize         int    `koanf:"default_batch_size"`
	DefaultReferenceCount    int    `koanf:"default_reference_count"`
	DefaultReferenceStrategy string `koanf:"default_reference_strategy"`
	// RerankThreshold is the minimum result size for the optional final rerank.
	RerankThreshold int `koanf:"rerank_threshold"`

	// Model call retry and budget.
	MaxAttempts      int     `koanf:"max_attempts"`
	InitialBackoffMS int     `koanf:"initial_backoff_ms"`
	MaxBackoffMS     int     `koanf:"max_backoff_ms"`
	RateLimitRPS     float64 `koanf:"rate_limit_rps"`
	RateLimitBurst   int     `koanf:"rate_limit_burst"`

	// Cache entry lifecycle.
	StallTimeoutSec    int `koanf:"stall_timeout_sec"`
	EntryTTLSec        int `koanf:"entry_ttl_sec"`
	JanitorIntervalSec int `koanf:"janitor_interval_sec"`
	ShardCount         int `koanf:"shard_count"`

	// RedisAddr selects the Redis store when set.
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`

	// RosterDir holds <ref>.yaml roster files.
	RosterDir string `koanf:"roster_dir"`
	// GameContext is used when neither the request nor the roster file has one.
	GameContext string `koanf:"game_context"`

	// ModelProvider is anthropic or simulated.
	ModelProvider     string  `koanf:"model_provider"`
	AnthropicAPIKey   string  `koanf:"anthropic_api_key"`
	AnthropicBaseURL  string  `koanf:"anthropic_base_url"`
	Model             string  `koanf:"model"`
	MaxTokens         int     `koanf:"max_tokens"`
	Temperature       float64 `koanf:"temperature"`
	RequestTimeoutSec int     `koanf:"request_timeout_sec"`

	// Simulated model knobs.
	SimLatencyMinMS int     `koanf:"sim_latency_min_ms"`
	SimLatencyMaxMS int     `koanf:"sim_latency_max_ms"`
	SimDrift        float64 `koanf:"sim_drift"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		QueueSize:                1024,
		WorkerCount:              runtime.NumCPU(),
		BatchParallelism:         4,
		DefaultBatchSize:         20,
		DefaultReferenceCount:    3,
		DefaultReferenceStrategy: "top_middle_bottom",
		RerankThreshold:          10,
		MaxAttempts:              3,
		InitialBackoffMS:         500,
		MaxBackoffMS:             10_000,
		RateLimitRPS:             0,
		RateLimitBurst:           1,
		StallTimeoutSec:          600,
		EntryTTLSec:              3600,
		JanitorIntervalSec:       60,
		ShardCount:               16,
		RedisDB:                  0,
		ModelProvider:            ProviderSimulated,
		Model:                    "claude-sonnet-4-5-20250929",
		MaxTokens:                4096,
		Temperature:              0,
		RequestTimeoutSec:        120,
		SimLatencyMinMS:          80,
		SimLatencyMaxMS:          150,
		SimDrift:                 5,
	}
}

// StallTimeout returns StallTimeoutSec as a duration.
func (c *Config) StallTimeout() time.Duration { return seconds(c.StallTimeoutSec) }

// EntryTTL returns EntryTTLSec as a duration.
func (c *Config) EntryTTL() time.Duration { return seconds(c.EntryTTLSec) }

// JanitorInterval returns JanitorIntervalSec as a duration.
func (c *Config) JanitorInterval() time.Duration { return seconds(c.JanitorIntervalSec) }

// RequestTimeout returns RequestTimeoutSec as a duration.
func (c *Config) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSec) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
