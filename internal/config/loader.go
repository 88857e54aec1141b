package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/picklist/internal/domain/model"
)

const envPrefix = "PICKLIST_"

// Load builds a Config by layering defaults, an optional file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. YAML file if PICKLIST_CONFIG is set
//  3. env (prefix PICKLIST_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// PICKLIST_QUEUE_SIZE -> queue_size. Keys are flat so underscores stay.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.BatchParallelism <= 0:
		return invalid("batch_parallelism must be positive, got %d", c.BatchParallelism)
	case c.DefaultBatchSize <= 0:
		return invalid("default_batch_size must be positive, got %d", c.DefaultBatchSize)
	case c.DefaultReferenceCount < 0:
		return invalid("default_reference_count must not be negative, got %d", c.DefaultReferenceCount)
	case c.MaxAttempts <= 0:
		return invalid("max_attempts must be positive, got %d", c.MaxAttempts)
	case c.InitialBackoffMS < 0 || c.MaxBackoffMS < c.InitialBackoffMS:
		return invalid("backoff bounds %d..%d ms are inconsistent", c.InitialBackoffMS, c.MaxBackoffMS)
	case c.RateLimitRPS < 0:
		return invalid("rate_limit_rps must not be negative")
	case c.StallTimeoutSec < 0 || c.EntryTTLSec <= 0 || c.JanitorIntervalSec <= 0:
		return invalid("stall_timeout_sec, entry_ttl_sec and janitor_interval_sec must be positive")
	case c.SimLatencyMinMS < 0 || c.SimLatencyMaxMS < c.SimLatencyMinMS:
		return invalid("simulated latency bounds %d..%d ms are inconsistent", c.SimLatencyMinMS, c.SimLatencyMaxMS)
	}

	if _, err := model.ParseReferenceStrategy(c.DefaultReferenceStrategy); err != nil {
		return invalid("default_reference_strategy: %v", err)
	}

	switch c.ModelProvider {
	case ProviderSimulated:
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return invalid("anthropic_api_key is required for model_provider=anthropic")
		}
	default:
		return invalid("unknown model_provider %q", c.ModelProvider)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("unknown log_format %q", c.LogFormat)
	}
	return nil
}
