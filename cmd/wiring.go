package main

import (
	"context"
	"time"

	"github.com/okian/picklist/internal/adapters/llm"
	"github.com/okian/picklist/internal/adapters/repository"
	"github.com/okian/picklist/internal/adapters/roster"
	app "github.com/okian/picklist/internal/app"
	"github.com/okian/picklist/internal/config"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/ranking"
	"github.com/okian/picklist/internal/resilience"
	"github.com/okian/picklist/pkg/anthropic"
)

// serviceOptions turns the loaded configuration into service options.
func serviceOptions(ctx context.Context, cfg *config.Config) ([]app.Option, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	strategy, err := model.ParseReferenceStrategy(cfg.DefaultReferenceStrategy)
	if err != nil {
		return nil, err
	}

	opts := []app.Option{
		app.WithStore(store),
		app.WithModel(buildModel(cfg)),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithBatchParallelism(cfg.BatchParallelism),
		app.WithRerankThreshold(cfg.RerankThreshold),
		app.WithRequestDefaults(cfg.DefaultBatchSize, cfg.DefaultReferenceCount, strategy),
		app.WithGameContext(cfg.GameContext),
		app.WithRankingOptions(
			ranking.WithRetry(resilience.FromConfig(cfg.MaxAttempts, cfg.InitialBackoffMS, cfg.MaxBackoffMS)),
			ranking.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		),
	}
	if cfg.RosterDir != "" {
		opts = append(opts, app.WithRosters(roster.NewFileProvider(cfg.RosterDir)))
	}
	return opts, nil
}

// buildStore returns the redis store when an address is configured and the
// sharded in-memory store otherwise.
func buildStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithShardCount(cfg.ShardCount),
		repository.WithStallTimeout(cfg.StallTimeout()),
		repository.WithEntryTTL(cfg.EntryTTL()),
		repository.WithJanitorInterval(cfg.JanitorInterval()),
	}
	if cfg.RedisAddr == "" {
		return repository.NewMemoryStore(ctx, opts...), nil
	}

	rdb, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return repository.NewRedisStore(ctx, rdb, opts...), nil
}

// buildModel selects the ranking model provider. Config validation has
// already checked the provider name and API key.
func buildModel(cfg *config.Config) ranking.Model {
	if cfg.ModelProvider == config.ProviderAnthropic {
		var clientOpts []anthropic.Option
		if cfg.AnthropicBaseURL != "" {
			clientOpts = append(clientOpts, anthropic.WithBaseURL(cfg.AnthropicBaseURL))
		}
		clientOpts = append(clientOpts, anthropic.WithRequestTimeout(cfg.RequestTimeout()))

		return llm.NewAnthropic(
			anthropic.NewClient(cfg.AnthropicAPIKey, clientOpts...),
			llm.WithModel(cfg.Model),
			llm.WithMaxTokens(int64(cfg.MaxTokens)),
			llm.WithTemperature(cfg.Temperature),
		)
	}

	return llm.NewSimulated(
		llm.WithLatencyRange(
			time.Duration(cfg.SimLatencyMinMS)*time.Millisecond,
			time.Duration(cfg.SimLatencyMaxMS)*time.Millisecond,
		),
		llm.WithDrift(cfg.SimDrift),
	)
}
