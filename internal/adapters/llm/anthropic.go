// Package llm adapts concrete ranking models to ranking.Model.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/okian/picklist/internal/domain/ranking"
	"github.com/okian/picklist/internal/resilience"
	"github.com/okian/picklist/pkg/anthropic"
	"github.com/okian/picklist/pkg/logger"
)

// Anthropic defaults.
const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 4096
)

// Anthropic ranks batches with the Messages API.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
	log         logger.Logger
}

// AnthropicOption configures the Anthropic adapter.
type AnthropicOption func(*Anthropic)

// WithModel selects the model id.
func WithModel(m string) AnthropicOption {
	return func(a *Anthropic) {
		if m != "" {
			a.model = m
		}
	}
}

// WithMaxTokens bounds the reply length.
func WithMaxTokens(n int64) AnthropicOption {
	return func(a *Anthropic) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) AnthropicOption {
	return func(a *Anthropic) {
		if t >= 0 {
			a.temperature = &t
		}
	}
}

// NewAnthropic wraps client.
func NewAnthropic(client anthropic.Client, opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		client:    client,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		log:       logger.Named("llm.anthropic"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Complete implements ranking.Model.
func (a *Anthropic) Complete(ctx context.Context, p ranking.Prompt) (ranking.Completion, error) {
	start := time.Now()
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      p.System,
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: a.temperature,
	})
	if err != nil {
		return ranking.Completion{}, classify(err)
	}

	if resp.StopReason == "max_tokens" {
		a.log.Warn(ctx, "reply truncated at max_tokens",
			logger.Int64("max_tokens", a.maxTokens),
			logger.Int("teams", len(p.Teams)),
		)
	}
	a.log.Debug(ctx, "message complete",
		logger.String("model", resp.Model),
		logger.Int64("input_tokens", resp.Usage.InputTokens),
		logger.Int64("output_tokens", resp.Usage.OutputTokens),
		logger.Duration("took", time.Since(start)),
	)

	return ranking.Completion{
		Text:         resp.Text(),
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// classify marks retryable API failures as transient.
func classify(err error) error {
	code := anthropic.StatusCode(err)
	if code != 0 {
		if resilience.IsTransientHTTPStatus(code) {
			return resilience.NewTransientError(err, code)
		}
		return eris.Wrapf(err, "anthropic status %d", code)
	}
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
