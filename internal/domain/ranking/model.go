// Package ranking drives the external ranking model one batch at a time and
// guarantees exactly one scored row per team sent.
package ranking

import "context"

// Prompt is a fully rendered model request.
type Prompt struct {
	System string
	User   string
	// Teams lists the team numbers the reply must cover, in prompt order.
	Teams []int
}

// Completion is the raw model reply.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Model is an external ranking model. Implementations mark retryable
// failures with resilience.TransientError.
type Model interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, p Prompt) (Completion, error)

// Complete calls f.
func (f ModelFunc) Complete(ctx context.Context, p Prompt) (Completion, error) { return f(ctx, p) }
