package ranking

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/scoring"
	"github.com/okian/picklist/internal/resilience"
	"github.com/okian/picklist/pkg/logger"
	"github.com/okian/picklist/pkg/metrics"
)

// Input is everything needed to rank one batch.
type Input struct {
	Batch          model.Batch
	Priorities     []model.Priority
	PickPosition   model.PickPosition
	YourTeamNumber int
	GameContext    string
	// Heuristic supplies fallback scores for teams the model skips.
	Heuristic *scoring.Heuristic
}

// Client ranks batches through a Model.
type Client struct {
	model   Model
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	log     logger.Logger
}

// NewClient creates a ranking client.
func NewClient(m Model, opts ...Option) *Client {
	c := &Client{
		model:   m,
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     logger.Named("ranking"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RankBatch scores every team of in.Batch. Malformed or missing rows are
// replaced by heuristic fallbacks; only transport failures and cancellation
// are returned as errors.
func (c *Client) RankBatch(ctx context.Context, in Input) (model.BatchResult, error) {
	const op = "ranking.rank_batch"
	prompt := BuildPrompt(in)
	log := c.log.With(logger.Int("batch", in.Batch.Index), logger.Int("teams", in.Batch.Size()))

	cfg := c.retry
	cfg.ShouldRetry = func(err error) bool {
		return errors.Is(err, model.ErrParse) || resilience.IsTransient(err)
	}
	cfg.OnRetry = func(attempt int, err error) {
		metrics.RecordModelRetry()
		log.Warn(ctx, "retrying batch", logger.Int("attempt", attempt), logger.Error(err))
	}

	start := time.Now()
	replies, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]reply, error) {
		return c.call(ctx, prompt)
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return model.BatchResult{}, model.WrapError(op, model.ErrCanceled, ctx.Err())
	case errors.Is(err, model.ErrParse):
		log.Warn(ctx, "model reply unusable after retries, using heuristic for the whole batch", logger.Error(err))
		replies = nil
	default:
		metrics.RecordBatchFailed()
		return model.BatchResult{}, model.WrapError(op, model.ErrTransport, err)
	}

	res := c.assemble(ctx, in, replies, err != nil)
	metrics.RecordBatchProcessed(in.Batch.Size(), float64(time.Since(start).Milliseconds()))
	log.Debug(ctx, "batch ranked", logger.Duration("took", time.Since(start)))
	return res, nil
}

func (c *Client) call(ctx context.Context, p Prompt) ([]reply, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := c.model.Complete(ctx, p)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordModelCall("error", elapsed)
		return nil, err
	}
	metrics.RecordModelTokens(out.InputTokens, out.OutputTokens)

	replies, err := parseReply(out.Text)
	if err != nil {
		metrics.RecordModelCall("unparseable", elapsed)
		return nil, err
	}
	metrics.RecordModelCall("ok", elapsed)
	return replies, nil
}

// assemble builds exactly one row per batch team, references first.
func (c *Client) assemble(ctx context.Context, in Input, replies []reply, unparseable bool) model.BatchResult {
	byTeam := make(map[int]reply, len(replies))
	for _, r := range replies {
		if _, dup := byTeam[r.team]; dup {
			continue
		}
		byTeam[r.team] = r
	}

	teams := in.Batch.Teams()
	res := model.BatchResult{
		Index:      in.Batch.Index,
		Scored:     make([]model.ScoredTeam, 0, len(teams)),
		References: make([]int, 0, len(in.Batch.References)),
	}
	for _, r := range in.Batch.References {
		res.References = append(res.References, r.TeamNumber)
	}

	fallbacks := map[string]int{}
	for _, t := range teams {
		r, ok := byTeam[t.TeamNumber]
		switch {
		case unparseable:
			fallbacks[scoring.ReasonParse]++
			res.Scored = append(res.Scored, in.Heuristic.Fallback(t, in.Priorities, scoring.ReasonParse))
		case !ok:
			fallbacks[scoring.ReasonOmitted]++
			res.Scored = append(res.Scored, in.Heuristic.Fallback(t, in.Priorities, scoring.ReasonOmitted))
		case !r.valid:
			fallbacks[scoring.ReasonInvalid]++
			res.Scored = append(res.Scored, in.Heuristic.Fallback(t, in.Priorities, scoring.ReasonInvalid))
		default:
			res.Scored = append(res.Scored, model.ScoredTeam{
				TeamNumber: t.TeamNumber,
				Nickname:   t.Nickname,
				Score:      model.ClampScore(r.score),
				Reasoning:  r.reasoning,
			})
		}
	}

	for reason, n := range fallbacks {
		metrics.RecordFallbackTeams(reason, n)
		c.log.Info(ctx, "fallback scores substituted",
			logger.Int("batch", in.Batch.Index),
			logger.String("reason", reason),
			logger.Int("teams", n),
		)
	}
	return res
}
