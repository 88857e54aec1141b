package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/picklist/internal/adapters/repository"
	"github.com/okian/picklist/internal/domain/combine"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/ranking"
	"github.com/okian/picklist/internal/domain/reconcile"
	"github.com/okian/picklist/internal/domain/scoring"
	"github.com/okian/picklist/pkg/logger"
	"github.com/okian/picklist/pkg/metrics"
)

// run executes one queued job and records its outcome in the store.
func (s *Service) run(ctx context.Context, j model.Job) error { //nolint:gocritic // hugeParam: Job comes off the queue by value
	h := s.handle(j.Fingerprint)
	if h == nil {
		h = s.register(j.Fingerprint)
	}
	defer s.unregister(j.Fingerprint, h)

	log := s.logger.With(logger.String("fingerprint", j.Fingerprint))

	if err := s.store.MarkProcessing(h.ctx, j.Fingerprint); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			log.Debug(ctx, "job skipped, entry already settled")
			return nil
		}
		return err
	}

	start := time.Now()
	result, cal, err := s.execute(h.ctx, j)
	if err != nil {
		if h.ctx.Err() != nil && !errors.Is(err, model.ErrCanceled) {
			err = model.WrapError("service.job", model.ErrCanceled, err)
		}
		metrics.RecordRequest("failed")
		// The job context may be canceled already; the outcome must still land.
		if ferr := s.store.Fail(context.WithoutCancel(ctx), j.Fingerprint, err); ferr != nil && !errors.Is(ferr, repository.ErrInvalidTransition) {
			log.Error(ctx, "recording job failure", logger.Error(ferr))
		}
		return err
	}

	if err := s.store.Complete(context.WithoutCancel(ctx), j.Fingerprint, result, cal); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			log.Info(ctx, "job finished after cancellation, result dropped")
			return nil
		}
		return err
	}
	metrics.RecordRequest("completed")
	log.Info(ctx, "ranking complete",
		logger.Int("teams", len(result)),
		logger.Int("batches", len(j.Plan.Batches)),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

// execute runs every batch of the plan and merges the results.
// Batch 0 runs alone first; its reference scores are the calibration
// baseline for the rest, which run with bounded parallelism.
func (s *Service) execute(ctx context.Context, j model.Job) ([]model.ScoredTeam, *model.Calibration, error) { //nolint:gocritic // hugeParam: see run
	req, plan := j.Request, j.Plan
	fp := j.Fingerprint
	total := len(plan.Batches)
	if total == 0 {
		return []model.ScoredTeam{}, nil, nil
	}

	h := scoring.NewHeuristic(req.Roster)
	input := func(b model.Batch) ranking.Input {
		return ranking.Input{
			Batch:          b,
			Priorities:     req.Priorities,
			PickPosition:   req.PickPosition,
			YourTeamNumber: req.YourTeamNumber,
			GameContext:    req.GameContext,
			Heuristic:      h,
		}
	}

	results := make([]model.BatchResult, total)
	first, err := s.ranker.RankBatch(ctx, input(plan.Batches[0]))
	if err != nil {
		return nil, nil, err
	}
	results[0] = first
	s.progress(ctx, fp, 1, total)

	var completed atomic.Int64
	completed.Store(1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := 1; i < total; i++ {
		b := plan.Batches[i]
		g.Go(func() error {
			res, err := s.ranker.RankBatch(gctx, input(b))
			if err != nil {
				return err
			}
			results[b.Index] = res
			s.progress(ctx, fp, int(completed.Add(1)), total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := combine.Merge(results, model.IndexByNumber(req.Roster))
	for idx, off := range merged.Offsets {
		if idx > 0 {
			metrics.RecordDriftOffset(off)
		}
	}

	ranked, filled := reconcile.Fill(merged.Ranked, req.Roster, req.Excluded(), h, req.Priorities)
	if len(filled) > 0 {
		metrics.RecordFallbackTeams(scoring.ReasonOmitted, len(filled))
	}

	if req.FinalRerank && len(ranked) > s.rerankThreshold {
		ranked = s.rerankTop(ctx, ranked, req, input, total)
	}

	cal := &model.Calibration{
		References:     teamNumbers(plan.References),
		BaselineScores: merged.Baseline,
	}
	return ranked, cal, nil
}

// rerankTop scores the top batch_size teams once more in a single call and
// folds the new scores back in. Failures keep the merged ranking.
func (s *Service) rerankTop(ctx context.Context, ranked []model.ScoredTeam, req *model.Request, input func(model.Batch) ranking.Input, index int) []model.ScoredTeam {
	n := req.BatchSize
	if n > len(ranked) {
		n = len(ranked)
	}
	byNumber := model.IndexByNumber(req.Roster)
	members := make([]model.Team, 0, n)
	for _, st := range ranked[:n] {
		members = append(members, req.Roster[byNumber[st.TeamNumber]])
	}

	res, err := s.ranker.RankBatch(ctx, input(model.Batch{Index: index, Members: members}))
	if err != nil {
		s.logger.Warn(ctx, "final rerank failed, keeping merged ranking", logger.Error(err))
		return ranked
	}
	return combine.ApplySlice(ranked, res.Scored)
}

func (s *Service) progress(ctx context.Context, fp string, current, total int) {
	if err := s.store.UpdateProgress(ctx, fp, current, total); err != nil {
		s.logger.Debug(ctx, "progress update failed", logger.String("fingerprint", fp), logger.Error(err))
	}
}

func teamNumbers(teams []model.Team) []int {
	out := make([]int, len(teams))
	for i, t := range teams {
		out[i] = t.TeamNumber
	}
	return out
}
