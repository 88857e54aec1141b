package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/picklist/internal/domain/batching"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/scoring"
	"github.com/okian/picklist/pkg/logger"
	"github.com/okian/picklist/pkg/metrics"
)

// jobHandle lets callers in this process cancel or wait for a job.
type jobHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Generate accepts a picklist request. Batched requests return the pending
// entry at once; the rest wait for the job and return its terminal entry.
// Requests equal to one already pending, processing or done return that
// entry without starting new work.
func (s *Service) Generate(ctx context.Context, req model.Request) (model.CacheEntry, error) {
	const op = "service.generate"
	start := time.Now()
	defer func() { metrics.RecordRequestDuration(float64(time.Since(start).Milliseconds())) }()

	if !s.isStarted() {
		return model.CacheEntry{}, ErrNotStarted
	}

	if err := s.resolveRoster(ctx, &req); err != nil {
		metrics.RecordRequest("invalid")
		return model.CacheEntry{}, err
	}
	if err := req.Validate(); err != nil {
		metrics.RecordRequest("invalid")
		return model.CacheEntry{}, err
	}
	req.Normalize()

	fp := req.Fingerprint()
	log := s.logger.With(logger.String("fingerprint", fp))

	plan, err := planJob(&req)
	if err != nil {
		metrics.RecordRequest("invalid")
		return model.CacheEntry{}, model.WithFingerprint(model.WrapError(op, model.ErrValidation, err), fp)
	}
	total := len(plan.Batches)

	var entry model.CacheEntry
	for refreshed := false; ; refreshed = true {
		var created bool
		entry, created, err = s.store.GetOrCreate(ctx, fp, total, &req)
		if err != nil {
			return model.CacheEntry{}, model.WithFingerprint(err, fp)
		}
		if created {
			break
		}

		// Only the entry this call saw is dropped. A caller that loses the
		// race joins whatever entry replaced it.
		if req.ForceRefresh && !refreshed && entry.Status.Terminal() {
			deleted, err := s.store.DeleteIfUnchanged(ctx, fp, entry.UpdatedAt)
			if err != nil {
				return model.CacheEntry{}, model.WithFingerprint(err, fp)
			}
			if deleted {
				log.Info(ctx, "force refresh drops cached entry", logger.String("status", string(entry.Status)))
			} else {
				log.Debug(ctx, "force refresh already taken by another request")
			}
			continue
		}

		if entry.Status == model.StatusError {
			metrics.RecordRequest("conflict")
			return entry, &model.Error{
				Op:          op,
				Kind:        model.ErrCacheConflict,
				Fingerprint: fp,
				Err:         errors.New(entry.ErrorDetail),
			}
		}

		metrics.RecordRequestCoalesced()
		log.Debug(ctx, "request coalesced", logger.String("status", string(entry.Status)))
		if entry.Batched || entry.Status.Terminal() {
			return entry, nil
		}
		return s.waitResult(ctx, fp)
	}

	h := s.register(fp)
	job := model.Job{Fingerprint: fp, Request: &req, Plan: plan, EnqueuedAt: time.Now()}
	if !s.queue.Enqueue(ctx, job) {
		s.unregister(fp, h)
		if err := s.store.Delete(ctx, fp); err != nil {
			log.Warn(ctx, "dropping rejected entry", logger.Error(err))
		}
		metrics.RecordRequest("rejected")
		return model.CacheEntry{}, model.WithFingerprint(model.NewError(op, model.ErrBackpressure, "job queue is full"), fp)
	}
	metrics.RecordRequest("accepted")
	log.Info(ctx, "ranking job queued",
		logger.Int("teams", len(req.Eligible())),
		logger.Int("batches", total),
		logger.Bool("batched", entry.Batched),
	)

	if entry.Batched {
		return entry, nil
	}

	select {
	case <-h.done:
	case <-ctx.Done():
		return entry, model.WithFingerprint(model.WrapError(op, model.ErrCanceled, ctx.Err()), fp)
	}
	return s.waitResult(ctx, fp)
}

// waitResult waits for fp and turns a failed entry into its error.
func (s *Service) waitResult(ctx context.Context, fp string) (model.CacheEntry, error) {
	e, err := s.Wait(ctx, fp)
	if err != nil {
		return e, err
	}
	if e.Status == model.StatusError {
		return e, &model.Error{
			Op:          "service.generate",
			Kind:        model.KindOfCode(e.ErrorCode),
			Fingerprint: fp,
			Err:         errors.New(e.ErrorDetail),
		}
	}
	return e, nil
}

// Wait blocks until fp is terminal or ctx is done.
func (s *Service) Wait(ctx context.Context, fp string) (model.CacheEntry, error) {
	if !s.isStarted() {
		return model.CacheEntry{}, ErrNotStarted
	}

	ticker := time.NewTicker(s.waitInterval)
	defer ticker.Stop()

	for {
		e, err := s.store.Get(ctx, fp)
		if err != nil {
			return model.CacheEntry{}, model.WithFingerprint(err, fp)
		}
		if e.Status.Terminal() {
			return e, nil
		}

		var done <-chan struct{}
		if h := s.handle(fp); h != nil {
			done = h.done
		}
		select {
		case <-ctx.Done():
			return e, model.WithFingerprint(model.WrapError("service.wait", model.ErrCanceled, ctx.Err()), fp)
		case <-done:
		case <-ticker.C:
		}
	}
}

// Cancel stops the job computing fp. The entry ends in error with the
// canceled code. Terminal entries are returned unchanged.
func (s *Service) Cancel(ctx context.Context, fp string) (model.CacheEntry, error) {
	if !s.isStarted() {
		return model.CacheEntry{}, ErrNotStarted
	}

	e, err := s.store.Get(ctx, fp)
	if err != nil {
		return model.CacheEntry{}, model.WithFingerprint(err, fp)
	}
	if e.Status.Terminal() {
		return e, nil
	}

	cause := model.NewError("service.cancel", model.ErrCanceled, "canceled by request")
	h := s.handle(fp)
	if h != nil {
		h.cancel()
	}
	switch {
	case h != nil && e.Status == model.StatusProcessing:
		select {
		case <-h.done:
		case <-ctx.Done():
			return e, model.WithFingerprint(model.WrapError("service.cancel", model.ErrCanceled, ctx.Err()), fp)
		}
	default:
		// Still queued, or owned by another process sharing the store.
		if err := s.store.Fail(ctx, fp, cause); err != nil {
			s.logger.Debug(ctx, "cancel raced with the job", logger.String("fingerprint", fp), logger.Error(err))
		}
	}
	metrics.RecordJobCanceled()
	return s.Status(ctx, fp)
}

func (s *Service) resolveRoster(ctx context.Context, req *model.Request) error {
	if len(req.Roster) == 0 && req.RosterRef != "" {
		r, err := s.rosters.Roster(ctx, req.RosterRef)
		if err != nil {
			return err
		}
		req.Roster = r.Teams
		if req.GameContext == "" {
			req.GameContext = r.GameContext
		}
	}
	if req.GameContext == "" {
		req.GameContext = s.gameContext
	}
	return nil
}

// planJob pre-ranks the eligible roster and lays out the batches.
func planJob(req *model.Request) (*model.JobPlan, error) {
	eligible := req.Eligible()
	if len(eligible) == 0 {
		return &model.JobPlan{}, nil
	}

	h := scoring.NewHeuristic(req.Roster)
	ranked := h.Rank(eligible, req.Priorities)

	var plan batching.Plan
	if req.Batched() {
		refs, err := batching.SelectReferences(ranked, req.ReferenceCount, req.ReferenceStrategy)
		if err != nil {
			return nil, err
		}
		plan = batching.NewPlan(ranked, refs, req.BatchSize)
	} else {
		plan = batching.Single(ranked)
	}

	return &model.JobPlan{Ranked: ranked, References: plan.References, Batches: plan.Batches}, nil
}

// register installs a fresh handle for fp. A handle left by a job that is
// still winding down is replaced; that job only releases its own.
func (s *Service) register(fp string) *jobHandle {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	ctx, cancel := context.WithCancel(s.base)
	h := &jobHandle{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.jobs[fp] = h
	return h
}

// unregister releases h and drops it from the table if it is still the
// current handle of fp.
func (s *Service) unregister(fp string, h *jobHandle) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	h.cancel()
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	if s.jobs[fp] == h {
		delete(s.jobs, fp)
	}
}

func (s *Service) handle(fp string) *jobHandle {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	return s.jobs[fp]
}

func (s *Service) running() int {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	return len(s.jobs)
}
