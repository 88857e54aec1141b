package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/picklist/internal/domain/batching"
	"github.com/okian/picklist/internal/domain/combine"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/ranking"
	"github.com/okian/picklist/internal/domain/reconcile"
	"github.com/okian/picklist/internal/domain/scoring"
	"github.com/okian/picklist/pkg/logger"
	"github.com/okian/picklist/pkg/metrics"
)

// missingAttempts is how many times a team is sent to the model before it
// stays a fallback.
const missingAttempts = 2

// patchStripes is the number of locks fingerprints hash onto when a result
// is patched.
const patchStripes = 64

// RankMissing scores teams absent from, or only heuristically scored in, the
// result of fp. The model sees the original references and its scores are
// shifted onto the stored baseline. With no teams given, every missing and
// fallback team is retried. existing, when set, replaces the stored result
// as the ranking to patch. Calls for the same fingerprint and teams without
// an existing result share one execution.
func (s *Service) RankMissing(ctx context.Context, fp string, teams []int, existing []model.ScoredTeam) (model.CacheEntry, error) {
	if !s.isStarted() {
		return model.CacheEntry{}, ErrNotStarted
	}

	if len(existing) > 0 {
		e, err := s.rankMissing(ctx, fp, teams, existing)
		return e, model.WithFingerprint(err, fp)
	}

	v, err, shared := s.flight.Do(flightKey(fp, teams), func() (any, error) {
		return s.rankMissing(ctx, fp, teams, nil)
	})
	if shared {
		metrics.RecordRequestCoalesced()
	}
	if err != nil {
		return model.CacheEntry{}, model.WithFingerprint(err, fp)
	}
	return v.(model.CacheEntry), nil
}

func (s *Service) rankMissing(ctx context.Context, fp string, teams []int, existing []model.ScoredTeam) (model.CacheEntry, error) {
	const op = "service.rank_missing"

	entry, err := s.store.Get(ctx, fp)
	if err != nil {
		return model.CacheEntry{}, err
	}
	if entry.Status != model.StatusSuccess {
		return model.CacheEntry{}, model.NewError(op, model.ErrCacheConflict,
			fmt.Sprintf("ranking is %s, not complete", entry.Status))
	}
	if entry.Request == nil {
		return model.CacheEntry{}, model.NewError(op, model.ErrNotFound, "entry has no stored request")
	}
	req := entry.Request

	result := entry.Result
	if len(existing) > 0 {
		result = existing
	}

	targets, err := missingTargets(req, result, teams)
	if err != nil {
		return model.CacheEntry{}, model.WrapError(op, model.ErrValidation, err)
	}
	if len(targets) == 0 {
		return entry, nil
	}

	var cal model.Calibration
	if entry.Calibration != nil {
		cal = *entry.Calibration
	}

	h := scoring.NewHeuristic(req.Roster)
	byNumber := model.IndexByNumber(req.Roster)
	log := s.logger.With(logger.String("fingerprint", fp))

	rescored := make(map[int]model.ScoredTeam, len(targets))
	pending := targets
	for attempt := 1; attempt <= missingAttempts && len(pending) > 0; attempt++ {
		rows, err := s.scoreSubset(ctx, req, h, pending, cal)
		if err != nil {
			return model.CacheEntry{}, err
		}
		var retry []int
		for _, n := range pending {
			st, ok := rows[n]
			if !ok {
				st = h.Fallback(req.Roster[byNumber[n]], req.Priorities, scoring.ReasonRetried)
			}
			if st.IsFallback && attempt == missingAttempts {
				st = h.Fallback(req.Roster[byNumber[n]], req.Priorities, scoring.ReasonRetried)
			}
			rescored[n] = st
			if st.IsFallback {
				retry = append(retry, n)
			}
		}
		pending = retry
		log.Debug(ctx, "missing teams attempt done",
			logger.Int("attempt", attempt),
			logger.Int("still_fallback", len(pending)),
		)
	}

	rows := make([]model.ScoredTeam, 0, len(rescored))
	recovered := 0
	for _, n := range targets {
		st := rescored[n]
		if !st.IsFallback {
			recovered++
		}
		rows = append(rows, st)
	}
	if recovered > 0 {
		metrics.RecordMissingRecovered(recovered)
	}
	if len(pending) > 0 {
		metrics.RecordFallbackTeams(scoring.ReasonRetried, len(pending))
	}

	patched, err := s.patchResult(ctx, fp, rows, existing)
	if err != nil {
		return model.CacheEntry{}, err
	}
	log.Info(ctx, "missing teams ranked",
		logger.Int("requested", len(targets)),
		logger.Int("recovered", recovered),
	)
	return patched, nil
}

// patchResult writes rows into the latest result of fp, or into existing
// when set. Patches of one fingerprint are serialized so concurrent calls
// for different teams all land.
func (s *Service) patchResult(ctx context.Context, fp string, rows, existing []model.ScoredTeam) (model.CacheEntry, error) {
	const op = "service.rank_missing"

	mu := s.patchLock(fp)
	mu.Lock()
	defer mu.Unlock()

	entry, err := s.store.Get(ctx, fp)
	if err != nil {
		return model.CacheEntry{}, err
	}
	if entry.Status != model.StatusSuccess || entry.Request == nil {
		return model.CacheEntry{}, model.NewError(op, model.ErrCacheConflict,
			fmt.Sprintf("ranking changed to %s while scoring", entry.Status))
	}
	req := entry.Request

	result := entry.Result
	if len(existing) > 0 {
		result = existing
	}

	h := scoring.NewHeuristic(req.Roster)
	updated := reconcile.Replace(result, rows, req.Roster)
	updated, _ = reconcile.Fill(updated, req.Roster, req.Excluded(), h, req.Priorities)

	if err := s.store.Complete(ctx, fp, updated, nil); err != nil {
		return model.CacheEntry{}, err
	}
	return s.store.Get(ctx, fp)
}

func (s *Service) patchLock(fp string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	return &s.patchMu[h.Sum32()%patchStripes]
}

// scoreSubset ranks teams alongside the stored references and returns
// drift-corrected rows by team number.
func (s *Service) scoreSubset(ctx context.Context, req *model.Request, h *scoring.Heuristic, teams []int, cal model.Calibration) (map[int]model.ScoredTeam, error) {
	byNumber := model.IndexByNumber(req.Roster)
	target := make(map[int]struct{}, len(teams))
	members := make([]model.Team, 0, len(teams))
	for _, n := range teams {
		target[n] = struct{}{}
		members = append(members, req.Roster[byNumber[n]])
	}

	// A reference that needs scoring itself goes in as a member.
	var refs []model.Team
	for _, n := range cal.References {
		i, ok := byNumber[n]
		if !ok {
			continue
		}
		if _, self := target[n]; self {
			continue
		}
		refs = append(refs, req.Roster[i])
	}

	plan := batching.NewPlan(members, refs, req.BatchSize)
	out := make(map[int]model.ScoredTeam, len(teams))
	for _, b := range plan.Batches {
		res, err := s.ranker.RankBatch(ctx, ranking.Input{
			Batch:          b,
			Priorities:     req.Priorities,
			PickPosition:   req.PickPosition,
			YourTeamNumber: req.YourTeamNumber,
			GameContext:    req.GameContext,
			Heuristic:      h,
		})
		if err != nil {
			return nil, err
		}
		offset := combine.Offset(cal.BaselineScores, res)
		metrics.RecordDriftOffset(offset)
		for _, st := range combine.Adjust(res, offset) {
			if _, ok := target[st.TeamNumber]; ok {
				out[st.TeamNumber] = st
			}
		}
	}
	return out, nil
}

// missingTargets resolves the teams to rescore. Unknown or excluded teams
// are rejected.
func missingTargets(req *model.Request, result []model.ScoredTeam, teams []int) ([]int, error) {
	excluded := req.Excluded()
	if len(teams) == 0 {
		out := reconcile.Missing(req.Roster, result, excluded)
		for _, n := range reconcile.Fallbacks(result) {
			if _, skip := excluded[n]; !skip {
				out = append(out, n)
			}
		}
		return out, nil
	}

	known := model.IndexByNumber(req.Roster)
	seen := make(map[int]struct{}, len(teams))
	out := make([]int, 0, len(teams))
	for _, n := range teams {
		if _, ok := known[n]; !ok {
			return nil, fmt.Errorf("team %d is not in the roster", n)
		}
		if _, skip := excluded[n]; skip {
			return nil, fmt.Errorf("team %d is excluded", n)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

func flightKey(fp string, teams []int) string {
	sorted := append([]int(nil), teams...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, n := range sorted {
		parts[i] = strconv.Itoa(n)
	}
	return fp + "|" + strings.Join(parts, ",")
}

// MergeUserRanking folds a user-edited list into an existing ranking.
func (s *Service) MergeUserRanking(existing, user []model.ScoredTeam) []model.ScoredTeam {
	return combine.MergeUserRanking(existing, user)
}
