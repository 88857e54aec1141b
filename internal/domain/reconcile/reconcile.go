// Package reconcile finds roster teams absent from a ranking and patches them
// in, first as heuristic fallbacks and later with model scores.
package reconcile

import (
	"github.com/okian/picklist/internal/domain/combine"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/scoring"
)

// Missing returns the eligible roster teams that have no row in result, in
// roster order.
func Missing(roster []model.Team, result []model.ScoredTeam, excluded map[int]struct{}) []int {
	present := make(map[int]struct{}, len(result))
	for _, st := range result {
		present[st.TeamNumber] = struct{}{}
	}
	var out []int
	for _, t := range roster {
		if _, skip := excluded[t.TeamNumber]; skip {
			continue
		}
		if _, ok := present[t.TeamNumber]; !ok {
			out = append(out, t.TeamNumber)
		}
	}
	return out
}

// Fallbacks returns the team numbers whose rows are fallbacks.
func Fallbacks(result []model.ScoredTeam) []int {
	var out []int
	for _, st := range result {
		if st.IsFallback {
			out = append(out, st.TeamNumber)
		}
	}
	return out
}

// Fill appends a heuristic fallback for every missing team and re-sorts.
// Rows for excluded teams are dropped. It returns the new ranking and the
// team numbers that were filled.
func Fill(result []model.ScoredTeam, roster []model.Team, excluded map[int]struct{}, h *scoring.Heuristic, priorities []model.Priority) ([]model.ScoredTeam, []int) {
	missing := Missing(roster, result, excluded)
	out := make([]model.ScoredTeam, 0, len(result)+len(missing))
	for _, st := range result {
		if _, skip := excluded[st.TeamNumber]; skip {
			continue
		}
		out = append(out, st)
	}
	if len(missing) == 0 {
		return out, nil
	}

	idx := model.IndexByNumber(roster)
	for _, n := range missing {
		out = append(out, h.Fallback(roster[idx[n]], priorities, scoring.ReasonOmitted))
	}
	combine.Sort(out, rosterOrder(roster))
	return out, missing
}

// Replace swaps rows of result for the model-scored rows in rescored and
// re-sorts. Rescored teams not yet in result are added. Fallback rows in
// rescored only fill gaps; they never replace an existing row.
func Replace(result, rescored []model.ScoredTeam, roster []model.Team) []model.ScoredTeam {
	updates := make(map[int]model.ScoredTeam, len(rescored))
	for _, st := range rescored {
		updates[st.TeamNumber] = st
	}

	out := make([]model.ScoredTeam, 0, len(result)+len(rescored))
	seen := make(map[int]struct{}, len(result))
	for _, st := range result {
		seen[st.TeamNumber] = struct{}{}
		if u, ok := updates[st.TeamNumber]; ok && !u.IsFallback {
			st = u
		}
		out = append(out, st)
	}
	for _, st := range rescored {
		if _, ok := seen[st.TeamNumber]; ok {
			continue
		}
		seen[st.TeamNumber] = struct{}{}
		out = append(out, st)
	}
	combine.Sort(out, rosterOrder(roster))
	return out
}

func rosterOrder(roster []model.Team) map[int]int {
	return model.IndexByNumber(roster)
}
