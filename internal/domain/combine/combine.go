// Package combine merges per-batch model output into one calibrated ranking.
package combine

import (
	"math"
	"sort"

	"github.com/okian/picklist/internal/domain/model"
)

// Outcome is a merged ranking plus the calibration data used to build it.
type Outcome struct {
	Ranked []model.ScoredTeam
	// Offsets is the drift subtracted from each batch, by batch index.
	Offsets map[int]float64
	// Baseline holds the batch-0 model score of every reference.
	Baseline map[int]float64
}

// Baseline returns the model-scored reference rows of the calibration batch.
func Baseline(res model.BatchResult) map[int]float64 {
	refs := make(map[int]struct{}, len(res.References))
	for _, n := range res.References {
		refs[n] = struct{}{}
	}
	out := make(map[int]float64, len(refs))
	for _, st := range res.Scored {
		if _, ok := refs[st.TeamNumber]; ok && !st.IsFallback {
			out[st.TeamNumber] = st.Score
		}
	}
	return out
}

// Offset is the mean model score of the references in res minus their mean
// in baseline. Only references scored by the model on both sides count; when
// there are none the offset is 0.
func Offset(baseline map[int]float64, res model.BatchResult) float64 {
	current := Baseline(res)
	var sum float64
	n := 0
	for team, score := range current {
		base, ok := baseline[team]
		if !ok {
			continue
		}
		sum += score - base
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Adjust subtracts offset from every model-scored non-reference row of res.
// Fallback rows are heuristic scores and are left as they are.
func Adjust(res model.BatchResult, offset float64) []model.ScoredTeam {
	refs := make(map[int]struct{}, len(res.References))
	for _, n := range res.References {
		refs[n] = struct{}{}
	}
	out := make([]model.ScoredTeam, 0, len(res.Scored))
	for _, st := range res.Scored {
		if _, ok := refs[st.TeamNumber]; ok {
			continue
		}
		if !st.IsFallback && offset != 0 {
			st.Score = model.ClampScore(st.Score - offset)
		}
		out = append(out, st)
	}
	return out
}

// Merge calibrates every batch against batch 0 and returns one ranking.
// order maps team numbers to their roster position and breaks score ties.
func Merge(results []model.BatchResult, order map[int]int) Outcome {
	sorted := append([]model.BatchResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	out := Outcome{Offsets: make(map[int]float64, len(sorted)), Baseline: map[int]float64{}}
	if len(sorted) == 0 {
		return out
	}
	out.Baseline = Baseline(sorted[0])

	best := make(map[int]model.ScoredTeam)
	keep := func(st model.ScoredTeam) {
		if cur, ok := best[st.TeamNumber]; ok && cur.Score >= st.Score {
			return
		}
		best[st.TeamNumber] = st
	}

	// One copy of each reference, taken from the first batch that carries it.
	for _, res := range sorted {
		refs := make(map[int]struct{}, len(res.References))
		for _, n := range res.References {
			refs[n] = struct{}{}
		}
		for _, st := range res.Scored {
			if _, ok := refs[st.TeamNumber]; !ok {
				continue
			}
			if _, seen := best[st.TeamNumber]; !seen {
				best[st.TeamNumber] = st
			}
		}
	}

	for i, res := range sorted {
		offset := 0.0
		if i > 0 {
			offset = Offset(out.Baseline, res)
		}
		out.Offsets[res.Index] = offset
		for _, st := range Adjust(res, offset) {
			keep(st)
		}
	}

	ranked := make([]model.ScoredTeam, 0, len(best))
	for _, st := range best {
		ranked = append(ranked, st)
	}
	Sort(ranked, order)
	out.Ranked = ranked
	return out
}

// Sort orders rows by score, highest first. Ties follow order; teams missing
// from order sort after those present, by team number.
func Sort(rows []model.ScoredTeam, order map[int]int) {
	pos := func(n int) int {
		if p, ok := order[n]; ok {
			return p
		}
		return math.MaxInt
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		pi, pj := pos(rows[i].TeamNumber), pos(rows[j].TeamNumber)
		if pi != pj {
			return pi < pj
		}
		return rows[i].TeamNumber < rows[j].TeamNumber
	})
}

// OrderOf maps each row's team to its position in rows.
func OrderOf(rows []model.ScoredTeam) map[int]int {
	out := make(map[int]int, len(rows))
	for i, st := range rows {
		if _, ok := out[st.TeamNumber]; !ok {
			out[st.TeamNumber] = i
		}
	}
	return out
}
