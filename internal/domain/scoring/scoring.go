// Package scoring computes the deterministic heuristic used to pre-rank a
// roster and to stand in for teams the ranking model failed to score.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/picklist/internal/domain/model"
)

// Fallback reasons reported in ScoredTeam.Reasoning and metrics.
const (
	ReasonOmitted  = "omitted"
	ReasonInvalid  = "invalid_score"
	ReasonParse    = "unparseable_reply"
	ReasonRetried  = "missing_after_retry"
	reasonTemplate = "Fallback ranking (%s): weighted heuristic %.1f"
)

type bounds struct {
	min, max float64
}

// Heuristic scores teams from normalized stats. It is immutable once built
// and safe for concurrent use.
type Heuristic struct {
	bounds map[string]bounds
}

// NewHeuristic observes per-metric bounds over roster. Teams that do not
// report a metric count as 0 for it.
func NewHeuristic(roster []model.Team) *Heuristic {
	metrics := make(map[string]struct{})
	for _, t := range roster {
		for k := range t.Stats {
			metrics[k] = struct{}{}
		}
	}

	h := &Heuristic{bounds: make(map[string]bounds, len(metrics))}
	for k := range metrics {
		b := bounds{min: roster[0].Stat(k), max: roster[0].Stat(k)}
		for _, t := range roster[1:] {
			v := t.Stat(k)
			if v < b.min {
				b.min = v
			}
			if v > b.max {
				b.max = v
			}
		}
		h.bounds[k] = b
	}
	return h
}

// Normalize maps a raw metric value into [0,1] using the roster bounds.
// Metrics with no spread, or that no team reports, normalize to 0.
func (h *Heuristic) Normalize(metric string, v float64) float64 {
	b, ok := h.bounds[metric]
	if !ok || b.max == b.min {
		return 0
	}
	n := (v - b.min) / (b.max - b.min)
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	}
	return n
}

// Score returns the weighted mean of normalized metrics, in [0,1].
func (h *Heuristic) Score(team model.Team, priorities []model.Priority) float64 {
	var sum, weights float64
	for _, p := range priorities {
		if p.Weight <= 0 {
			continue
		}
		id := strings.TrimSpace(p.MetricID)
		sum += h.Normalize(id, team.Stat(id)) * p.Weight
		weights += p.Weight
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// Fallback builds the substitute row for a team the model did not score.
func (h *Heuristic) Fallback(team model.Team, priorities []model.Priority, reason string) model.ScoredTeam {
	score := model.ClampScore(h.Score(team, priorities) * model.MaxScore)
	return model.ScoredTeam{
		TeamNumber: team.TeamNumber,
		Nickname:   team.Nickname,
		Score:      score,
		Reasoning:  fmt.Sprintf(reasonTemplate, reason, score),
		IsFallback: true,
	}
}

// Rank returns teams ordered by heuristic score, highest first. Ties keep
// input order. The input slice is not modified.
func (h *Heuristic) Rank(teams []model.Team, priorities []model.Priority) []model.Team {
	type row struct {
		team  model.Team
		score float64
	}
	rows := make([]row, len(teams))
	for i, t := range teams {
		rows[i] = row{team: t, score: h.Score(t, priorities)}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })

	out := make([]model.Team, len(rows))
	for i, r := range rows {
		out[i] = r.team
	}
	return out
}
