// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Score bounds shared by every scorer.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Team is one roster row. Teams are immutable input.
type Team struct {
	TeamNumber int                `json:"team_number" yaml:"team_number"`
	Nickname   string             `json:"nickname" yaml:"nickname"`
	Stats      map[string]float64 `json:"stats" yaml:"stats"`
}

// Stat returns the named metric or 0 when the team has no value for it.
func (t Team) Stat(metric string) float64 {
	return t.Stats[metric]
}

// Priority weights one metric in a ranking request.
type Priority struct {
	MetricID string  `json:"metric_id"`
	Weight   float64 `json:"weight"`
	Reason   string  `json:"reason,omitempty"`
}

// PickPosition is the draft round a picklist is computed for.
type PickPosition string

// Pick positions.
const (
	PickFirst  PickPosition = "first"
	PickSecond PickPosition = "second"
	PickThird  PickPosition = "third"
)

// ParsePickPosition normalizes s into a PickPosition.
func ParsePickPosition(s string) (PickPosition, error) {
	switch p := PickPosition(strings.ToLower(strings.TrimSpace(s))); p {
	case PickFirst, PickSecond, PickThird:
		return p, nil
	case "":
		return PickFirst, nil
	default:
		return "", fmt.Errorf("unknown pick position %q", s)
	}
}

// ScoredTeam is one ranked row. Entries are replaced, never mutated.
type ScoredTeam struct {
	TeamNumber int     `json:"team_number"`
	Nickname   string  `json:"nickname"`
	Score      float64 `json:"score"`
	Reasoning  string  `json:"reasoning"`
	IsFallback bool    `json:"is_fallback"`
}

// ClampScore bounds s to [MinScore, MaxScore].
func ClampScore(s float64) float64 {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// Batch is one model call worth of teams. References are shared by every
// batch of a request.
type Batch struct {
	Index      int    `json:"index"`
	Members    []Team `json:"members"`
	References []Team `json:"references"`
}

// Teams returns references followed by members.
func (b Batch) Teams() []Team {
	out := make([]Team, 0, len(b.References)+len(b.Members))
	out = append(out, b.References...)
	return append(out, b.Members...)
}

// Size is the number of teams sent to the model for this batch.
func (b Batch) Size() int {
	return len(b.Members) + len(b.References)
}

// BatchResult is the ranking client's output for one batch.
type BatchResult struct {
	Index      int          `json:"index"`
	Scored     []ScoredTeam `json:"scored"`
	References []int        `json:"references"`
}

// IndexByNumber maps team numbers to their position in teams.
func IndexByNumber(teams []Team) map[int]int {
	idx := make(map[int]int, len(teams))
	for i, t := range teams {
		if _, ok := idx[t.TeamNumber]; !ok {
			idx[t.TeamNumber] = i
		}
	}
	return idx
}
