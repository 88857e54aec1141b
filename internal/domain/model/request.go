package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ReferenceStrategy selects calibration anchors from a pre-ranked roster.
type ReferenceStrategy string

// Reference strategies.
const (
	StrategyTopMiddleBottom ReferenceStrategy = "top_middle_bottom"
	StrategyEvenlySpaced    ReferenceStrategy = "evenly_spaced"
	StrategyTop             ReferenceStrategy = "top"
	StrategyNone            ReferenceStrategy = "none"
)

// ParseReferenceStrategy normalizes s; the empty string selects top_middle_bottom.
func ParseReferenceStrategy(s string) (ReferenceStrategy, error) {
	switch r := ReferenceStrategy(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return StrategyTopMiddleBottom, nil
	case StrategyTopMiddleBottom, StrategyEvenlySpaced, StrategyTop, StrategyNone:
		return r, nil
	default:
		return "", fmt.Errorf("unknown reference strategy %q", s)
	}
}

// Request describes one picklist generation.
type Request struct {
	Roster            []Team            `json:"roster"`
	RosterRef         string            `json:"roster_ref,omitempty"`
	GameContext       string            `json:"game_context,omitempty"`
	YourTeamNumber    int               `json:"your_team_number"`
	PickPosition      PickPosition      `json:"pick_position"`
	Priorities        []Priority        `json:"priorities"`
	ExcludeTeams      []int             `json:"exclude_teams"`
	UseBatching       bool              `json:"use_batching"`
	BatchSize         int               `json:"batch_size"`
	ReferenceCount    int               `json:"reference_count"`
	ReferenceStrategy ReferenceStrategy `json:"reference_strategy"`
	FinalRerank       bool              `json:"final_rerank"`
	ForceRefresh      bool              `json:"-"`
}

// Validate rejects requests that cannot be ranked. It runs before any batch.
func (r *Request) Validate() error {
	const op = "request.validate"
	switch {
	case len(r.Roster) == 0:
		return NewError(op, ErrValidation, "roster is empty")
	case len(r.Priorities) == 0:
		return NewError(op, ErrValidation, "priorities must not be empty")
	case r.BatchSize <= 0:
		return NewError(op, ErrValidation, fmt.Sprintf("batch_size must be positive (got %d)", r.BatchSize))
	case r.ReferenceCount < 0:
		return NewError(op, ErrValidation, fmt.Sprintf("reference_teams_count must not be negative (got %d)", r.ReferenceCount))
	}

	if _, err := ParsePickPosition(string(r.PickPosition)); err != nil {
		return WrapError(op, ErrValidation, err)
	}
	if _, err := ParseReferenceStrategy(string(r.ReferenceStrategy)); err != nil {
		return WrapError(op, ErrValidation, err)
	}

	seen := make(map[string]struct{}, len(r.Priorities))
	for _, p := range r.Priorities {
		id := strings.TrimSpace(p.MetricID)
		if id == "" {
			return NewError(op, ErrValidation, "priority metric_id must not be empty")
		}
		if p.Weight < 0 || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			return NewError(op, ErrValidation, fmt.Sprintf("priority %q has invalid weight %v", id, p.Weight))
		}
		if _, dup := seen[id]; dup {
			return NewError(op, ErrValidation, fmt.Sprintf("duplicate priority %q", id))
		}
		seen[id] = struct{}{}
	}

	teams := make(map[int]struct{}, len(r.Roster))
	for _, t := range r.Roster {
		if _, dup := teams[t.TeamNumber]; dup {
			return NewError(op, ErrValidation, fmt.Sprintf("duplicate team %d in roster", t.TeamNumber))
		}
		teams[t.TeamNumber] = struct{}{}
	}

	return nil
}

// Normalize fills defaults for optional fields. Call after Validate.
func (r *Request) Normalize() {
	r.PickPosition, _ = ParsePickPosition(string(r.PickPosition))
	r.ReferenceStrategy, _ = ParseReferenceStrategy(string(r.ReferenceStrategy))
}

// Excluded returns the exclusion set.
func (r *Request) Excluded() map[int]struct{} {
	out := make(map[int]struct{}, len(r.ExcludeTeams))
	for _, n := range r.ExcludeTeams {
		out[n] = struct{}{}
	}
	return out
}

// Eligible returns roster teams not in the exclusion set, in roster order.
func (r *Request) Eligible() []Team {
	ex := r.Excluded()
	out := make([]Team, 0, len(r.Roster))
	for _, t := range r.Roster {
		if _, skip := ex[t.TeamNumber]; skip {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Batched reports whether the request runs through the batch planner.
func (r *Request) Batched() bool {
	return r.UseBatching && len(r.Eligible()) > r.BatchSize
}

// fingerprintInput is the canonical form hashed into a Fingerprint.
type fingerprintInput struct {
	YourTeamNumber int          `json:"your_team_number"`
	PickPosition   PickPosition `json:"pick_position"`
	Priorities     []Priority   `json:"priorities"`
	ExcludeTeams   []int        `json:"exclude_teams"`
	RosterSize     int          `json:"roster_size"`
}

// Fingerprint derives the cache key for a request. Priority order and the
// order of excluded teams do not affect the result.
func (r *Request) Fingerprint() string {
	pos, err := ParsePickPosition(string(r.PickPosition))
	if err != nil {
		pos = r.PickPosition
	}

	prios := make([]Priority, len(r.Priorities))
	for i, p := range r.Priorities {
		prios[i] = Priority{
			MetricID: strings.TrimSpace(p.MetricID),
			Weight:   p.Weight,
			Reason:   strings.TrimSpace(p.Reason),
		}
	}
	sort.Slice(prios, func(i, j int) bool { return prios[i].MetricID < prios[j].MetricID })

	excluded := make([]int, 0, len(r.ExcludeTeams))
	seen := make(map[int]struct{}, len(r.ExcludeTeams))
	for _, n := range r.ExcludeTeams {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		excluded = append(excluded, n)
	}
	sort.Ints(excluded)

	raw, _ := json.Marshal(fingerprintInput{
		YourTeamNumber: r.YourTeamNumber,
		PickPosition:   pos,
		Priorities:     prios,
		ExcludeTeams:   excluded,
		RosterSize:     len(r.Roster),
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
