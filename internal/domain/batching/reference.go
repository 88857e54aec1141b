// Package batching splits a pre-ranked roster into calibration references and
// bounded model batches.
package batching

import (
	"math"

	"github.com/okian/picklist/internal/domain/model"
)

// DefaultReferenceCount is used when a request leaves reference_teams_count unset.
const DefaultReferenceCount = 3

// SelectReferences picks calibration anchors from a heuristic-ranked roster.
// Picking count or more teams from an n-team roster yields none: every team
// would be a reference and there would be nothing left to calibrate.
func SelectReferences(ranked []model.Team, count int, strategy model.ReferenceStrategy) ([]model.Team, error) {
	strategy, err := model.ParseReferenceStrategy(string(strategy))
	if err != nil {
		return nil, model.WrapError("batching.references", model.ErrValidation, err)
	}

	n := len(ranked)
	if strategy == model.StrategyNone || count <= 0 || count >= n {
		return nil, nil
	}
	if count == 1 {
		return []model.Team{ranked[0]}, nil
	}

	if strategy == model.StrategyTop {
		return append([]model.Team(nil), ranked[:count]...), nil
	}

	// top_middle_bottom and evenly_spaced spread count anchors over the
	// full range, always including the first and last team.
	out := make([]model.Team, 0, count)
	last := -1
	for i := 0; i < count; i++ {
		idx := int(math.Round(float64(i) * float64(n-1) / float64(count-1)))
		if idx == last {
			continue
		}
		out = append(out, ranked[idx])
		last = idx
	}
	return out, nil
}
