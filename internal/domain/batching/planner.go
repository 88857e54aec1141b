package batching

import "github.com/okian/picklist/internal/domain/model"

// DefaultBatchSize is the batch size used when a request leaves it unset.
const DefaultBatchSize = 20

// Plan is the full set of model calls for one request.
type Plan struct {
	References []model.Team
	Batches    []model.Batch
}

// Total returns the number of batches.
func (p Plan) Total() int { return len(p.Batches) }

// Capacity returns how many non-reference teams fit in one batch so that a
// batch prompt never carries more than batchSize teams.
func Capacity(batchSize, references int) int {
	c := batchSize - references
	if c < 1 {
		return 1
	}
	return c
}

// NewPlan partitions ranked (minus refs) into consecutive batches. Each
// batch carries every reference. Identical input yields identical batches.
func NewPlan(ranked, refs []model.Team, batchSize int) Plan {
	isRef := make(map[int]struct{}, len(refs))
	for _, r := range refs {
		isRef[r.TeamNumber] = struct{}{}
	}
	members := make([]model.Team, 0, len(ranked))
	for _, t := range ranked {
		if _, ok := isRef[t.TeamNumber]; ok {
			continue
		}
		members = append(members, t)
	}

	capacity := Capacity(batchSize, len(refs))
	plan := Plan{References: refs}
	for start := 0; start < len(members); start += capacity {
		end := start + capacity
		if end > len(members) {
			end = len(members)
		}
		plan.Batches = append(plan.Batches, model.Batch{
			Index:      len(plan.Batches),
			Members:    members[start:end:end],
			References: refs,
		})
	}
	if len(plan.Batches) == 0 && len(refs) > 0 {
		// Only references are left: score them in a single batch.
		plan.Batches = []model.Batch{{Index: 0, References: refs}}
	}
	return plan
}

// Single wraps every team in one batch without references.
func Single(ranked []model.Team) Plan {
	return Plan{Batches: []model.Batch{{Index: 0, Members: ranked}}}
}
