package combine

import "github.com/okian/picklist/internal/domain/model"

// ApplySlice replaces the scores of the teams in reranked, which must come
// from the top of result. New scores are shifted so the slice keeps its
// previous mean, which keeps them comparable with the rows below. Fallback
// rows in reranked leave the existing row untouched.
func ApplySlice(result, reranked []model.ScoredTeam) []model.ScoredTeam {
	current := make(map[int]model.ScoredTeam, len(result))
	for _, st := range result {
		current[st.TeamNumber] = st
	}

	var oldSum, newSum float64
	n := 0
	for _, st := range reranked {
		prev, ok := current[st.TeamNumber]
		if !ok || st.IsFallback {
			continue
		}
		oldSum += prev.Score
		newSum += st.Score
		n++
	}
	if n == 0 {
		return append([]model.ScoredTeam(nil), result...)
	}
	shift := oldSum/float64(n) - newSum/float64(n)

	updated := make(map[int]model.ScoredTeam, n)
	for _, st := range reranked {
		if _, ok := current[st.TeamNumber]; !ok || st.IsFallback {
			continue
		}
		st.Score = model.ClampScore(st.Score + shift)
		updated[st.TeamNumber] = st
	}

	out := make([]model.ScoredTeam, len(result))
	for i, st := range result {
		if u, ok := updated[st.TeamNumber]; ok {
			st = u
		}
		out[i] = st
	}
	Sort(out, OrderOf(result))
	return out
}
