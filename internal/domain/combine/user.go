package combine

import "github.com/okian/picklist/internal/domain/model"

// MergeUserRanking folds a user-supplied ranking into an existing one. For a
// team present in both, the higher score wins and the user row wins ties.
// The result is sorted by score; ties list user rows first, in user order,
// then the remaining rows in existing order.
func MergeUserRanking(existing, user []model.ScoredTeam) []model.ScoredTeam {
	order := make(map[int]int, len(existing)+len(user))
	best := make(map[int]model.ScoredTeam, len(existing)+len(user))

	for _, st := range user {
		if _, ok := order[st.TeamNumber]; !ok {
			order[st.TeamNumber] = len(order)
		}
		if cur, ok := best[st.TeamNumber]; !ok || st.Score > cur.Score {
			best[st.TeamNumber] = st
		}
	}
	for _, st := range existing {
		if _, ok := order[st.TeamNumber]; !ok {
			order[st.TeamNumber] = len(order)
		}
		if cur, ok := best[st.TeamNumber]; !ok || st.Score > cur.Score {
			best[st.TeamNumber] = st
		}
	}

	out := make([]model.ScoredTeam, 0, len(best))
	for _, st := range best {
		out = append(out, st)
	}
	Sort(out, order)
	return out
}
