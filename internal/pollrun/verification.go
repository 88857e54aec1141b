package pollrun

import (
	"fmt"

	"github.com/okian/picklist/internal/domain/model"
)

// verifyPicklist checks that every eligible team appears exactly once,
// nothing excluded leaks in and scores are sorted and in range.
func verifyPicklist(req generateBody, picklist []model.ScoredTeam) error {
	excluded := make(map[int]bool, len(req.ExcludeTeams))
	for _, n := range req.ExcludeTeams {
		excluded[n] = true
	}
	want := make(map[int]bool, len(req.Roster))
	for _, t := range req.Roster {
		if !excluded[t.TeamNumber] {
			want[t.TeamNumber] = true
		}
	}

	seen := make(map[int]bool, len(picklist))
	for i, st := range picklist {
		switch {
		case seen[st.TeamNumber]:
			return fmt.Errorf("team %d listed twice", st.TeamNumber)
		case !want[st.TeamNumber]:
			return fmt.Errorf("team %d is not eligible", st.TeamNumber)
		case st.Score < 0 || st.Score > model.MaxScore:
			return fmt.Errorf("team %d score %.2f out of range", st.TeamNumber, st.Score)
		case i > 0 && st.Score > picklist[i-1].Score:
			return fmt.Errorf("team %d at %d scores above team %d", st.TeamNumber, i, picklist[i-1].TeamNumber)
		}
		seen[st.TeamNumber] = true
	}
	if len(seen) != len(want) {
		return fmt.Errorf("picklist covers %d of %d eligible teams", len(seen), len(want))
	}
	return nil
}
