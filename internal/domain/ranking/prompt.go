package ranking

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/picklist/internal/domain/model"
)

const systemPrompt = `You rank robotics teams for an alliance selection picklist.
Score every listed team from 0 to 100 where 100 is the best pick for the stated position and priorities.
Teams marked "ref": true are calibration anchors that appear in every batch; score them consistently on the same absolute scale.
Use only the stats provided. Do not invent teams and do not skip any.
Respond with a single JSON object and nothing else:
{"picklist":[{"team":<team number>,"score":<0-100>,"reasoning":"<one short sentence>"}]}`

var pickGuidance = map[model.PickPosition]string{
	model.PickFirst:  "First pick: favour the strongest all-round partner who complements our robot.",
	model.PickSecond: "Second pick: favour reliable specialists that fill gaps left by the first pick.",
	model.PickThird:  "Third pick: favour consistent, low-risk robots and useful backup roles.",
}

type promptTeam struct {
	Team     int                `json:"team"`
	Nickname string             `json:"nickname,omitempty"`
	Ref      bool               `json:"ref,omitempty"`
	Stats    map[string]float64 `json:"stats"`
}

// BuildPrompt renders the model request for one batch.
func BuildPrompt(in Input) Prompt {
	var b strings.Builder

	if in.GameContext != "" {
		fmt.Fprintf(&b, "Game context:\n%s\n\n", strings.TrimSpace(in.GameContext))
	}
	fmt.Fprintf(&b, "Our team: %d\n", in.YourTeamNumber)
	fmt.Fprintf(&b, "%s\n\n", pickGuidance[in.PickPosition])

	b.WriteString("Priorities (metric, weight, reason):\n")
	for _, p := range in.Priorities {
		if p.Reason != "" {
			fmt.Fprintf(&b, "- %s, %.2f, %s\n", p.MetricID, p.Weight, p.Reason)
			continue
		}
		fmt.Fprintf(&b, "- %s, %.2f\n", p.MetricID, p.Weight)
	}

	refs := make(map[int]struct{}, len(in.Batch.References))
	for _, r := range in.Batch.References {
		refs[r.TeamNumber] = struct{}{}
	}

	teams := in.Batch.Teams()
	numbers := make([]int, 0, len(teams))
	fmt.Fprintf(&b, "\nTeams (%d, one JSON object per line):\n", len(teams))
	for _, t := range teams {
		_, isRef := refs[t.TeamNumber]
		row := promptTeam{
			Team:     t.TeamNumber,
			Nickname: t.Nickname,
			Ref:      isRef,
			Stats:    make(map[string]float64, len(in.Priorities)),
		}
		for _, p := range in.Priorities {
			if v, ok := t.Stats[p.MetricID]; ok {
				row.Stats[p.MetricID] = v
			}
		}
		line, _ := json.Marshal(row)
		b.Write(line)
		b.WriteByte('\n')
		numbers = append(numbers, t.TeamNumber)
	}
	fmt.Fprintf(&b, "\nReturn exactly %d entries.", len(teams))

	return Prompt{System: systemPrompt, User: b.String(), Teams: numbers}
}
