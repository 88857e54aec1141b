package ranking

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/picklist/internal/domain/model"
)

// reply is one team row decoded from model output.
type reply struct {
	team      int
	score     float64
	valid     bool
	reasoning string
}

// cleanJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// parseReply decodes a model reply. It accepts the verbose
// {"picklist":[{"team":..,"score":..,"reasoning":..}]} form and the compact
// {"p":[[team,score,"reason"],..]} form. Rows whose team cannot be read are
// dropped; rows whose score cannot be read are kept with valid=false.
func parseReply(text string) ([]reply, error) {
	raw := cleanJSON(text)
	if raw == "" {
		return nil, model.NewError("ranking.parse", model.ErrParse, "no JSON object in reply")
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, model.WrapError("ranking.parse", model.ErrParse, err)
	}

	if body, ok := env["picklist"]; ok {
		var rows []map[string]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, model.WrapError("ranking.parse", model.ErrParse, err)
		}
		out := make([]reply, 0, len(rows))
		for _, row := range rows {
			teamVal, ok := row["team"]
			if !ok {
				teamVal = row["team_number"]
			}
			team, ok := toTeam(teamVal)
			if !ok {
				continue
			}
			r := reply{team: team}
			r.score, r.valid = toScore(row["score"])
			r.reasoning = toText(row["reasoning"])
			if r.reasoning == "" {
				r.reasoning = toText(row["reason"])
			}
			out = append(out, r)
		}
		return out, nil
	}

	if body, ok := env["p"]; ok {
		var rows [][]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, model.WrapError("ranking.parse", model.ErrParse, err)
		}
		out := make([]reply, 0, len(rows))
		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			team, ok := toTeam(row[0])
			if !ok {
				continue
			}
			r := reply{team: team}
			r.score, r.valid = toScore(row[1])
			if len(row) > 2 {
				r.reasoning = toText(row[2])
			}
			out = append(out, r)
		}
		return out, nil
	}

	return nil, model.NewError("ranking.parse", model.ErrParse, "reply has neither picklist nor p")
}

func toTeam(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t <= 0 {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil && n > 0
	}
	return 0, false
}

func toScore(v any) (float64, bool) {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case string:
		var err error
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return fmt.Sprint(s)
	}
}
