package pollrun

import (
	"fmt"
	"math/rand"

	"github.com/okian/picklist/internal/domain/model"
)

// Synthetic roster shape.
const (
	firstTeamNumber = 100
	teamNumberStep  = 7
	statMax         = 40.0
)

var metricIDs = []string{"auto_points", "teleop_points", "endgame_points", "defense_rating"} //nolint:gochecknoglobals // fixed metric set

// generateRoster builds n teams with reproducible stats for seed.
func generateRoster(n int, seed int64) []model.Team {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // synthetic data
	teams := make([]model.Team, n)
	for i := range teams {
		stats := make(map[string]float64, len(metricIDs))
		skill := rng.Float64()
		for _, m := range metricIDs {
			stats[m] = float64(int((skill*0.7+rng.Float64()*0.3)*statMax*10)) / 10
		}
		number := firstTeamNumber + i*teamNumberStep
		teams[i] = model.Team{
			TeamNumber: number,
			Nickname:   fmt.Sprintf("Synthetic %d", number),
			Stats:      stats,
		}
	}
	return teams
}

// buildRequest assembles the generate payload for a run.
func buildRequest(cfg *Config, runID string) generateBody {
	roster := generateRoster(cfg.NumTeams, cfg.Seed)
	return generateBody{
		Roster:         roster,
		GameContext:    "Synthetic season generated by run " + runID,
		YourTeamNumber: roster[0].TeamNumber,
		PickPosition:   string(model.PickFirst),
		Priorities: []model.Priority{
			{MetricID: "auto_points", Weight: 3, Reason: "autonomous sets up the match"},
			{MetricID: "teleop_points", Weight: 2},
			{MetricID: "endgame_points", Weight: 1},
		},
		ExcludeTeams:        []int{roster[0].TeamNumber},
		UseBatching:         true,
		BatchSize:           cfg.BatchSize,
		ReferenceTeamsCount: cfg.References,
		ForceRefresh:        true,
	}
}
