// Package pollrun drives a running picklist service end to end: it posts a
// synthetic roster, polls the run to completion and checks the result.
package pollrun

import (
	"time"

	"github.com/okian/picklist/internal/domain/model"
)

// Config holds configuration for a poll run.
type Config struct {
	BaseURL      string        // Base URL of the service
	NumTeams     int           // Synthetic roster size
	BatchSize    int           // Teams per batch, references included
	References   int           // Reference teams per batch
	Concurrent   int           // Identical generate calls posted at once
	PollInterval time.Duration // Delay between status polls
	Timeout      time.Duration // HTTP request timeout
	Seed         int64         // Roster generator seed
	Verbose      bool          // Log every poll
}

// generateBody is the POST /picklist/generate payload.
type generateBody struct {
	Roster              []model.Team     `json:"roster"`
	GameContext         string           `json:"game_context"`
	YourTeamNumber      int              `json:"your_team_number"`
	PickPosition        string           `json:"pick_position"`
	Priorities          []model.Priority `json:"priorities"`
	ExcludeTeams        []int            `json:"exclude_teams"`
	UseBatching         bool             `json:"use_batching"`
	BatchSize           int              `json:"batch_size"`
	ReferenceTeamsCount int              `json:"reference_teams_count"`
	ForceRefresh        bool             `json:"force_refresh"`
}

// Picklist is the subset of the service response the runner reads.
type Picklist struct {
	Status          string             `json:"status"`
	Picklist        []model.ScoredTeam `json:"picklist"`
	Fingerprint     string             `json:"fingerprint"`
	Error           string             `json:"error"`
	ErrorCode       string             `json:"error_code"`
	MissingTeams    []int              `json:"missing_teams"`
	BatchProcessing struct {
		TotalBatches       int     `json:"total_batches"`
		CurrentBatch       int     `json:"current_batch"`
		ProgressPercentage float64 `json:"progress_percentage"`
		ProcessingComplete bool    `json:"processing_complete"`
		Stalled            bool    `json:"stalled"`
	} `json:"batch_processing"`
}

// Stats holds run statistics.
type Stats struct {
	RunID        string
	Fingerprint  string
	Teams        int
	Batches      int
	Polls        int
	Fallbacks    int
	Recovered    int
	Coalesced    bool
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	ServiceStats map[string]any
}
