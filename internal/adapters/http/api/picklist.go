package api

import (
	"net/http"
	"strings"

	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/reconcile"
)

// Response statuses.
const (
	statusSuccess = "success"
	statusError   = "error"
	statusBatched = "batched"
)

// generateRequest mirrors the OpenAPI schema for POST /picklist/generate.
// Pointer fields fall back to the service defaults when absent.
type generateRequest struct {
	RosterRef           string           `json:"roster_ref"`
	Roster              []model.Team     `json:"roster"`
	GameContext         string           `json:"game_context"`
	YourTeamNumber      int              `json:"your_team_number"`
	PickPosition        string           `json:"pick_position"`
	Priorities          []model.Priority `json:"priorities"`
	ExcludeTeams        []int            `json:"exclude_teams"`
	UseBatching         *bool            `json:"use_batching"`
	BatchSize           *int             `json:"batch_size"`
	ReferenceTeamsCount *int             `json:"reference_teams_count"`
	ReferenceSelection  string           `json:"reference_selection"`
	FinalRerank         bool             `json:"final_rerank"`
	ForceRefresh        bool             `json:"force_refresh"`
}

func (g generateRequest) toModel(defaults model.Request) model.Request {
	req := defaults
	req.RosterRef = strings.TrimSpace(g.RosterRef)
	req.Roster = g.Roster
	req.GameContext = g.GameContext
	req.YourTeamNumber = g.YourTeamNumber
	req.Priorities = g.Priorities
	req.ExcludeTeams = g.ExcludeTeams
	req.FinalRerank = g.FinalRerank
	req.ForceRefresh = g.ForceRefresh
	if g.PickPosition != "" {
		req.PickPosition = model.PickPosition(g.PickPosition)
	}
	if g.ReferenceSelection != "" {
		req.ReferenceStrategy = model.ReferenceStrategy(g.ReferenceSelection)
	}
	if g.UseBatching != nil {
		req.UseBatching = *g.UseBatching
	}
	if g.BatchSize != nil {
		req.BatchSize = *g.BatchSize
	}
	if g.ReferenceTeamsCount != nil {
		req.ReferenceCount = *g.ReferenceTeamsCount
	}
	return req
}

type fingerprintRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type rankMissingRequest struct {
	Fingerprint        string             `json:"fingerprint"`
	MissingTeamNumbers []int              `json:"missing_team_numbers"`
	ExistingResult     []model.ScoredTeam `json:"existing_result"`
}

type mergeRequest struct {
	ExistingResult []model.ScoredTeam `json:"existing_result"`
	UserRankings   []model.ScoredTeam `json:"user_rankings"`
}

type batchProcessing struct {
	TotalBatches       int     `json:"total_batches"`
	CurrentBatch       int     `json:"current_batch"`
	ProgressPercentage float64 `json:"progress_percentage"`
	ProcessingComplete bool    `json:"processing_complete"`
	Stalled            bool    `json:"stalled"`
}

type picklistResponse struct {
	Status          string             `json:"status"`
	Picklist        []model.ScoredTeam `json:"picklist"`
	Fingerprint     string             `json:"fingerprint"`
	BatchProcessing batchProcessing    `json:"batch_processing"`
	Error           string             `json:"error,omitempty"`
	ErrorCode       string             `json:"error_code,omitempty"`
	MissingTeams    []int              `json:"missing_teams,omitempty"`
}

type mergeResponse struct {
	Picklist []model.ScoredTeam `json:"picklist"`
}

func toResponse(e model.CacheEntry) picklistResponse { //nolint:gocritic // hugeParam: entries are snapshots
	resp := picklistResponse{
		Picklist:    e.Result,
		Fingerprint: e.Fingerprint,
		BatchProcessing: batchProcessing{
			TotalBatches:       e.Progress.Total,
			CurrentBatch:       e.Progress.Current,
			ProgressPercentage: e.Progress.Percentage(),
			ProcessingComplete: e.Status.Terminal(),
			Stalled:            e.Stalled,
		},
	}
	if resp.Picklist == nil {
		resp.Picklist = []model.ScoredTeam{}
	}

	switch e.Status {
	case model.StatusSuccess:
		resp.Status = statusSuccess
		resp.MissingTeams = reconcile.Fallbacks(e.Result)
	case model.StatusError:
		resp.Status = statusError
		resp.Error = e.ErrorDetail
		resp.ErrorCode = e.ErrorCode
	default:
		resp.Status = statusBatched
	}
	return resp
}

// PicklistHandler serves the /picklist routes.
type PicklistHandler struct {
	deps Dependencies
}

// NewPicklistHandler creates a new picklist handler.
func NewPicklistHandler(deps Dependencies) *PicklistHandler {
	return &PicklistHandler{deps: deps}
}

// HandleGenerate handles POST /picklist/generate.
func (h *PicklistHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	e, err := h.deps.Generate(r.Context(), body.toModel(h.deps.DefaultRequest()))
	if err != nil {
		// A failed entry is reported in the picklist shape so callers keep
		// the fingerprint and progress.
		if e.Fingerprint != "" && e.Status == model.StatusError {
			writeJSON(w, statusOf(err), toResponse(e))
			return
		}
		writeModelError(w, err)
		return
	}

	status := http.StatusOK
	if !e.Status.Terminal() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toResponse(e))
}

// HandleStatus handles POST /picklist/status.
func (h *PicklistHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var body fingerprintRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Fingerprint) == "" {
		writeError(w, http.StatusBadRequest, model.CodeValidation, ErrMissingFingerprint)
		return
	}

	e, err := h.deps.Status(r.Context(), body.Fingerprint)
	if err != nil {
		writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(e))
}

// HandleRankMissing handles POST /picklist/rank_missing.
func (h *PicklistHandler) HandleRankMissing(w http.ResponseWriter, r *http.Request) {
	var body rankMissingRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Fingerprint) == "" {
		writeError(w, http.StatusBadRequest, model.CodeValidation, ErrMissingFingerprint)
		return
	}

	e, err := h.deps.RankMissing(r.Context(), body.Fingerprint, body.MissingTeamNumbers, body.ExistingResult)
	if err != nil {
		writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(e))
}

// HandleMerge handles POST /picklist/merge.
func (h *PicklistHandler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	var body mergeRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	merged := h.deps.MergeUserRanking(body.ExistingResult, body.UserRankings)
	if merged == nil {
		merged = []model.ScoredTeam{}
	}
	writeJSON(w, http.StatusOK, mergeResponse{Picklist: merged})
}

// HandleCancel handles POST /picklist/cancel.
func (h *PicklistHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var body fingerprintRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Fingerprint) == "" {
		writeError(w, http.StatusBadRequest, model.CodeValidation, ErrMissingFingerprint)
		return
	}

	e, err := h.deps.Cancel(r.Context(), body.Fingerprint)
	if err != nil {
		writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(e))
}
