// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/picklist/internal/domain/model"
)

// maxBodyBytes bounds request bodies. Rosters are a few hundred teams at most.
const maxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	DefaultRequest() model.Request
	Generate(ctx context.Context, req model.Request) (model.CacheEntry, error)
	Status(ctx context.Context, fp string) (model.CacheEntry, error)
	Cancel(ctx context.Context, fp string) (model.CacheEntry, error)
	RankMissing(ctx context.Context, fp string, teams []int, existing []model.ScoredTeam) (model.CacheEntry, error)
	MergeUserRanking(existing, user []model.ScoredTeam) []model.ScoredTeam
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	picklistHandler *PicklistHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		picklistHandler: NewPicklistHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(path, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(path, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}

	route("/healthz", "healthz", s.healthHandler.HandleHealth)
	route("/stats", "stats", s.statsHandler.HandleStats)
	route("/picklist/generate", "generate", s.picklistHandler.HandleGenerate)
	route("/picklist/status", "status", s.picklistHandler.HandleStatus)
	route("/picklist/rank_missing", "rank_missing", s.picklistHandler.HandleRankMissing)
	route("/picklist/merge", "merge", s.picklistHandler.HandleMerge)
	route("/picklist/cancel", "cancel", s.picklistHandler.HandleCancel)
}

type errorResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Fingerprint: model.FingerprintOf(err)})
}

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	kind := model.KindOf(err)
	switch {
	case errors.Is(kind, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(kind, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, model.ErrBackpressure):
		return http.StatusTooManyRequests
	case errors.Is(kind, model.ErrCacheConflict), errors.Is(kind, model.ErrCanceled):
		return http.StatusConflict
	case errors.Is(kind, model.ErrTransport), errors.Is(kind, model.ErrParse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeModelError(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), model.CodeOf(err), err)
}

// decodeJSON reads a POST body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		writeError(w, http.StatusBadRequest, model.CodeValidation, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return false
	}
	return true
}
