// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/segrank/internal/domain/model"
	"github.com/okian/segrank/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Evaluate scores a submission and records its best score.
	Evaluate(ctx context.Context, raw model.RawSubmission) (model.Result, error)

	// Read operations expose leaderboard data.
	TopN(ctx context.Context, n int) ([]Entry, error)
	Snapshot(ctx context.Context) ([]Entry, error)
	Rank(ctx context.Context, name string) (Entry, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoreHandler       *ScoreHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	dashboardHandler   *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxUploadBytes int64, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		scoreHandler:       NewScoreHandler(deps, maxUploadBytes),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		dashboardHandler:   newdashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/dice-score", MetricsMiddleware(s.scoreHandler.HandlePostScore, "dice_score"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

// scoreResponse mirrors the OpenAPI schema for POST /dice-score.
type scoreResponse struct {
	SubmissionID string         `json:"submission_id"`
	Name         string         `json:"name"`
	Score        float64        `json:"score"`
	Best         float64        `json:"best"`
	Improved     bool           `json:"improved"`
	Recorded     bool           `json:"recorded"`
	Duplicate    bool           `json:"duplicate"`
	PerSubject   []subjectScore `json:"per_subject"`
	SubmittedAt  time.Time      `json:"submitted_at"`
}

// subjectScore is one subject's dice within a scoreResponse.
type subjectScore struct {
	Subject string  `json:"subject"`
	Dice    float64 `json:"dice"`
}

func newScoreResponse(res model.Result) scoreResponse {
	per := make([]subjectScore, len(res.PerSubject))
	for i, s := range res.PerSubject {
		per[i] = subjectScore{Subject: s.Subject, Dice: s.Dice}
	}
	return scoreResponse{
		SubmissionID: res.SubmissionID,
		Name:         res.Name,
		Score:        res.Score,
		Best:         res.Best,
		Improved:     res.Improved,
		Recorded:     res.Recorded,
		Duplicate:    res.Duplicate,
		PerSubject:   per,
		SubmittedAt:  res.SubmittedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
