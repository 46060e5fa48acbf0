// Package server exposes the dashboard and the engagement REST API.
package server

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm/internal/model"
	"github.com/sells-group/crm/internal/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Server serves the dashboard and the JSON API over a Store.
type Server struct {
	store store.Store
	tmpl  *template.Template
	// production suppresses upstream error details in 500 responses.
	production bool
}

// New creates a Server. Templates are embedded, so this only fails on a
// build that shipped broken templates.
func New(st store.Store, production bool) (*Server, error) {
	tmpl, err := template.New("").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "server: parse templates")
	}
	return &Server{store: st, tmpl: tmpl, production: production}, nil
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/", s.handleDashboard)
	r.Get("/health", s.handleHealth)
	r.Get("/api/engagements", s.handleListEngagements)
	r.Patch("/api/engagements/{id}", s.handleUpdateEngagement)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stageRow is one bar of the deals-by-stage panel.
type stageRow struct {
	Label string
	Count int
}

var stageLabels = map[model.DealStage]string{
	model.StageDiscovery:  "Discovery",
	model.StageDemo:       "Demo",
	model.StageProposal:   "Proposal",
	model.StageOnHold:     "On Hold",
	model.StageClosedWon:  "Closed Won",
	model.StageClosedLost: "Closed Lost",
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DashboardStats(r.Context(), time.Now())
	if err != nil {
		zap.L().Error("dashboard stats failed", zap.Error(err))
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}

	stages := make([]stageRow, 0, len(model.DealStageOrder)+1)
	for _, st := range model.DealStageOrder {
		stages = append(stages, stageRow{Label: stageLabels[st], Count: stats.DealsByStage[string(st)]})
	}
	if n := stats.DealsByStage["UNKNOWN"]; n > 0 {
		stages = append(stages, stageRow{Label: "Unknown", Count: n})
	}

	data := map[string]any{
		"Stats":  stats,
		"Stages": stages,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		zap.L().Error("render dashboard failed", zap.Error(err))
	}
}

func (s *Server) handleListEngagements(w http.ResponseWriter, r *http.Request) {
	engagements, err := s.store.ListEngagements(r.Context(), 50)
	if err != nil {
		s.jsonError(w, "failed to list engagements", http.StatusInternalServerError, err.Error())
		return
	}
	if engagements == nil {
		engagements = []model.EngagementDetail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"engagements": engagements})
}
