// Package server exposes the pipeline's control and status surface as a
// small JSON API, plus Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TobiSchelling/LifeLens/internal/database"
	"github.com/TobiSchelling/LifeLens/internal/pipeline"
)

// Server routes control and status requests to the coordinator.
type Server struct {
	coord *pipeline.Coordinator
	mux   *http.ServeMux
}

// New builds a server around a coordinator.
func New(coord *pipeline.Coordinator) *Server {
	s := &Server{coord: coord, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/start", s.handleStart)
	s.mux.HandleFunc("POST /api/reset", s.handleReset)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// statusResponse is the wire shape of GET /api/status.
type statusResponse struct {
	Phase            string             `json:"phase"`
	CurrentTier      *string            `json:"current_tier"`
	TotalEntries     int                `json:"total_entries"`
	ProcessedEntries int                `json:"processed_entries"`
	RunID            string             `json:"run_id,omitempty"`
	StartedAt        *string            `json:"started_at"`
	CompletedAt      *string            `json:"completed_at"`
	Warnings         []string           `json:"warnings"`
	Artifacts        artifactCounts     `json:"artifacts"`
	DeadLetters      []deadLetterStatus `json:"dead_letters"`
}

type artifactCounts struct {
	Extractions       int `json:"extractions"`
	WeeklySummaries   int `json:"weekly_summaries"`
	MonthlySummaries  int `json:"monthly_summaries"`
	QuarterlyNotepads int `json:"quarterly_notepads"`
	Syntheses         int `json:"syntheses"`
}

type deadLetterStatus struct {
	ID        string `json:"id"`
	JobType   string `json:"job_type"`
	RangeID   string `json:"range_id"`
	LastError string `json:"last_error"`
	Attempts  int    `json:"attempts"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.Status()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{
		Phase:            status.State.Phase,
		CurrentTier:      status.State.CurrentTier,
		TotalEntries:     status.State.TotalEntries,
		ProcessedEntries: status.State.ProcessedEntries,
		RunID:            status.State.RunID,
		StartedAt:        status.State.StartedAt,
		CompletedAt:      status.State.CompletedAt,
		Warnings:         status.State.Warnings,
		Artifacts: artifactCounts{
			Extractions:       status.Stats.Extractions,
			WeeklySummaries:   status.Stats.WeeklySummaries,
			MonthlySummaries:  status.Stats.MonthlySummaries,
			QuarterlyNotepads: status.Stats.QuarterlyNotepads,
			Syntheses:         status.Stats.Syntheses,
		},
		DeadLetters: []deadLetterStatus{},
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	for _, j := range status.DeadLetters {
		resp.DeadLetters = append(resp.DeadLetters, deadLetterStatus{
			ID: j.ID, JobType: j.JobType, RangeID: j.RangeID,
			LastError: j.LastError, Attempts: j.Attempts,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Start(); err != nil {
		if errors.Is(err, pipeline.ErrInvalidTransition) {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Reset(); err != nil {
		if errors.Is(err, pipeline.ErrInvalidTransition) {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "phase": database.PhaseIdle})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// Serve starts the HTTP server on localhost at the given port.
func Serve(coord *pipeline.Coordinator, port int) error {
	srv := New(coord)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
