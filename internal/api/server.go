// Package api exposes the mirror over a small read-only HTTP surface.
// Everything served here comes from the store; handlers never touch the
// ledger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"wagermirror/internal/health"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

// Server serves the mirror's read API.
type Server struct {
	store      mirror.Store
	monitor    *health.Monitor
	logger     *zap.Logger
	httpServer *http.Server
}

func NewServer(addr string, store mirror.Store, monitor *health.Monitor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:   store,
		monitor: monitor,
		logger:  logger,
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/rounds/current", s.handleCurrentRound).Methods("GET")
	api.HandleFunc("/rounds/{round_id}", s.handleRound).Methods("GET")
	api.HandleFunc("/rounds/{round_id}/history", s.handleRoundHistory).Methods("GET")
	api.HandleFunc("/rounds/{round_id}/reconciliation", s.handleReconciliation).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving requests until Stop or a listener error.
func (s *Server) Start() error {
	s.logger.Info("api listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop drains in-flight requests with a short deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured routes for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type roundResponse struct {
	Round model.Round      `json:"round"`
	Bets  []model.BetEntry `json:"bets"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	records, err := s.monitor.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The aggregate is the worst component status.
	overall := model.HealthOK
	for _, record := range records {
		if record.Status == model.HealthError {
			overall = model.HealthError
			break
		}
		if record.Status == model.HealthDegraded {
			overall = model.HealthDegraded
		}
	}
	s.writeJSON(w, map[string]interface{}{
		"status":     overall,
		"components": records,
		"time":       time.Now().Unix(),
	})
}

func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	round, found, err := s.store.GetLatestRound(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		http.Error(w, "no rounds mirrored yet", http.StatusNotFound)
		return
	}
	s.writeRound(w, r, round)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := s.roundID(w, r)
	if !ok {
		return
	}
	round, found, err := s.store.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		http.Error(w, "round not found", http.StatusNotFound)
		return
	}
	s.writeRound(w, r, round)
}

func (s *Server) handleRoundHistory(w http.ResponseWriter, r *http.Request) {
	roundID, ok := s.roundID(w, r)
	if !ok {
		return
	}
	history, err := s.store.GetRoundHistory(r.Context(), roundID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"round_id": roundID,
		"history":  history,
	})
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	roundID, ok := s.roundID(w, r)
	if !ok {
		return
	}
	rec, found, err := s.store.GetReconciliation(r.Context(), roundID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		http.Error(w, "round not reconciled yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, rec)
}

func (s *Server) writeRound(w http.ResponseWriter, r *http.Request, round model.Round) {
	bets, err := s.store.GetBets(r.Context(), round.RoundID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, roundResponse{Round: round, Bets: bets})
}

func (s *Server) roundID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["round_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid round id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.logger.Warn("api request failed", zap.Error(err))
	http.Error(w, err.Error(), code)
}
