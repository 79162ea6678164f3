// Package dashboard serves a read-only HTTP view of the backtest state.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/davzucky/chainuniverse/internal/models"
	"github.com/davzucky/chainuniverse/internal/storage"
	"github.com/davzucky/chainuniverse/internal/universe"
)

// Server exposes the tracked universe and run results over HTTP.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	tracker *universe.Tracker
	storage storage.Interface
	logger  *logrus.Logger
	port    int
}

// Config configures the dashboard server.
type Config struct {
	Port int
}

// UniverseView is the JSON shape of one tracked underlying.
type UniverseView struct {
	Underlying string                  `json:"underlying"`
	Holdings   []models.OptionContract `json:"holdings"`
}

// NewServer creates a dashboard server over the given tracker and storage.
func NewServer(cfg Config, tracker *universe.Tracker, store storage.Interface, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:  chi.NewRouter(),
		tracker: tracker,
		storage: store,
		logger:  logger,
		port:    cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/api/universe", s.handleGetUniverse)
	s.router.Get("/api/selections", s.handleGetSelections)
	s.router.Get("/api/orders", s.handleGetOrders)
	s.router.Get("/api/stats", s.handleGetStats)
	s.router.Get("/health", s.handleHealth)
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleGetUniverse(w http.ResponseWriter, _ *http.Request) {
	views := make([]UniverseView, 0)
	for _, u := range s.tracker.Underlyings() {
		views = append(views, UniverseView{
			Underlying: u,
			Holdings:   s.tracker.Holdings(u),
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) handleGetSelections(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.Selections())
}

func (s *Server) handleGetOrders(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.Orders())
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.GetStatistics())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
