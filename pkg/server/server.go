package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/broadcast"
	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// Engine is the simulation state the REST handlers read
type Engine interface {
	Peek(now time.Time) models.FleetReport
	ChartHistory() []models.ChartPoint
	Profiles() []models.ClusterProfile
	SpikeState() models.SpikeState
	SpikeCountdown() int
	TriggerSpike() models.SpikeState
	Muted() bool
}

// Pinger reports backend health, typically the storage layer
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds configuration for creating a new Server
type Config struct {
	ListenAddress string
	Engine        Engine
	Hub           *broadcast.Hub
	Metrics       http.Handler // served on /metrics when set
	Health        Pinger       // optional
	Logger        *zap.Logger
	Clock         func() time.Time
}

// Server exposes the session endpoint and the one-shot REST views
type Server struct {
	engine     Engine
	hub        *broadcast.Hub
	health     Pinger
	logger     *zap.Logger
	now        func() time.Time
	mux        *http.ServeMux
	httpServer *http.Server
}

func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("session hub is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &Server{
		engine: cfg.Engine,
		hub:    cfg.Hub,
		health: cfg.Health,
		logger: cfg.Logger,
		now:    cfg.Clock,
		mux:    http.NewServeMux(),
	}

	s.mux.Handle("GET /ws", cfg.Hub)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/regions", s.handleRegions)
	s.mux.HandleFunc("GET /api/chart", s.handleChart)
	s.mux.HandleFunc("GET /api/profiles", s.handleProfiles)
	s.mux.HandleFunc("GET /api/spike", s.handleSpike)
	s.mux.HandleFunc("POST /api/spike/trigger", s.handleTriggerSpike)
	s.mux.HandleFunc("GET /api/mute", s.handleMuteState)
	s.mux.HandleFunc("PUT /api/mute", s.handleSetMute)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.Metrics != nil {
		s.mux.Handle("GET /metrics", cfg.Metrics)
	}

	// no write timeout: /ws connections are long-lived
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return s, nil
}

// Handler returns the routed handler, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown closes every session, then stops accepting requests and waits
// for in-flight ones until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

type regionsResponse struct {
	Timestamp string                 `json:"timestamp"`
	Regions   []models.RegionSummary `json:"regions"`
}

type spikeResponse struct {
	models.SpikeState
	NextSpikeInTicks int `json:"nextSpikeInTicks"`
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

type muteResponse struct {
	Muted    bool `json:"muted"`
	Sessions int  `json:"sessions"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Peek(s.now()))
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Peek(s.now())
	s.writeJSON(w, http.StatusOK, regionsResponse{
		Timestamp: models.FormatTimestamp(report.Timestamp),
		Regions:   report.Regions,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, models.NewChartData(s.engine.ChartHistory()))
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Profiles())
}

func (s *Server) handleSpike(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, spikeResponse{
		SpikeState:       s.engine.SpikeState(),
		NextSpikeInTicks: s.engine.SpikeCountdown(),
	})
}

func (s *Server) handleTriggerSpike(w http.ResponseWriter, r *http.Request) {
	state := s.engine.TriggerSpike()
	s.logger.Info("manual spike triggered", zap.String("remote", r.RemoteAddr))
	s.writeJSON(w, http.StatusAccepted, spikeResponse{
		SpikeState:       state,
		NextSpikeInTicks: s.engine.SpikeCountdown(),
	})
}

func (s *Server) handleMuteState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, muteResponse{Muted: s.engine.Muted(), Sessions: s.hub.Len()})
}

func (s *Server) handleSetMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil || req.Muted == nil {
		s.sendError(w, http.StatusBadRequest, `body must be {"muted": true|false}`)
		return
	}
	delivered := s.hub.SetMuted(*req.Muted)
	s.writeJSON(w, http.StatusOK, muteResponse{Muted: *req.Muted, Sessions: delivered})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.sendError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.hub.Len()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
