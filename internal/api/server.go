// Package api exposes the sync engine to the mobile client: cached
// reads, targeted refreshes, market status, and a websocket stream of
// refresh events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/asset-sync/internal/cache"
	"github.com/asset-sync/internal/scheduler"
	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/logger"
	"github.com/asset-sync/pkg/models"
)

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	cacheStore *cache.Cache
	sched      *scheduler.Scheduler
	hub        *Hub
}

// NewServer creates the API server and wires its routes.
func NewServer(cfg *config.Config, log *logrus.Logger, cacheStore *cache.Cache, sched *scheduler.Scheduler, hub *Hub) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     log,
		cacheStore: cacheStore,
		sched:      sched,
		hub:        hub,
	}
	s.setupRoutes()
	return s
}

// Hub returns the websocket hub, or nil when disabled.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(logger.Middleware(s.logger))

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/assets", s.handleAssets).Methods("GET")
	api.HandleFunc("/assets/{id}", s.handleAsset).Methods("GET")
	api.HandleFunc("/prices", s.handlePrices).Methods("GET")
	api.HandleFunc("/market/status", s.handleMarketStatus).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/lifecycle", s.handleLifecycle).Methods("POST")
	api.HandleFunc("/cache", s.handleClearCache).Methods("DELETE")

	if s.cfg.Monitoring.HealthCheckEnabled {
		s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	}
	if s.cfg.Monitoring.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
	if s.hub != nil {
		s.router.Handle("/ws", s.hub).Methods("GET")
	}
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	s.httpServer = &http.Server{
		Addr:         s.cfg.GetServerAddr(),
		Handler:      corsHandler(s.router),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Handlers

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets, ok := s.cacheStore.Assets(r.Context())
	if !ok {
		// Offline-first: an empty collection, never an error page.
		assets = []models.NormalizedAsset{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets":      assets,
		"last_update": s.sched.LastSuccessfulUpdate(),
	})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	asset, ok := s.cacheStore.Asset(r.Context(), id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("asset %s not cached", id))
		return
	}
	s.writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("symbols"))
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "symbols query parameter is required")
		return
	}
	symbols := strings.Split(raw, ",")

	prices, err := s.sched.UpdateSpecificSymbols(r.Context(), symbols)
	if err != nil {
		// Fall back to whatever quotes are still cached.
		cached := make([]models.PriceUpdate, 0, len(symbols))
		for _, symbol := range symbols {
			if price, ok := s.cacheStore.Price(r.Context(), symbol); ok {
				cached = append(cached, price)
			}
		}
		if len(cached) == 0 {
			s.writeError(w, http.StatusBadGateway, "price update failed and no cached quotes available")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"prices": cached, "stale": true})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"prices": prices})
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sched.MarketStatus())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.sched.ForceUpdate(context.Background()); err != nil && !errors.Is(err, scheduler.ErrUpdateInProgress) {
			s.logger.WithError(err).Warn("Forced refresh failed")
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

type lifecycleRequest struct {
	State string `json:"state"`
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.State {
	case "foreground":
		s.sched.EnterForeground()
	case "background":
		s.sched.EnterBackground()
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown lifecycle state: %s", req.State))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"state": req.State})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.cacheStore.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
