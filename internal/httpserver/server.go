package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"shop-bot/internal/bot"
	"shop-bot/internal/broadcast"
	"shop-bot/internal/cache"
	"shop-bot/internal/metrics"
	"shop-bot/internal/repo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Repository repo.Repository
	Settings   *cache.SettingsSource
	Manager    *bot.Manager
	Publisher  *broadcast.Publisher
}

// Server wraps an http.Server with the admin and observability routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
}

// New creates an HTTP server listening on addr with health, metrics and
// admin endpoints mounted.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies) *Server {
	server := &Server{
		logger:  logger.With("component", "http"),
		metrics: metricRegistry,
		deps:    deps,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/settings", server.handleSettings)
	mux.HandleFunc("/api/status", server.handleStatus)
	mux.HandleFunc("/api/broadcast", server.handleBroadcast)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.deps.Repository.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSettings serves the settings bundle on GET and replaces it on POST.
// Saving settings invalidates the cache and reconfigures the bot connection,
// so a changed token or description takes effect before the response returns.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.deps.Settings.Get(r.Context())
		if err != nil {
			s.logger.Error("failed loading settings", "error", err)
			http.Error(w, "failed loading settings", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPost:
		var incoming map[string]string
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if len(incoming) == 0 {
			http.Error(w, "empty settings payload", http.StatusBadRequest)
			return
		}
		if err := s.deps.Repository.SetSettings(r.Context(), incoming); err != nil {
			s.logger.Error("failed saving settings", "error", err)
			http.Error(w, "failed saving settings", http.StatusInternalServerError)
			return
		}
		s.deps.Settings.Invalidate(r.Context())

		// Settings are saved even when the new credential does not connect;
		// the status payload tells the caller what state the bot landed in.
		if err := s.deps.Manager.Reconfigure(r.Context()); err != nil && !errors.Is(err, bot.ErrInvalidCredential) {
			s.logger.Error("reconfigure after settings save failed", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"saved":  true,
			"status": s.deps.Manager.Status(),
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Manager.Status())
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProductID == "" {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}

	err := s.deps.Publisher.Publish(r.Context(), body.ProductID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "product_id": body.ProductID})
	case errors.Is(err, broadcast.ErrProductNotFound):
		http.Error(w, "product not found", http.StatusNotFound)
	case errors.Is(err, broadcast.ErrNoChannel):
		http.Error(w, "no broadcast channel configured", http.StatusConflict)
	case errors.Is(err, broadcast.ErrNotConnected):
		http.Error(w, "bot is not connected", http.StatusServiceUnavailable)
	default:
		s.logger.Error("broadcast failed", "error", err, "product_id", body.ProductID)
		http.Error(w, "broadcast failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}
