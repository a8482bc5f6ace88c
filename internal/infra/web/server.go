package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-results-bot/internal/application"
	"telegram-results-bot/internal/domain/ports/adapter"
	"telegram-results-bot/internal/infra/worker"
)

// Server exposes the webhook ingress and a small operations API. Webhook
// bodies are decoded and handed to the worker pool so Telegram gets its 200
// back immediately.
type Server struct {
	facade  *application.BotFacade
	manager adapter.BotManager
	pool    *worker.Pool
	apiKey  string
	checks  []HealthCheck
	log     *zerolog.Logger
}

// HealthCheck probes one backing dependency for the /health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func NewServer(
	facade *application.BotFacade,
	manager adapter.BotManager,
	pool *worker.Pool,
	apiKey string,
	logger *zerolog.Logger,
	checks ...HealthCheck,
) *Server {
	return &Server{
		facade:  facade,
		manager: manager,
		pool:    pool,
		apiKey:  apiKey,
		checks:  checks,
		log:     logger,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhook", s.handleWebhook(0))
	r.Post("/webhook/{shard}", s.handleShardedWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/stats", s.handleStats)
		r.Post("/api/v1/broadcast", s.handleBroadcast)
	})

	return r
}

// handleHealth probes every registered dependency and degrades the overall
// status when any of them fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	healthy := true
	for _, hc := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := hc.Check(ctx); err != nil {
			s.log.Warn().Err(err).Str("component", hc.Name).Msg("health check failed")
			components[hc.Name] = err.Error()
			healthy = false
		} else {
			components[hc.Name] = "ok"
		}
		cancel()
	}

	stats := s.manager.Stats()
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":       status,
		"components":   components,
		"mode":         stats.Mode,
		"backend_bots": stats.BackendBots,
	})
}

// handleWebhook accepts updates for one shard. The shard id only matters for
// logging; routing back out is decided per user, not per ingress.
func (s *Server) handleWebhook(shard int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			s.log.Warn().Err(err).Int("shard", shard).Msg("malformed webhook body")
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if err := s.pool.Submit(func(ctx context.Context) error {
			return s.facade.HandleUpdate(ctx, update)
		}); err != nil {
			// Telegram retries the update; reply 200 regardless.
			s.log.Warn().Err(err).Int("shard", shard).Msg("update dropped, worker queue full")
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleShardedWebhook(w http.ResponseWriter, r *http.Request) {
	shard, err := strconv.Atoi(chi.URLParam(r, "shard"))
	if err != nil {
		http.Error(w, "bad shard", http.StatusBadRequest)
		return
	}
	s.handleWebhook(shard)(w, r)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Stats())
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	report, err := s.facade.RunBroadcast(r.Context(), req.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("broadcast failed")
		http.Error(w, "broadcast failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":   report.JobID,
		"sent":     report.Sent,
		"failed":   report.Failed,
		"duration": report.Duration.String(),
	})
}

// authMiddleware provides bearer token authentication for the operations API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("operations API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}
		if parts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
