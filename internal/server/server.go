// Package server exposes the scoring and ingestion pipelines over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/model"
)

// RootMessage is returned by GET /.
const RootMessage = "Lead Scoring API is running!"

// Scorer scores one lead from a webhook payload.
type Scorer interface {
	Run(ctx context.Context, payload model.WebhookPayload) (*model.ScoreOutcome, error)
}

// Ingester loads an organization's contacts into its index.
type Ingester interface {
	Run(ctx context.Context, refreshToken string) (*model.IngestSummary, error)
}

// Options configures a Server.
type Options struct {
	CORSOrigins []string
	Timeout     time.Duration

	// Circuits reports upstream breaker states for /health.
	Circuits func() map[string]string
}

// Server routes CRM callbacks to the pipelines.
type Server struct {
	scorer   Scorer
	ingester Ingester
	circuits func() map[string]string
	router   chi.Router
}

// New builds a Server with all routes mounted.
func New(scorer Scorer, ingester Ingester, opts Options) *Server {
	s := &Server{scorer: scorer, ingester: ingester, circuits: opts.Circuits}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.Timeout > 0 {
		r.Use(middleware.Timeout(opts.Timeout))
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// The /zoho prefix is kept for CRM workflows configured against it.
	for _, prefix := range []string{"/crm", "/zoho"} {
		r.Route(prefix, func(r chi.Router) {
			r.Post("/webhook", s.handleWebhook)
			r.Post("/ingest_contacts", s.handleIngest)
		})
	}

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": RootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.circuits != nil {
		states := s.circuits()
		for _, state := range states {
			if state == "open" {
				resp["status"] = "degraded"
			}
		}
		resp["circuits"] = states
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload model.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := s.scorer.Run(r.Context(), payload)
	if err != nil {
		zap.L().Error("server: webhook scoring failed",
			zap.String("lead_id", payload.Lead().ID()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req model.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Missing Refresh_Token in payload")
		return
	}

	summary, err := s.ingester.Run(r.Context(), req.RefreshToken)
	if err != nil {
		zap.L().Error("server: ingestion failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
