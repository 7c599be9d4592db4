package server

import (
	"log/slog"
	"net/http"

	"exam-dashboard/internal/config"
	"exam-dashboard/internal/handlers"
	"exam-dashboard/internal/middleware"
	"exam-dashboard/internal/observability"
	"exam-dashboard/internal/services"
)

const dashboardTitle = "Exam results analysis"

type Server struct {
	sessions     *services.SessionStore
	mux          *http.ServeMux
	logger       *slog.Logger
	apiHandlers  *handlers.APIHandlers
	sseHandlers  *handlers.SSEHandlers
	pageHandlers *handlers.PageHandlers
	metrics      *observability.Metrics
}

func NewServer(cfg *config.Config, sessions *services.SessionStore, views *services.ViewEngine, metrics *observability.Metrics, logger *slog.Logger) *Server {
	opts := handlers.Options{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		MaxDisplayRows: cfg.Upload.MaxDisplayRows,
	}

	s := &Server{
		sessions:     sessions,
		mux:          http.NewServeMux(),
		logger:       logger,
		apiHandlers:  handlers.NewAPIHandlers(sessions, views, opts, logger),
		sseHandlers:  handlers.NewSSEHandlers(views, opts, logger),
		pageHandlers: handlers.NewPageHandlers(views, opts, dashboardTitle, logger),
		metrics:      metrics,
	}
	s.setupRoutes(middleware.Sessions(sessions, cfg.Security))
	return s
}

func (s *Server) setupRoutes(withSession middleware.Middleware) {
	session := func(h http.HandlerFunc) http.Handler {
		return withSession(h)
	}

	// Dashboard routes
	s.mux.Handle("GET /{$}", session(s.pageHandlers.HandleDashboard))
	s.mux.Handle("POST /upload", session(s.pageHandlers.HandleUpload))

	// Datastar SSE endpoints
	s.mux.Handle("POST /sse/view", session(s.sseHandlers.HandleView))

	// REST API endpoints
	s.mux.Handle("POST /api/upload", session(s.apiHandlers.HandleUpload))
	s.mux.Handle("GET /api/view", session(s.apiHandlers.HandleView))
	s.mux.Handle("GET /api/domains", session(s.apiHandlers.HandleDomains))
	s.mux.Handle("POST /api/reset", session(s.apiHandlers.HandleReset))

	// Operations
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
