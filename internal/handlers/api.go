package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"exam-dashboard/internal/errors"
	"exam-dashboard/internal/observability"
	"exam-dashboard/internal/services"
)

type Options struct {
	MaxUploadBytes int64
	MaxDisplayRows int
}

type APIHandlers struct {
	sessions *services.SessionStore
	views    *services.ViewEngine
	opts     Options
	logger   *slog.Logger
}

func NewAPIHandlers(sessions *services.SessionStore, views *services.ViewEngine, opts Options, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		sessions: sessions,
		views:    views,
		opts:     opts,
		logger:   logger,
	}
}

func (h *APIHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	session, err := currentSession(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	filename, data, err := readUpload(w, r, h.opts.MaxUploadBytes)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	table, cached, err := session.Upload(r.Context(), filename, data)
	if err != nil {
		errors.WriteError(w, h.logger, loadError(err), requestID)
		return
	}

	observability.LoggerFrom(r.Context(), h.logger).Info("table loaded",
		"filename", filename,
		"rows", table.Len(),
		"cached", cached,
	)

	errors.WriteSuccess(w, h.views.Summarize(filename, table))
}

func (h *APIHandlers) HandleView(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	session, err := currentSession(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	table, _, ok := session.Current()
	if !ok {
		errors.WriteError(w, h.logger, errors.NoTable("upload a file before requesting a view"), requestID)
		return
	}

	sel, err := parseSelection(r.URL.Query())
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	view := h.views.Compute(table, sel)
	errors.WriteSuccessWithHeaders(w, services.Result(view, h.opts.MaxDisplayRows), map[string]string{
		"Cache-Control": "no-store",
	})
}

func (h *APIHandlers) HandleDomains(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	session, err := currentSession(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	table, filename, ok := session.Current()
	if !ok {
		errors.WriteError(w, h.logger, errors.NoTable("upload a file before requesting filters"), requestID)
		return
	}

	errors.WriteSuccess(w, h.views.Summarize(filename, table))
}

func (h *APIHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	session, err := currentSession(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	session.Reset()
	errors.WriteSuccess(w, map[string]bool{"reset": true})
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.sessions.Stats()

	errors.WriteSuccess(w, stats)
}
