package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"exam-dashboard/internal/errors"
	"exam-dashboard/internal/models"
	"exam-dashboard/internal/observability"
	"exam-dashboard/internal/services"
	"exam-dashboard/internal/ui/templates"
)

const renderTimeout = 10 * time.Second

// PageHandlers serve the HTML dashboard. Filter changes after the first
// render go through SSEHandlers.
type PageHandlers struct {
	views  *services.ViewEngine
	opts   Options
	title  string
	logger *slog.Logger
}

func NewPageHandlers(views *services.ViewEngine, opts Options, title string, logger *slog.Logger) *PageHandlers {
	return &PageHandlers{
		views:  views,
		opts:   opts,
		title:  title,
		logger: logger,
	}
}

func (h *PageHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, http.StatusOK, "")
}

// HandleUpload accepts the sidebar form. Success redirects back to the
// dashboard; a failure re-renders it with the message and no table.
func (h *PageHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	session, err := currentSession(r)
	if err != nil {
		h.renderDashboard(w, r, http.StatusInternalServerError, "Session unavailable, reload the page.")
		return
	}

	filename, data, err := readUpload(w, r, h.opts.MaxUploadBytes)
	if err == nil {
		_, _, err = session.Upload(r.Context(), filename, data)
		if err != nil {
			err = loadError(err)
		}
	}
	if err != nil {
		status := http.StatusBadRequest
		message := err.Error()
		if appErr, ok := errors.AsAppError(err); ok {
			status = appErr.StatusCode
			message = appErr.Message
		}
		observability.LoggerFrom(r.Context(), h.logger).Warn("upload rejected", "error", err)
		session.Reset()
		h.renderDashboard(w, r, status, message)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *PageHandlers) renderDashboard(w http.ResponseWriter, r *http.Request, status int, message string) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	data := templates.PageData{Title: h.title, Error: message}
	if session, ok := services.SessionFrom(ctx); ok {
		if table, filename, loaded := session.Current(); loaded {
			view := h.views.Compute(table, models.Selection{})
			data.Loaded = true
			data.Filename = filename
			data.Domains = view.Domains
			data.Bounds = view.Bounds
			data.Results = templates.NewResultsData(view, h.opts.MaxDisplayRows)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := templates.Dashboard(data).Render(ctx, w); err != nil {
		h.logger.Error("render dashboard", "error", err)
	}
}
