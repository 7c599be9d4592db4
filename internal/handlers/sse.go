package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"exam-dashboard/internal/models"
	"exam-dashboard/internal/observability"
	"exam-dashboard/internal/services"
	"exam-dashboard/internal/ui/templates"
)

// FilterSignals mirrors the datastar signals declared by the filter panel.
type FilterSignals struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Locations []string `json:"locations"`
	Codes     []string `json:"codes"`
}

// Selection converts the signals into a filter selection. Unparseable dates
// fall back to the table bounds.
func (s FilterSignals) Selection() models.Selection {
	sel := models.Selection{
		Locations: nonEmpty(s.Locations),
		Codes:     nonEmpty(s.Codes),
	}
	if t, err := time.Parse(time.DateOnly, strings.TrimSpace(s.From)); err == nil {
		sel.From = &t
	}
	if t, err := time.Parse(time.DateOnly, strings.TrimSpace(s.To)); err == nil {
		sel.To = &t
	}
	return sel
}

type SSEHandlers struct {
	views  *services.ViewEngine
	opts   Options
	logger *slog.Logger
}

func NewSSEHandlers(views *services.ViewEngine, opts Options, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		views:  views,
		opts:   opts,
		logger: logger,
	}
}

func (h *SSEHandlers) render(ctx context.Context, c templ.Component) (string, error) {
	var buf strings.Builder
	err := c.Render(ctx, &buf)
	return buf.String(), err
}

// HandleView recomputes the results fragment from the current filter signals.
func (h *SSEHandlers) HandleView(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var signals FilterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		logger.Warn("read filter signals", "error", err)
		http.Error(w, "invalid signals", http.StatusBadRequest)
		return
	}

	var (
		component templ.Component
		table     *models.Table
		loaded    bool
	)
	if session, ok := services.SessionFrom(r.Context()); ok {
		table, _, loaded = session.Current()
	}
	if loaded {
		view := h.views.Compute(table, signals.Selection())
		component = templates.Results(templates.NewResultsData(view, h.opts.MaxDisplayRows))
	} else {
		component = templates.Message("Upload a CSV or Excel file from the sidebar to begin.")
	}

	html, err := h.render(r.Context(), component)
	if err != nil {
		logger.Error("render results", "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElements(html); err != nil {
		logger.Warn("patch results", "error", err)
	}
}
