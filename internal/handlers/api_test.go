package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-dashboard/internal/models"
	"exam-dashboard/internal/services"
)

const resultsCSV = "Examen.datum;Resultaat.uitslag;Algemeen.locatie_naam;Algemeen.product_code\n" +
	"10/01/2024;V;Amsterdam;A\n" +
	"15/01/2024;O;Rotterdam;B\n" +
	"20/01/2024;V;Amsterdam;B\n" +
	"05/02/2024;V;Utrecht;A\n"

type fixture struct {
	store   *services.SessionStore
	session *services.Session
	views   *services.ViewEngine
	opts    Options
	logger  *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	schema := models.DefaultSchema()
	store := services.NewSessionStore(services.NewLoader(schema, logger, nil), services.SessionOptions{
		CacheEntries: 2,
		TTL:          time.Hour,
		MaxSessions:  4,
	}, logger, nil)

	return &fixture{
		store:   store,
		session: store.Create(),
		views:   services.NewViewEngine(schema, nil),
		opts:    Options{MaxUploadBytes: 1 << 20, MaxDisplayRows: 2},
		logger:  logger,
	}
}

func (f *fixture) api() *APIHandlers {
	return NewAPIHandlers(f.store, f.views, f.opts, f.logger)
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	_, _, err := f.session.Upload(context.Background(), "results.csv", []byte(resultsCSV))
	require.NoError(t, err)
}

// request attaches the fixture's session the way the session middleware does.
func (f *fixture) request(r *http.Request) *http.Request {
	return r.WithContext(services.WithSession(r.Context(), f.session))
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, filename, data)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

type envelope[T any] struct {
	Data    T    `json:"data"`
	Success bool `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var resp envelope[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestAPIHandlers_Upload(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	f.api().HandleUpload(rec, f.request(uploadRequest(t, "/api/upload", "results.csv", []byte(resultsCSV))))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.Summary](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "results.csv", resp.Data.Filename)
	assert.Equal(t, 4, resp.Data.RowCount)
	assert.Equal(t, []string{"Amsterdam", "Rotterdam", "Utrecht"}, resp.Data.Domains.Locations)
	assert.Equal(t, []string{"A", "B"}, resp.Data.Domains.Codes)
	require.NotNil(t, resp.Data.Bounds)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), resp.Data.Bounds.Start)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), resp.Data.Bounds.End)

	_, filename, ok := f.session.Current()
	assert.True(t, ok)
	assert.Equal(t, "results.csv", filename)
}

func TestAPIHandlers_UploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		status   int
		code     string
	}{
		{"unsupported extension", "results.txt", []byte(resultsCSV), http.StatusUnsupportedMediaType, "FORMAT_ERROR"},
		{"empty file", "results.csv", nil, http.StatusUnprocessableEntity, "PARSE_ERROR"},
		{"corrupt workbook", "results.xlsx", []byte("not a zip archive"), http.StatusUnprocessableEntity, "PARSE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.load(t)
			rec := httptest.NewRecorder()

			f.api().HandleUpload(rec, f.request(uploadRequest(t, "/api/upload", tt.filename, tt.data)))

			assert.Equal(t, tt.status, rec.Code)
			resp := decode[json.RawMessage](t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)

			_, _, ok := f.session.Current()
			assert.False(t, ok, "a failed upload leaves no table loaded")
		})
	}
}

func TestAPIHandlers_UploadRequiresFile(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)

	f.api().HandleUpload(rec, f.request(req))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIHandlers_UploadTooLarge(t *testing.T) {
	f := newFixture(t)
	f.opts.MaxUploadBytes = 64
	rec := httptest.NewRecorder()

	f.api().HandleUpload(rec, f.request(uploadRequest(t, "/api/upload", "results.csv", []byte(resultsCSV))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp := decode[json.RawMessage](t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", resp.Error.Code)
}

func TestAPIHandlers_View(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		rows     int
		passed   int
		failed   int
		passRate float64
	}{
		{"no filters", "", 4, 3, 1, 75},
		{"location", "?location=Amsterdam", 2, 2, 0, 100},
		{"date range", "?start=2024-01-12&end=2024-01-31", 2, 1, 1, 50},
		{"location and code", "?location=Amsterdam&location=Rotterdam&code=B", 2, 1, 1, 50},
		{"nothing matches", "?location=Utrecht&code=B", 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.load(t)
			rec := httptest.NewRecorder()

			f.api().HandleView(rec, f.request(httptest.NewRequest(http.MethodGet, "/api/view"+tt.query, nil)))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

			resp := decode[models.ViewResult](t, rec)
			assert.Equal(t, tt.rows, resp.Data.RowCount)
			require.NotNil(t, resp.Data.Stats)
			assert.Equal(t, tt.passed, resp.Data.Stats.Passed)
			assert.Equal(t, tt.failed, resp.Data.Stats.Failed)
			assert.InDelta(t, tt.passRate, resp.Data.Stats.PassRate, 0.001)
			assert.LessOrEqual(t, resp.Data.Shown, f.opts.MaxDisplayRows)
			assert.Equal(t, resp.Data.Shown < resp.Data.RowCount, resp.Data.Truncated)
		})
	}
}

func TestAPIHandlers_ViewRejectsBadDates(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	rec := httptest.NewRecorder()

	f.api().HandleView(rec, f.request(httptest.NewRequest(http.MethodGet, "/api/view?start=10/01/2024", nil)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[json.RawMessage](t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestAPIHandlers_NoTable(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{"/api/view", "/api/domains"} {
		rec := httptest.NewRecorder()
		req := f.request(httptest.NewRequest(http.MethodGet, target, nil))
		if target == "/api/view" {
			f.api().HandleView(rec, req)
		} else {
			f.api().HandleDomains(rec, req)
		}

		assert.Equal(t, http.StatusConflict, rec.Code, target)
		resp := decode[json.RawMessage](t, rec)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "NO_TABLE", resp.Error.Code)
	}
}

func TestAPIHandlers_MissingSession(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	f.api().HandleView(rec, httptest.NewRequest(http.MethodGet, "/api/view", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAPIHandlers_DomainsAndReset(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	rec := httptest.NewRecorder()
	f.api().HandleDomains(rec, f.request(httptest.NewRequest(http.MethodGet, "/api/domains", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.Summary](t, rec)
	assert.Equal(t, []string{"A", "B"}, resp.Data.Domains.Codes)

	rec = httptest.NewRecorder()
	f.api().HandleReset(rec, f.request(httptest.NewRequest(http.MethodPost, "/api/reset", nil)))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, _, ok := f.session.Current()
	assert.False(t, ok)
}

func TestAPIHandlers_HealthAndStats(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	rec := httptest.NewRecorder()
	f.api().HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", health.Data["status"])

	rec = httptest.NewRecorder()
	f.api().HandleStats(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]float64](t, rec)
	assert.Equal(t, float64(1), stats.Data["sessions"])
	assert.Equal(t, float64(4), stats.Data["rows_in_memory"])
}

func TestParseSelection(t *testing.T) {
	q := map[string][]string{
		"start":    {"2024-01-12"},
		"location": {"Amsterdam", ""},
		"code":     {"B"},
	}

	sel, err := parseSelection(q)
	require.NoError(t, err)
	require.NotNil(t, sel.From)
	assert.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), *sel.From)
	assert.Nil(t, sel.To)
	assert.Equal(t, []string{"Amsterdam"}, sel.Locations)
	assert.Equal(t, []string{"B"}, sel.Codes)

	_, err = parseSelection(map[string][]string{"end": {"31-01-2024"}})
	assert.Error(t, err)
}
