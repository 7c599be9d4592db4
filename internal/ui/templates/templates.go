package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	"exam-dashboard/internal/models"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

type PageData struct {
	Title    string
	Filename string
	Error    string
	Loaded   bool
	Domains  models.Domains
	Bounds   *models.DateRange
	Results  ResultsData
}

type ResultsData struct {
	RowCount int
	Shown    int
	Columns  []string
	Rows     []models.Row
	Stats    *models.Stats
	Notices  []string
}

// NewResultsData prepares a view for rendering, keeping at most limit rows.
func NewResultsData(view models.View, limit int) ResultsData {
	shown := view.Table
	if limit > 0 {
		shown = view.Table.Head(limit)
	}
	rows := make([]models.Row, shown.Len())
	for i := range rows {
		rows[i] = shown.Row(i)
	}
	return ResultsData{
		RowCount: view.Table.Len(),
		Shown:    shown.Len(),
		Columns:  view.Table.Columns(),
		Rows:     rows,
		Stats:    view.Stats,
		Notices:  view.Notices,
	}
}

var pageTemplates = template.Must(template.New("page").Parse(`
{{- define "dashboard" -}}
<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script type="module" src="` + datastarScript + `"></script>
<style>` + styles + `</style>
</head>
<body>
<aside class="sidebar">
{{template "upload" .Upload}}
{{with .Filters}}{{template "filters" .}}{{end}}
</aside>
<main>
<h1>{{.Title}}</h1>
{{if .Results}}{{template "results" .Results}}{{else}}<p class="info">Upload a CSV or Excel file from the sidebar to begin.</p>{{end}}
</main>
</body>
</html>
{{- end}}

{{- define "upload" -}}
<section id="upload"><h2>1. Upload file</h2>
<form method="post" action="/upload" enctype="multipart/form-data">
<input type="file" name="file" accept=".csv,.xlsx,.xlsm,.xls" required>
<button type="submit">Upload</button>
</form>
{{with .Filename}}<p class="filename">{{.}}</p>{{end}}
{{with .Message}}<p class="error" role="alert">{{.}}</p>{{end}}
</section>
{{- end}}

{{- define "filters" -}}
<section id="filters" data-signals="{{.Signals}}" data-on:change="@post('/sse/view')"><h2>2. Filters</h2>
{{if .HasDates}}<label>From <input type="date" data-bind="from" value="{{.From}}"></label><label>To <input type="date" data-bind="to" value="{{.To}}"></label>{{end}}
{{range .Selects}}<label>{{.Label}} <select multiple data-bind="{{.Signal}}">
{{range .Options}}<option value="{{.}}">{{.}}</option>{{end}}
</select></label>
{{end}}</section>
{{- end}}

{{- define "results" -}}
<div id="results">
{{range .Notices}}<p class="warning">{{.}}</p>{{end}}
<h2>Results: {{.RowCount}} candidates</h2>
{{with .Stats}}<div class="stats">
<div class="metric"><span class="label">Counted (pass+fail)</span><strong>{{.Total}}</strong></div>
<div class="metric"><span class="label">Passed</span><strong>{{.Passed}}</strong></div>
<div class="metric"><span class="label">Failed</span><strong>{{.Failed}}</strong></div>
<div class="metric"><span class="label">Pass rate</span><strong>{{printf "%.1f%%" .PassRate}}</strong></div>
</div>{{end}}
<details><summary>Show table{{if lt .Shown .RowCount}} (first {{.Shown}} of {{.RowCount}}){{end}}</summary>
<table class="modern-table">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{if not .Missing}}{{.Text}}{{end}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</details>
</div>
{{- end}}

{{- define "message" -}}
<div id="results"><p class="info">{{.}}</p></div>
{{- end}}
`))

func execute(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return pageTemplates.ExecuteTemplate(w, name, data)
	})
}

type uploadData struct {
	Filename string
	Message  string
}

type selectData struct {
	Label   string
	Signal  string
	Options []string
}

type filtersData struct {
	Signals  string
	HasDates bool
	From     string
	To       string
	Selects  []selectData
}

type dashboardData struct {
	Title   string
	Upload  uploadData
	Filters *filtersData
	Results *ResultsData
}

func Dashboard(data PageData) templ.Component {
	view := dashboardData{
		Title:  data.Title,
		Upload: uploadData{Filename: data.Filename, Message: data.Error},
	}
	if view.Title == "" {
		view.Title = "Exam results"
	}
	if data.Loaded {
		filters, err := newFiltersData(data.Domains, data.Bounds)
		if err != nil {
			return failed(err)
		}
		view.Filters = filters
		view.Results = &data.Results
	}
	return execute("dashboard", view)
}

func UploadForm(filename, message string) templ.Component {
	return execute("upload", uploadData{Filename: filename, Message: message})
}

type filterSignals struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Locations []string `json:"locations"`
	Codes     []string `json:"codes"`
}

// newFiltersData builds the controls for the columns the table has. A nil
// domain means the column is absent and gets no control.
func newFiltersData(domains models.Domains, bounds *models.DateRange) (*filtersData, error) {
	signals := filterSignals{Locations: []string{}, Codes: []string{}}
	if bounds != nil {
		signals.From = bounds.Start.Format(time.DateOnly)
		signals.To = bounds.End.Format(time.DateOnly)
	}
	encoded, err := json.Marshal(signals)
	if err != nil {
		return nil, fmt.Errorf("encode filter signals: %w", err)
	}

	data := &filtersData{
		Signals:  string(encoded),
		HasDates: bounds != nil,
		From:     signals.From,
		To:       signals.To,
	}
	if domains.Locations != nil {
		data.Selects = append(data.Selects, selectData{Label: "Locations", Signal: "locations", Options: domains.Locations})
	}
	if domains.Codes != nil {
		data.Selects = append(data.Selects, selectData{Label: "Product codes", Signal: "codes", Options: domains.Codes})
	}
	return data, nil
}

func Filters(domains models.Domains, bounds *models.DateRange) templ.Component {
	data, err := newFiltersData(domains, bounds)
	if err != nil {
		return failed(err)
	}
	return execute("filters", data)
}

func failed(err error) templ.Component {
	return templ.ComponentFunc(func(context.Context, io.Writer) error {
		return err
	})
}

// Results is the fragment patched on every filter change.
func Results(data ResultsData) templ.Component {
	return execute("results", data)
}

// Message replaces the results fragment with a single line of text.
func Message(text string) templ.Component {
	return execute("message", text)
}

const styles = `
body{display:flex;margin:0;font-family:system-ui,sans-serif}
.sidebar{width:18rem;padding:1rem;background:#f4f5f7;min-height:100vh}
.sidebar label{display:block;margin:.5rem 0}
.sidebar select{width:100%;min-height:6rem}
main{flex:1;padding:1rem 2rem;overflow:auto}
.stats{display:flex;gap:1rem;margin:1rem 0}
.metric{flex:1;padding:.75rem;border:1px solid #ddd;border-radius:6px}
.metric .label{display:block;color:#555;font-size:.85rem}
.metric strong{font-size:1.5rem}
.error{color:#b00020}
.warning{color:#8a6d00}
.modern-table{border-collapse:collapse;font-size:.85rem}
.modern-table th,.modern-table td{border:1px solid #ddd;padding:.25rem .5rem}
`
