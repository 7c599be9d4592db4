package services

import (
	"slices"

	"exam-dashboard/internal/models"
	"exam-dashboard/internal/observability"
)

// ComputeView applies the selection to table and derives the statistics of
// the matching rows. It is a pure function: table is never modified and the
// same inputs always produce the same view.
func ComputeView(schema models.Schema, table *models.Table, sel models.Selection) models.View {
	view := models.View{Domains: Domains(schema, table)}

	keep := make([]bool, table.Len())
	for i := range keep {
		keep[i] = true
	}

	if bounds, ok := DateBounds(schema, table); ok {
		rng := sel.Range(bounds)
		view.Bounds = &bounds
		view.Range = &rng
		idx, _ := table.ColumnIndex(schema.DateColumn)
		for i := range keep {
			c := table.Row(i)[idx]
			if !c.HasDate || !rng.Contains(c.Date) {
				keep[i] = false
			}
		}
	} else {
		view.Notices = append(view.Notices, models.NoticeNoDates)
	}

	applyMembership(table, schema.LocationColumn, sel.Locations, keep)
	applyMembership(table, schema.ProductColumn, sel.Codes, keep)

	view.Table = table.Select(keep)
	view.Stats = ComputeStats(schema, view.Table)
	return view
}

func applyMembership(table *models.Table, column string, values []string, keep []bool) {
	idx, ok := table.ColumnIndex(column)
	if !ok || len(values) == 0 {
		return
	}

	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}

	for i := range keep {
		if !keep[i] {
			continue
		}
		c := table.Row(i)[idx]
		if c.Missing {
			keep[i] = false
			continue
		}
		if _, in := set[c.Text]; !in {
			keep[i] = false
		}
	}
}

// DateBounds returns the earliest and latest parsed dates of the table. It
// reports false when the date column is absent or holds no parsed value.
func DateBounds(schema models.Schema, table *models.Table) (models.DateRange, bool) {
	idx, ok := table.ColumnIndex(schema.DateColumn)
	if !ok {
		return models.DateRange{}, false
	}

	var (
		bounds models.DateRange
		found  bool
	)
	for i := 0; i < table.Len(); i++ {
		c := table.Row(i)[idx]
		if !c.HasDate {
			continue
		}
		if !found {
			bounds = models.DateRange{Start: c.Date, End: c.Date}
			found = true
			continue
		}
		if c.Date.Before(bounds.Start) {
			bounds.Start = c.Date
		}
		if c.Date.After(bounds.End) {
			bounds.End = c.Date
		}
	}
	return bounds, found
}

// Domains lists the selectable filter values. Callers must pass the full
// loaded table so options stay stable while filters change.
func Domains(schema models.Schema, table *models.Table) models.Domains {
	return models.Domains{
		Locations: distinct(table, schema.LocationColumn),
		Codes:     distinct(table, schema.ProductColumn),
	}
}

func distinct(table *models.Table, column string) []string {
	idx, ok := table.ColumnIndex(column)
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	values := make([]string, 0)
	for i := 0; i < table.Len(); i++ {
		c := table.Row(i)[idx]
		if c.Missing {
			continue
		}
		if _, dup := seen[c.Text]; dup {
			continue
		}
		seen[c.Text] = struct{}{}
		values = append(values, c.Text)
	}
	slices.Sort(values)
	return values
}

// ComputeStats counts pass and fail results. Rows carrying any other result
// are in neither count. It returns nil when the table has no result column.
func ComputeStats(schema models.Schema, table *models.Table) *models.Stats {
	idx, ok := table.ColumnIndex(schema.ResultColumn)
	if !ok {
		return nil
	}

	stats := &models.Stats{}
	for i := 0; i < table.Len(); i++ {
		c := table.Row(i)[idx]
		if c.Missing {
			continue
		}
		switch c.Text {
		case schema.PassCode:
			stats.Passed++
		case schema.FailCode:
			stats.Failed++
		}
	}

	stats.Total = stats.Passed + stats.Failed
	if stats.Total > 0 {
		stats.PassRate = float64(stats.Passed) / float64(stats.Total) * 100
	}
	return stats
}

// ViewEngine binds ComputeView to a schema and records how often it runs.
type ViewEngine struct {
	schema  models.Schema
	metrics *observability.Metrics
}

func NewViewEngine(schema models.Schema, metrics *observability.Metrics) *ViewEngine {
	return &ViewEngine{schema: schema, metrics: metrics}
}

func (e *ViewEngine) Schema() models.Schema {
	return e.schema
}

func (e *ViewEngine) Compute(table *models.Table, sel models.Selection) models.View {
	e.metrics.ObserveView()
	return ComputeView(e.schema, table, sel)
}

// Summarize describes a freshly loaded table for the upload response.
func (e *ViewEngine) Summarize(filename string, table *models.Table) models.Summary {
	summary := models.Summary{
		Filename: filename,
		Columns:  table.Columns(),
		RowCount: table.Len(),
		Domains:  Domains(e.schema, table),
	}
	if bounds, ok := DateBounds(e.schema, table); ok {
		summary.Bounds = &bounds
	} else {
		summary.Notices = append(summary.Notices, models.NoticeNoDates)
	}
	return summary
}

// Result flattens a view into its JSON shape, keeping at most limit rows.
func Result(view models.View, limit int) models.ViewResult {
	shown := view.Table
	if limit > 0 {
		shown = view.Table.Head(limit)
	}
	return models.ViewResult{
		RowCount:  view.Table.Len(),
		Shown:     shown.Len(),
		Columns:   view.Table.Columns(),
		Rows:      shown.Records(),
		Stats:     view.Stats,
		Range:     view.Range,
		Notices:   view.Notices,
		Truncated: shown.Len() < view.Table.Len(),
	}
}
