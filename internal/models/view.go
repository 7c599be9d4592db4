package models

import "time"

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether d falls inside the range, both ends inclusive.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Selection is the user's current filter state. Nil From/To fall back to the
// table's own bounds; nil or empty sets never filter.
type Selection struct {
	From      *time.Time
	To        *time.Time
	Locations []string
	Codes     []string
}

// Range resolves the selected date range against the table defaults.
func (s Selection) Range(bounds DateRange) DateRange {
	r := bounds
	if s.From != nil {
		r.Start = Day(*s.From)
	}
	if s.To != nil {
		r.End = Day(*s.To)
	}
	return r
}

type Stats struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

type Domains struct {
	Locations []string `json:"locations"`
	Codes     []string `json:"codes"`
}

const NoticeNoDates = "no date information"

type View struct {
	Table   *Table
	Stats   *Stats
	Bounds  *DateRange
	Range   *DateRange
	Domains Domains
	Notices []string
}

// Summary is the JSON shape of a loaded table.
type Summary struct {
	Filename string     `json:"filename"`
	Columns  []string   `json:"columns"`
	RowCount int        `json:"row_count"`
	Domains  Domains    `json:"domains"`
	Bounds   *DateRange `json:"bounds,omitempty"`
	Notices  []string   `json:"notices,omitempty"`
}

// ViewResult is the JSON shape of a computed view.
type ViewResult struct {
	RowCount  int                 `json:"row_count"`
	Shown     int                 `json:"shown"`
	Columns   []string            `json:"columns"`
	Rows      []map[string]string `json:"rows"`
	Stats     *Stats              `json:"stats"`
	Range     *DateRange          `json:"range,omitempty"`
	Notices   []string            `json:"notices,omitempty"`
	Truncated bool                `json:"truncated"`
}
