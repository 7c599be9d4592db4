package models

import "time"

// Schema names the columns the dashboard understands and the normalized
// result codes. Every column is optional in an uploaded file.
type Schema struct {
	DateColumn     string
	ResultColumn   string
	LocationColumn string
	ProductColumn  string
	PassCode       string
	FailCode       string
}

func DefaultSchema() Schema {
	return Schema{
		DateColumn:     "Examen.datum",
		ResultColumn:   "Resultaat.uitslag",
		LocationColumn: "Algemeen.locatie_naam",
		ProductColumn:  "Algemeen.product_code",
		PassCode:       "V",
		FailCode:       "O",
	}
}

type Cell struct {
	Text    string
	Date    time.Time
	HasDate bool
	Missing bool
}

func TextCell(s string) Cell {
	return Cell{Text: s}
}

func DateCell(t time.Time) Cell {
	return Cell{Text: t.Format(time.DateOnly), Date: t, HasDate: true}
}

func MissingCell() Cell {
	return Cell{Missing: true}
}

type Row []Cell

// Table is an ordered, read-only set of rows. Filtering returns a new Table
// sharing row storage with its source, so rows must never be written after
// construction.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// NewTable builds a table. Rows shorter than the header are padded with
// missing cells.
func NewTable(columns []string, rows []Row) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}

	for i, r := range rows {
		if len(r) < len(cols) {
			padded := make(Row, len(cols))
			copy(padded, r)
			for j := len(r); j < len(cols); j++ {
				padded[j] = MissingCell()
			}
			rows[i] = padded
		}
	}

	return &Table{columns: cols, index: index, rows: rows}
}

func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// ColumnIndex reports the position of a column by exact name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	i, ok := t.index[name]
	return i, ok
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.ColumnIndex(name)
	return ok
}

// Cell returns the cell at row i of the named column. Absent columns yield a
// missing cell.
func (t *Table) Cell(i int, column string) Cell {
	idx, ok := t.ColumnIndex(column)
	if !ok {
		return MissingCell()
	}
	return t.rows[i][idx]
}

// Select returns a new table containing the rows for which keep is true.
func (t *Table) Select(keep []bool) *Table {
	rows := make([]Row, 0, len(t.rows))
	for i, r := range t.rows {
		if i < len(keep) && keep[i] {
			rows = append(rows, r)
		}
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// Head returns at most n rows, used when a view is too large to render.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.rows) {
		return t
	}
	return &Table{columns: t.columns, index: t.index, rows: t.rows[:n:n]}
}

// Records renders rows as column-name keyed maps of display text.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.rows))
	for _, r := range t.rows {
		rec := make(map[string]string, len(t.columns))
		for j, c := range t.columns {
			if r[j].Missing {
				continue
			}
			rec[c] = r[j].Text
		}
		out = append(out, rec)
	}
	return out
}
