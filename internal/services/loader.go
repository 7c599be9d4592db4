package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"exam-dashboard/internal/models"
	"exam-dashboard/internal/observability"
)

const (
	csvSeparator   = ';'
	maxLegacyRows  = 1 << 20
	maxExcelSerial = 2958466 // 9999-12-31
)

var (
	ErrFormat = errors.New("unsupported file format")
	ErrParse  = errors.New("malformed file")
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatXLS     Format = "xls"
	FormatUnknown Format = "unknown"
)

// LoadError reports why an upload produced no table. It matches both its
// kind (ErrFormat or ErrParse) and the underlying cause with errors.Is.
type LoadError struct {
	Kind     error
	Filename string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Filename, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Filename, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// DetectFormat picks a parser from the filename extension, ignoring case.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		if ext == "" {
			return FormatUnknown, &LoadError{Kind: ErrFormat, Filename: filename, Err: errors.New("file has no extension")}
		}
		return FormatUnknown, &LoadError{Kind: ErrFormat, Filename: filename, Err: fmt.Errorf("extension %q is not csv or a spreadsheet", ext)}
	}
}

type Loader struct {
	schema  models.Schema
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewLoader(schema models.Schema, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		schema:  schema,
		logger:  logger,
		metrics: metrics,
	}
}

func (l *Loader) Schema() models.Schema {
	return l.schema
}

// Load parses an uploaded file into a table. It never panics: every parser
// failure is returned as a *LoadError.
func (l *Loader) Load(ctx context.Context, filename string, data []byte) (*models.Table, error) {
	ctx, span := observability.StartSpan(ctx, "loader.load")
	defer span.Finish()
	span.SetTag("filename", filename)
	logger := observability.LoggerFrom(ctx, l.logger)

	format, err := DetectFormat(filename)
	if err != nil {
		span.SetError(err)
		l.metrics.ObserveUpload(string(format), "format_error")
		logger.Warn("rejected upload", "filename", filename, "error", err)
		return nil, err
	}
	span.SetTag("format", string(format))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	table, err := l.parse(format, data)
	duration := time.Since(start)
	l.metrics.ObserveParse(string(format), duration)

	if err != nil {
		loadErr := &LoadError{Kind: ErrParse, Filename: filename, Err: err}
		span.SetError(loadErr)
		l.metrics.ObserveUpload(string(format), "parse_error")
		logger.Warn("failed to parse upload", "filename", filename, "format", format, "error", err)
		return nil, loadErr
	}

	l.metrics.ObserveUpload(string(format), "ok")
	logger.Info("parsed upload",
		"filename", filename,
		"format", format,
		"rows", table.Len(),
		"columns", len(table.Columns()),
		"duration", duration,
	)
	return table, nil
}

func (l *Loader) parse(format Format, data []byte) (table *models.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			table = nil
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()

	var (
		records  [][]string
		workbook bool
	)
	switch format {
	case FormatCSV:
		records, err = readDelimited(data)
	case FormatXLSX:
		records, err = readWorkbook(data)
		workbook = true
	case FormatXLS:
		records, err = readLegacyWorkbook(data)
		workbook = true
	default:
		return nil, fmt.Errorf("no parser for format %q", format)
	}
	if err != nil {
		return nil, err
	}

	return buildTable(l.schema, records, workbook)
}

func readDelimited(data []byte) ([][]string, error) {
	var decoder transform.Transformer = unicode.UTF8.NewDecoder()
	if !utf8.Valid(data) {
		decoder = charmap.Windows1252.NewDecoder()
	}

	r := csv.NewReader(transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(decoder)))
	r.Comma = csvSeparator
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	// Raw values keep date cells as serial numbers instead of the
	// month-first display format excelize would otherwise apply.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readLegacyWorkbook(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open legacy workbook: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	last := min(int(sheet.MaxRow), maxLegacyRows-1)
	records := make([][]string, 0, last+1)
	width := 0
	for i := 0; i <= last; i++ {
		row := legacyRow(sheet, i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		width = max(width, row.LastCol())
		record := make([]string, width)
		for j := range record {
			record[j] = row.Col(j)
		}
		records = append(records, record)
	}
	return records, nil
}

// legacyRow returns nil for rows the sheet does not store.
func legacyRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	// WorkSheet.Row dereferences the missing entry without checking.
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// buildTable turns raw records into a table. Workbook records carry Excel
// serial dates, and their trailing blank rows are dropped.
func buildTable(schema models.Schema, records [][]string, fromWorkbook bool) (*models.Table, error) {
	if fromWorkbook {
		for len(records) > 0 && isBlankRecord(records[len(records)-1]) {
			records = records[:len(records)-1]
		}
	}

	start := 0
	for start < len(records) && isBlankRecord(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, errors.New("no columns to parse from file")
	}

	columns := normalizeHeader(records[start])
	dateIdx := indexOf(columns, schema.DateColumn)
	resultIdx := indexOf(columns, schema.ResultColumn)

	rows := make([]models.Row, 0, len(records)-start-1)
	for n, record := range records[start+1:] {
		width := len(record)
		if fromWorkbook {
			width = max(width, len(columns))
		}
		if isEmptyLine(record, width) {
			continue
		}
		if len(record) > len(columns) {
			if !isBlankRecord(record[len(columns):]) {
				return nil, fmt.Errorf("line %d: expected %d fields, saw %d", start+n+2, len(columns), len(record))
			}
			record = record[:len(columns)]
		}

		row := make(models.Row, len(columns))
		for j := range columns {
			if j >= len(record) || isMissing(record[j]) {
				row[j] = models.MissingCell()
				continue
			}
			switch j {
			case dateIdx:
				if d, ok := parseDate(record[j], fromWorkbook); ok {
					row[j] = models.DateCell(d)
				} else {
					row[j] = models.MissingCell()
				}
			case resultIdx:
				row[j] = models.TextCell(strings.ToUpper(strings.TrimSpace(record[j])))
			default:
				row[j] = models.TextCell(record[j])
			}
		}
		rows = append(rows, row)
	}

	return models.NewTable(columns, rows), nil
}

// normalizeHeader names blank headers by position and suffixes duplicates
// with .1, .2 so every column stays addressable.
func normalizeHeader(raw []string) []string {
	columns := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			base := name
			for dup {
				n++
				name = base + "." + strconv.Itoa(n)
				_, dup = seen[name]
			}
			seen[base] = n
		}
		seen[name] = 0
		columns[i] = name
	}
	return columns
}

func indexOf(columns []string, name string) int {
	if name == "" {
		return -1
	}
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

var missingTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
	"#N/A": {},
	"None": {},
}

func isMissing(s string) bool {
	_, ok := missingTokens[strings.TrimSpace(s)]
	return ok
}

// isEmptyLine reports whether a record is skipped rather than read as a row of
// missing cells. Separator-only lines keep their row.
func isEmptyLine(record []string, width int) bool {
	return width <= 1 && isBlankRecord(record)
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

var dayFirstLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02-01-2006 15:04",
	"02-01-2006 15:04:05",
	"02.01.2006 15:04",
}

// parseDate reads a calendar day, preferring DD/MM over MM/DD when the text is
// ambiguous. Spreadsheet cells may carry Excel serial numbers instead of text.
func parseDate(raw string, serial bool) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if serial {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f <= 0 || f > maxExcelSerial {
				return time.Time{}, false
			}
			t, err := excelize.ExcelDateToTime(f, false)
			if err != nil {
				return time.Time{}, false
			}
			return models.Day(t), true
		}
	}

	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Day(t), true
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true),
	)
	if err != nil {
		return time.Time{}, false
	}
	return models.Day(t), true
}
