package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-dashboard/internal/models"
)

func mustTable(t *testing.T, csv string) *models.Table {
	t.Helper()
	records, err := readDelimited([]byte(csv))
	require.NoError(t, err)
	table, err := buildTable(models.DefaultSchema(), records, false)
	require.NoError(t, err)
	return table
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := day(y, m, d)
	return &t
}

func locations(table *models.Table) []string {
	out := make([]string, table.Len())
	for i := range out {
		out[i] = table.Cell(i, "Algemeen.locatie_naam").Text
	}
	return out
}

// scenarioTable holds the two rows used by the reference scenarios.
func scenarioTable(t *testing.T) *models.Table {
	return mustTable(t, examHeader+
		"10/01/2024;V;A;P1\n"+
		"20/01/2024;O;B;P2\n")
}

func sampleTable(t *testing.T) *models.Table {
	return mustTable(t, examHeader+
		"02/01/2024;V;Amsterdam;B\n"+
		"05/01/2024;O;Amsterdam;A\n"+
		"05/01/2024;V;Rotterdam;B\n"+
		"12/01/2024;V;Utrecht;C\n"+
		"15/01/2024;X;Rotterdam;A\n"+
		"bad-date;V;Utrecht;B\n"+
		"20/01/2024;O;;B\n"+
		"25/01/2024;o;Amsterdam;\n")
}

func TestComputeView_ScenarioA(t *testing.T) {
	schema := models.DefaultSchema()
	sel := models.Selection{From: datePtr(2024, 1, 1), To: datePtr(2024, 1, 15)}

	view := ComputeView(schema, scenarioTable(t), sel)

	require.Equal(t, 1, view.Table.Len())
	assert.Equal(t, "A", view.Table.Cell(0, "Algemeen.locatie_naam").Text)
	require.NotNil(t, view.Stats)
	assert.Equal(t, models.Stats{Total: 1, Passed: 1, Failed: 0, PassRate: 100.0}, *view.Stats)
}

func TestComputeView_ScenarioB(t *testing.T) {
	schema := models.DefaultSchema()
	sel := models.Selection{
		From:      datePtr(2024, 1, 1),
		To:        datePtr(2024, 1, 31),
		Locations: []string{"B"},
	}

	view := ComputeView(schema, scenarioTable(t), sel)

	require.Equal(t, 1, view.Table.Len())
	assert.Equal(t, "B", view.Table.Cell(0, "Algemeen.locatie_naam").Text)
	require.NotNil(t, view.Stats)
	assert.Equal(t, 0, view.Stats.Passed)
	assert.Equal(t, 1, view.Stats.Failed)
	assert.Equal(t, 0.0, view.Stats.PassRate)
}

func TestComputeView_ScenarioC_NoResultColumn(t *testing.T) {
	table := mustTable(t, "Examen.datum;Algemeen.locatie_naam\n10/01/2024;A\n11/01/2024;B\n")

	view := ComputeView(models.DefaultSchema(), table, models.Selection{})

	assert.Equal(t, 2, view.Table.Len())
	assert.Nil(t, view.Stats, "stats are unavailable, not zero")
}

func TestComputeView_ScenarioD_MalformedDate(t *testing.T) {
	table := mustTable(t, examHeader+
		"not-a-date;V;A;P1\n"+
		"10/01/2024;O;B;P1\n")
	require.Equal(t, 2, table.Len(), "row is retained in the loaded table")

	view := ComputeView(models.DefaultSchema(), table, models.Selection{})

	require.Equal(t, 1, view.Table.Len(), "row without a date never matches a range")
	assert.Equal(t, "B", view.Table.Cell(0, "Algemeen.locatie_naam").Text)
}

func TestComputeView_DefaultsToTableBounds(t *testing.T) {
	table := sampleTable(t)

	view := ComputeView(models.DefaultSchema(), table, models.Selection{})

	require.NotNil(t, view.Bounds)
	assert.Equal(t, day(2024, 1, 2), view.Bounds.Start)
	assert.Equal(t, day(2024, 1, 25), view.Bounds.End)
	assert.Equal(t, *view.Bounds, *view.Range)
	assert.Equal(t, 7, view.Table.Len(), "only the undated row is dropped")
	assert.Empty(t, view.Notices)
}

func TestComputeView_PartialRange(t *testing.T) {
	view := ComputeView(models.DefaultSchema(), sampleTable(t), models.Selection{From: datePtr(2024, 1, 12)})

	require.NotNil(t, view.Range)
	assert.Equal(t, day(2024, 1, 12), view.Range.Start)
	assert.Equal(t, day(2024, 1, 25), view.Range.End)
	assert.Equal(t, 4, view.Table.Len())
}

func TestComputeView_NoDateInformation(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"absent column", "Resultaat.uitslag;Algemeen.locatie_naam\nV;A\nO;B\n"},
		{"all missing", "Examen.datum;Resultaat.uitslag;Algemeen.locatie_naam\nbad;V;A\n;O;B\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := ComputeView(models.DefaultSchema(), mustTable(t, tt.csv), models.Selection{From: datePtr(2030, 1, 1)})

			assert.Equal(t, 2, view.Table.Len(), "date filtering is skipped")
			assert.Nil(t, view.Bounds)
			assert.Nil(t, view.Range)
			assert.Equal(t, []string{models.NoticeNoDates}, view.Notices)
			require.NotNil(t, view.Stats)
			assert.Equal(t, 50.0, view.Stats.PassRate)
		})
	}
}

func TestComputeView_InvertedRangeIsEmpty(t *testing.T) {
	sel := models.Selection{From: datePtr(2024, 1, 20), To: datePtr(2024, 1, 10)}

	view := ComputeView(models.DefaultSchema(), sampleTable(t), sel)

	assert.Equal(t, 0, view.Table.Len())
	require.NotNil(t, view.Stats)
	assert.Equal(t, models.Stats{}, *view.Stats)
}

func TestComputeView_EmptySetsDoNotFilter(t *testing.T) {
	table := sampleTable(t)
	schema := models.DefaultSchema()

	withNil := ComputeView(schema, table, models.Selection{})
	withEmpty := ComputeView(schema, table, models.Selection{Locations: []string{}, Codes: []string{}})

	assert.Equal(t, withNil.Table.Len(), withEmpty.Table.Len())
	assert.Equal(t, withNil.Stats, withEmpty.Stats)
}

func TestComputeView_MissingValuesNeverMatchSets(t *testing.T) {
	view := ComputeView(models.DefaultSchema(), sampleTable(t), models.Selection{Codes: []string{"B"}})

	// The row without a product code must not appear; the row with an empty
	// location is still kept because only codes are filtered.
	assert.Equal(t, 3, view.Table.Len())
	assert.Contains(t, locations(view.Table), "")
}

func TestComputeView_Stats(t *testing.T) {
	view := ComputeView(models.DefaultSchema(), sampleTable(t), models.Selection{})

	require.NotNil(t, view.Stats)
	// X is neither pass nor fail; lowercase o was normalized on load.
	assert.Equal(t, 3, view.Stats.Passed)
	assert.Equal(t, 3, view.Stats.Failed)
	assert.Equal(t, 6, view.Stats.Total)
	assert.InDelta(t, 50.0, view.Stats.PassRate, 1e-9)
	assert.Equal(t, 7, view.Table.Len(), "unscored rows still count as filtered rows")
}

func TestComputeView_Deterministic(t *testing.T) {
	table := sampleTable(t)
	schema := models.DefaultSchema()
	sel := models.Selection{From: datePtr(2024, 1, 3), Locations: []string{"Rotterdam", "Amsterdam"}}

	before := table.Records()
	first := ComputeView(schema, table, sel)
	second := ComputeView(schema, table, sel)

	assert.Equal(t, first.Table.Records(), second.Table.Records())
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Domains, second.Domains)
	assert.Equal(t, before, table.Records(), "source table is unchanged")
	assert.Equal(t, 8, table.Len())
}

func TestComputeView_Monotonic(t *testing.T) {
	table := sampleTable(t)
	schema := models.DefaultSchema()

	narrow := ComputeView(schema, table, models.Selection{Locations: []string{"Amsterdam"}})
	wide := ComputeView(schema, table, models.Selection{Locations: []string{"Amsterdam", "Utrecht"}})
	assert.GreaterOrEqual(t, wide.Table.Len(), narrow.Table.Len())

	full := ComputeView(schema, table, models.Selection{From: datePtr(2024, 1, 1), To: datePtr(2024, 1, 31)})
	shorter := ComputeView(schema, table, models.Selection{From: datePtr(2024, 1, 5), To: datePtr(2024, 1, 15)})
	assert.LessOrEqual(t, shorter.Table.Len(), full.Table.Len())
}

func TestComputeView_Composition(t *testing.T) {
	table := sampleTable(t)
	schema := models.DefaultSchema()

	dates := models.Selection{From: datePtr(2024, 1, 3), To: datePtr(2024, 1, 20)}
	locs := models.Selection{Locations: []string{"Amsterdam", "Rotterdam"}}
	codes := models.Selection{Codes: []string{"A", "B"}}

	combined := ComputeView(schema, table, models.Selection{
		From:      dates.From,
		To:        dates.To,
		Locations: locs.Locations,
		Codes:     codes.Codes,
	})

	orders := [][]models.Selection{
		{dates, locs, codes},
		{codes, locs, dates},
		{locs, dates, codes},
	}
	for _, order := range orders {
		current := table
		for _, sel := range order {
			current = ComputeView(schema, current, sel).Table
		}
		assert.Equal(t, combined.Table.Records(), current.Records())
	}
}

func TestComputeView_PassRateBounds(t *testing.T) {
	table := sampleTable(t)
	schema := models.DefaultSchema()

	selections := []models.Selection{
		{},
		{Locations: []string{"Utrecht"}},
		{Codes: []string{"A"}},
		{From: datePtr(2030, 1, 1)},
	}
	for _, sel := range selections {
		view := ComputeView(schema, table, sel)
		require.NotNil(t, view.Stats)
		assert.GreaterOrEqual(t, view.Stats.PassRate, 0.0)
		assert.LessOrEqual(t, view.Stats.PassRate, 100.0)
		if view.Stats.Total == 0 {
			assert.Equal(t, 0.0, view.Stats.PassRate)
		}
	}
}

func TestDomains(t *testing.T) {
	table := sampleTable(t)
	schema := models.DefaultSchema()

	domains := Domains(schema, table)
	assert.Equal(t, []string{"Amsterdam", "Rotterdam", "Utrecht"}, domains.Locations)
	assert.Equal(t, []string{"A", "B", "C"}, domains.Codes)

	// Domains come from the full table even when the view is narrowed.
	view := ComputeView(schema, table, models.Selection{Locations: []string{"Utrecht"}})
	assert.Equal(t, domains, view.Domains)

	noCols := Domains(schema, mustTable(t, "x;y\n1;2\n"))
	assert.Nil(t, noCols.Locations)
	assert.Nil(t, noCols.Codes)
}

func TestViewEngine_Summarize(t *testing.T) {
	engine := NewViewEngine(models.DefaultSchema(), nil)

	summary := engine.Summarize("results.csv", sampleTable(t))
	assert.Equal(t, "results.csv", summary.Filename)
	assert.Equal(t, 8, summary.RowCount)
	require.NotNil(t, summary.Bounds)
	assert.Equal(t, day(2024, 1, 2), summary.Bounds.Start)

	plain := engine.Summarize("plain.csv", mustTable(t, "x;y\n1;2\n"))
	assert.Nil(t, plain.Bounds)
	assert.Equal(t, []string{models.NoticeNoDates}, plain.Notices)
}

func TestResult_Truncates(t *testing.T) {
	view := ComputeView(models.DefaultSchema(), sampleTable(t), models.Selection{})

	res := Result(view, 2)
	assert.Equal(t, 7, res.RowCount)
	assert.Equal(t, 2, res.Shown)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)

	all := Result(view, 0)
	assert.Equal(t, 7, all.Shown)
	assert.False(t, all.Truncated)
}
