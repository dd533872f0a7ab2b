package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/dashboard/models"
)

func testRange(t *testing.T) models.DateRange {
	t.Helper()

	r, err := models.NewDateRange(
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	return r
}

func TestCountLeads(t *testing.T) {
	rows := [][]any{
		{"Name", "Email", "Date"},
		{"Ada", "ada@example.com", "2025-03-05"},
		{"Grace", "grace@example.com", "03/15/2025"},
		{"Linus", "linus@example.com", "2025-04-01"}, // outside range
		{"Bare", "bare@example.com", "not a date"},
		{"Short"}, // row shorter than the date column
	}

	assert.Equal(t, int64(2), countLeads(rows, testRange(t)))
}

func TestCountLeadsInclusiveBounds(t *testing.T) {
	rows := [][]any{
		{"date"},
		{"2025-03-01"},
		{"2025-03-31"},
		{"2025-02-28"},
	}

	assert.Equal(t, int64(2), countLeads(rows, testRange(t)))
}

func TestCountLeadsHeaderOnly(t *testing.T) {
	assert.Zero(t, countLeads([][]any{{"date"}}, testRange(t)))
	assert.Zero(t, countLeads(nil, testRange(t)))
}

func TestFindDateColumn(t *testing.T) {
	tests := []struct {
		name   string
		header []any
		want   int
	}{
		{name: "explicit date header", header: []any{"Name", "Date", "Email"}, want: 1},
		{name: "created_at header", header: []any{"created_at", "name"}, want: 0},
		{name: "timestamp header", header: []any{"name", "email", "Timestamp"}, want: 2},
		{name: "no match falls back to first column", header: []any{"foo", "bar"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findDateColumn(tt.header))
		})
	}
}

func TestSplitAccountID(t *testing.T) {
	id, readRange := splitAccountID("sheet-123")
	assert.Equal(t, "sheet-123", id)
	assert.Equal(t, defaultReadRange, readRange)

	id, readRange = splitAccountID("sheet-123#Leads")
	assert.Equal(t, "sheet-123", id)
	assert.Equal(t, "Leads!"+defaultReadRange, readRange)
}

func TestParseDate(t *testing.T) {
	for _, ok := range []string{"2025-03-05", "3/5/2025", "Mar 5, 2025"} {
		_, parsed := parseDate(ok)
		assert.True(t, parsed, "expected %q to parse", ok)
	}

	_, parsed := parseDate("yesterday")
	assert.False(t, parsed)
}
