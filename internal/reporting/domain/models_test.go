package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	usagedomain "github.com/smallbiznis/adbilling/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateAndLabel(t *testing.T) {
	// Thursday
	at := time.Date(2025, 5, 15, 17, 30, 0, 0, time.UTC)

	cases := []struct {
		g     Granularity
		start time.Time
		label string
	}{
		{GranularityDay, time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), "2025-05-15"},
		{GranularityWeek, time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC), "2025-W20"},
		{GranularityMonth, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), "2025-05"},
		{GranularityQuarter, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), "2025-Q2"},
		{GranularityYear, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025"},
	}
	for _, tc := range cases {
		t.Run(string(tc.g), func(t *testing.T) {
			got := Truncate(at, tc.g)
			assert.True(t, tc.start.Equal(got), "got %s", got)
			assert.Equal(t, tc.label, Label(got, tc.g))
		})
	}
}

func TestTruncateWeekOnSunday(t *testing.T) {
	sunday := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	assert.True(t, time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC).Equal(Truncate(sunday, GranularityWeek)))
}

func TestTruncateNormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	at := time.Date(2025, 1, 1, 1, 0, 0, 0, zone)
	assert.True(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC).Equal(Truncate(at, GranularityDay)))
}

func TestPreviousWindow(t *testing.T) {
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	prevStart, prevEnd := PreviousWindow(start, end, 30)
	assert.True(t, start.Add(-28*24*time.Hour).Equal(prevStart))
	assert.True(t, start.Equal(prevEnd))

	prevStart, prevEnd = PreviousWindow(end, start, 30)
	assert.True(t, end.AddDate(0, 0, -30).Equal(prevStart))
	assert.True(t, end.Equal(prevEnd))

	prevStart, _ = PreviousWindow(start, time.Time{}, 0)
	assert.True(t, start.AddDate(0, 0, -DefaultFallbackDays).Equal(prevStart))
}

func TestPercentChange(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		name      string
		cur, prev string
		want      string
	}{
		{"growth from zero", "200", "0", "100"},
		{"both zero", "0", "0", "0"},
		{"decline from zero", "-5", "0", "-100"},
		{"doubling", "200", "100", "100"},
		{"halving", "50", "100", "-50"},
		{"rounded", "1", "3", "-66.67"},
		{"negative base", "-50", "-100", "50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PercentChange(d(tc.cur), d(tc.prev))
			require.True(t, d(tc.want).Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	trends := Compare(
		usagedomain.Totals{Impressions: 200, Engagements: 10},
		usagedomain.Totals{Impressions: 0, Engagements: 20, Completions: 4},
	)
	require.Len(t, trends, 3)
	assert.True(t, trends["impressions"].Change.Equal(decimal.NewFromInt(100)))
	assert.True(t, trends["engagements"].Change.Equal(decimal.NewFromInt(-50)))
	assert.True(t, trends["completions"].Change.Equal(decimal.NewFromInt(-100)))
	assert.True(t, trends["completions"].Previous.Equal(decimal.NewFromInt(4)))
}

func TestParse(t *testing.T) {
	rt, ok := ParseReportType("Payment-Methods")
	assert.True(t, ok)
	assert.Equal(t, ReportPaymentMethods, rt)
	_, ok = ParseReportType("churn")
	assert.False(t, ok)

	g, ok := ParseGranularity(" QUARTER ")
	assert.True(t, ok)
	assert.Equal(t, GranularityQuarter, g)
	_, ok = ParseGranularity("hour")
	assert.False(t, ok)
}
