package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestXLSXWritesRowsAndShares(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	report := reportingdomain.Report{
		Type:        reportingdomain.ReportPaymentMethods,
		Granularity: reportingdomain.GranularityMonth,
		Start:       start,
		End:         start.AddDate(0, 3, 0),
		Rows: []reportingdomain.Row{
			{Period: "2025-01", PeriodStart: start, Amount: decimal.RequireFromString("75.50"), Count: 2, Method: "VISA"},
		},
		TotalAmount: decimal.RequireFromString("75.50"),
		TotalCount:  2,
		Methods: []reportingdomain.MethodShare{
			{Method: "VISA", Amount: decimal.RequireFromString("75.50"), Count: 2, Percentage: decimal.NewFromInt(100)},
		},
	}

	doc, err := XLSX(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(doc))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetRows)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Period", "Period Start", "Amount", "Count", "Method"}, rows[0])
	assert.Equal(t, "2025-01", rows[1][0])
	assert.Equal(t, "VISA", rows[1][4])
	assert.Equal(t, "Total", rows[2][0])

	shares, err := f.GetRows(sheetMethods)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, "100", shares[1][3])
}

func TestFileName(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	name := FileName(reportingdomain.Report{
		Type:        reportingdomain.ReportPaymentMethods,
		Granularity: reportingdomain.GranularityQuarter,
		Start:       start,
		End:         start.AddDate(1, 0, 0),
	})
	assert.Equal(t, "payment-methods-quarter-2025-01-01-2026-01-01.xlsx", name)
}
