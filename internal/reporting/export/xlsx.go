// Package export writes reports to spreadsheet workbooks.
package export

import (
	"bytes"
	"fmt"

	"github.com/gosimple/slug"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"github.com/xuri/excelize/v2"
)

const (
	sheetRows    = "Report"
	sheetMethods = "Methods"
)

// FileName suggests a download name, e.g. payment-methods-month-2025-01-01-2025-04-01.xlsx.
func FileName(report reportingdomain.Report) string {
	base := fmt.Sprintf("%s %s %s %s",
		report.Type,
		report.Granularity,
		report.Start.UTC().Format("2006-01-02"),
		report.End.UTC().Format("2006-01-02"),
	)
	return slug.Make(base) + ".xlsx"
}

// XLSX renders the report rows on one sheet and, for payment-methods, the
// per-method shares on a second.
func XLSX(report reportingdomain.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRows); err != nil {
		return nil, err
	}
	headings := []any{"Period", "Period Start", "Amount", "Count"}
	if report.Type == reportingdomain.ReportPaymentMethods {
		headings = append(headings, "Method")
	}
	if err := f.SetSheetRow(sheetRows, "A1", &headings); err != nil {
		return nil, err
	}
	for i, row := range report.Rows {
		values := []any{
			row.Period,
			row.PeriodStart.UTC().Format("2006-01-02"),
			row.Amount.InexactFloat64(),
			row.Count,
		}
		if report.Type == reportingdomain.ReportPaymentMethods {
			values = append(values, row.Method)
		}
		if err := f.SetSheetRow(sheetRows, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return nil, err
		}
	}
	total := []any{"Total", "", report.TotalAmount.InexactFloat64(), report.TotalCount}
	if err := f.SetSheetRow(sheetRows, fmt.Sprintf("A%d", len(report.Rows)+2), &total); err != nil {
		return nil, err
	}

	if report.Type == reportingdomain.ReportPaymentMethods {
		if _, err := f.NewSheet(sheetMethods); err != nil {
			return nil, err
		}
		header := []any{"Method", "Amount", "Count", "Percentage"}
		if err := f.SetSheetRow(sheetMethods, "A1", &header); err != nil {
			return nil, err
		}
		for i, share := range report.Methods {
			values := []any{share.Method, share.Amount.InexactFloat64(), share.Count, share.Percentage.InexactFloat64()}
			if err := f.SetSheetRow(sheetMethods, fmt.Sprintf("A%d", i+2), &values); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
