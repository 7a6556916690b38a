// Package domain defines report shapes, period bucketing and the
// period-over-period trend rules.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ReportType string

const (
	ReportRevenue        ReportType = "revenue"
	ReportPayouts        ReportType = "payouts"
	ReportInvoices       ReportType = "invoices"
	ReportPaymentMethods ReportType = "payment-methods"
)

func ParseReportType(value string) (ReportType, bool) {
	switch t := ReportType(strings.ToLower(strings.TrimSpace(value))); t {
	case ReportRevenue, ReportPayouts, ReportInvoices, ReportPaymentMethods:
		return t, true
	default:
		return "", false
	}
}

type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

func ParseGranularity(value string) (Granularity, bool) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(value))); g {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityQuarter, GranularityYear:
		return g, true
	default:
		return "", false
	}
}

// Truncate returns the start of the bucket holding t, in UTC. Weeks start
// on Monday and quarters are three-month blocks starting in January.
func Truncate(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GranularityQuarter:
		month := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	case GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Label names the bucket starting at start, e.g. 2025-01-06, 2025-W02,
// 2025-01, 2025-Q1 or 2025.
func Label(start time.Time, g Granularity) string {
	start = start.UTC()
	switch g {
	case GranularityWeek:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case GranularityMonth:
		return start.Format("2006-01")
	case GranularityQuarter:
		return fmt.Sprintf("%d-Q%d", start.Year(), (int(start.Month())-1)/3+1)
	case GranularityYear:
		return start.Format("2006")
	default:
		return start.Format("2006-01-02")
	}
}

type ReportRequest struct {
	Type        string     `uri:"type" form:"type"`
	Start       *time.Time `form:"start" time_format:"2006-01-02"`
	End         *time.Time `form:"end" time_format:"2006-01-02"`
	Granularity string     `form:"granularity"`
}

// Entry is one ledger row feeding a report.
type Entry struct {
	At     time.Time
	Amount decimal.Decimal
	Method string
}

type Row struct {
	Period      string          `json:"period"`
	PeriodStart time.Time       `json:"period_start"`
	Amount      decimal.Decimal `json:"amount"`
	Count       int64           `json:"count"`
	Method      string          `json:"method,omitempty"`
}

type MethodShare struct {
	Method     string          `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int64           `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

type Report struct {
	Type        ReportType      `json:"type"`
	Granularity Granularity     `json:"granularity"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Rows        []Row           `json:"rows"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalCount  int64           `json:"total_count"`
	Methods     []MethodShare   `json:"methods,omitempty"`
}
