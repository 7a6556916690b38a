package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/adbilling/pkg/errs"
	"gorm.io/gorm"
)

type Service interface {
	Report(ctx context.Context, req ReportRequest) (Report, error)
	// Export renders the report as an XLSX workbook and suggests a file name.
	Export(ctx context.Context, req ReportRequest) ([]byte, string, error)
}

// Repository reads the rows each report type buckets, within [start, end).
type Repository interface {
	Entries(ctx context.Context, db *gorm.DB, t ReportType, start, end time.Time) ([]Entry, error)
}

var (
	ErrInvalidReportType  = errs.ValidationField("type", "invalid_report_type")
	ErrInvalidGranularity = errs.ValidationField("granularity", "invalid_granularity")
	ErrInvalidRange       = errs.Validation("invalid_range")
)
