package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type summaryRow struct {
	Count             int64
	TotalAmount       decimal.Decimal
	PaidAmount        decimal.Decimal
	OutstandingAmount decimal.Decimal
	OverdueCount      int64
}

func (r *repo) Summarize(ctx context.Context, db *gorm.DB, now time.Time, filters ...option.QueryOption) (domain.InvoiceSummary, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	for _, opt := range filters {
		stmt = opt.Apply(stmt)
	}

	var row summaryRow
	err := stmt.Select(`COUNT(*) AS count,
		COALESCE(SUM(total_amount), 0) AS total_amount,
		COALESCE(SUM(CASE WHEN status = 'PAID' THEN total_amount ELSE 0 END), 0) AS paid_amount,
		COALESCE(SUM(CASE WHEN status IN ('UNPAID', 'PARTIALLY_PAID', 'OVERDUE') THEN total_amount ELSE 0 END), 0) AS outstanding_amount,
		COALESCE(SUM(CASE WHEN status = 'OVERDUE' OR (status = 'UNPAID' AND due_date < ?) THEN 1 ELSE 0 END), 0) AS overdue_count`,
		now.UTC(),
	).Scan(&row).Error
	if err != nil {
		return domain.InvoiceSummary{}, err
	}

	return domain.InvoiceSummary{
		Count:             row.Count,
		TotalAmount:       row.TotalAmount.Round(2),
		PaidAmount:        row.PaidAmount.Round(2),
		OutstandingAmount: row.OutstandingAmount.Round(2),
		OverdueCount:      row.OverdueCount,
	}, nil
}
