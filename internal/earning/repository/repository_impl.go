package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/earning/domain"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type summaryRow struct {
	Count           int64
	TotalAmount     decimal.Decimal
	PendingAmount   decimal.Decimal
	ProcessedAmount decimal.Decimal
	PaidAmount      decimal.Decimal
	CancelledAmount decimal.Decimal
}

// Summarize totals the full matching set, ignoring pagination.
func (r *repo) Summarize(ctx context.Context, db *gorm.DB, filters ...option.QueryOption) (domain.EarningSummary, error) {
	stmt := db.WithContext(ctx).Model(&domain.PartnerEarning{})
	for _, opt := range filters {
		stmt = opt.Apply(stmt)
	}

	var row summaryRow
	err := stmt.Select(`COUNT(*) AS count,
		COALESCE(SUM(amount), 0) AS total_amount,
		COALESCE(SUM(CASE WHEN status = 'PENDING' THEN amount ELSE 0 END), 0) AS pending_amount,
		COALESCE(SUM(CASE WHEN status = 'PROCESSED' THEN amount ELSE 0 END), 0) AS processed_amount,
		COALESCE(SUM(CASE WHEN status = 'PAID' THEN amount ELSE 0 END), 0) AS paid_amount,
		COALESCE(SUM(CASE WHEN status = 'CANCELLED' THEN amount ELSE 0 END), 0) AS cancelled_amount`).
		Scan(&row).Error
	if err != nil {
		return domain.EarningSummary{}, err
	}

	return domain.EarningSummary{
		Count:           row.Count,
		TotalAmount:     row.TotalAmount.Round(2),
		PendingAmount:   row.PendingAmount.Round(2),
		ProcessedAmount: row.ProcessedAmount.Round(2),
		PaidAmount:      row.PaidAmount.Round(2),
		CancelledAmount: row.CancelledAmount.Round(2),
	}, nil
}
