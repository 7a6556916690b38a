package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/payment/domain"
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
	CompletedAmount decimal.Decimal
	RefundedAmount  decimal.Decimal
	PendingAmount   decimal.Decimal
}

// Summarize totals the full matching set, ignoring pagination.
func (r *repo) Summarize(ctx context.Context, db *gorm.DB, filters ...option.QueryOption) (domain.PaymentSummary, error) {
	stmt := db.WithContext(ctx).Model(&domain.Payment{})
	for _, opt := range filters {
		stmt = opt.Apply(stmt)
	}

	var row summaryRow
	err := stmt.Select(`COUNT(*) AS count,
		COALESCE(SUM(amount), 0) AS total_amount,
		COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN amount ELSE 0 END), 0) AS completed_amount,
		COALESCE(SUM(CASE WHEN status = 'REFUNDED' THEN amount ELSE 0 END), 0) AS refunded_amount,
		COALESCE(SUM(CASE WHEN status = 'PENDING' THEN amount ELSE 0 END), 0) AS pending_amount`).
		Scan(&row).Error
	if err != nil {
		return domain.PaymentSummary{}, err
	}

	return domain.PaymentSummary{
		Count:           row.Count,
		TotalAmount:     row.TotalAmount.Round(2),
		CompletedAmount: row.CompletedAmount.Round(2),
		RefundedAmount:  row.RefundedAmount.Round(2),
		PendingAmount:   row.PendingAmount.Round(2),
	}, nil
}
