package repository

import (
	"context"
	"time"

	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() reportingdomain.Repository {
	return &repo{}
}

func (r *repo) Entries(ctx context.Context, db *gorm.DB, t reportingdomain.ReportType, start, end time.Time) ([]reportingdomain.Entry, error) {
	start, end = start.UTC(), end.UTC()
	switch t {
	case reportingdomain.ReportRevenue, reportingdomain.ReportPaymentMethods:
		return r.completedPayments(ctx, db, start, end)
	case reportingdomain.ReportPayouts:
		return r.earnings(ctx, db, start, end)
	case reportingdomain.ReportInvoices:
		return r.invoices(ctx, db, start, end)
	default:
		return nil, reportingdomain.ErrInvalidReportType
	}
}

func (r *repo) completedPayments(ctx context.Context, db *gorm.DB, start, end time.Time) ([]reportingdomain.Entry, error) {
	var rows []paymentdomain.Payment
	err := db.WithContext(ctx).
		Select("id", "amount", "method", "completed_at").
		Where("status = ?", paymentdomain.PaymentStatusCompleted).
		Where("completed_at >= ? AND completed_at < ?", start, end).
		Order("completed_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]reportingdomain.Entry, 0, len(rows))
	for _, row := range rows {
		if row.CompletedAt == nil {
			continue
		}
		entries = append(entries, reportingdomain.Entry{At: *row.CompletedAt, Amount: row.Amount, Method: string(row.Method)})
	}
	return entries, nil
}

func (r *repo) earnings(ctx context.Context, db *gorm.DB, start, end time.Time) ([]reportingdomain.Entry, error) {
	var rows []earningdomain.PartnerEarning
	err := db.WithContext(ctx).
		Select("id", "amount", "period_start").
		Where("status <> ?", earningdomain.EarningStatusCancelled).
		Where("period_start >= ? AND period_start < ?", start, end).
		Order("period_start").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]reportingdomain.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, reportingdomain.Entry{At: row.PeriodStart, Amount: row.Amount})
	}
	return entries, nil
}

func (r *repo) invoices(ctx context.Context, db *gorm.DB, start, end time.Time) ([]reportingdomain.Entry, error) {
	var rows []invoicedomain.Invoice
	err := db.WithContext(ctx).
		Select("id", "total_amount", "created_at").
		Where("status <> ?", invoicedomain.InvoiceStatusCancelled).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]reportingdomain.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, reportingdomain.Entry{At: row.CreatedAt, Amount: row.TotalAmount})
	}
	return entries, nil
}
