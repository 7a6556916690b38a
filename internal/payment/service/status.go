package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	"github.com/smallbiznis/adbilling/pkg/db"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpdatePaymentStatus moves a payment and cascades to its linked invoices in
// the same transaction.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, req paymentdomain.UpdateStatusRequest) (paymentdomain.StatusChange, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.StatusChange{}, paymentdomain.ErrInvalidPaymentID
	}
	to, ok := paymentdomain.ParsePaymentStatus(req.Status)
	if !ok {
		return paymentdomain.StatusChange{}, paymentdomain.ErrInvalidStatus
	}

	now := s.clock.Now().UTC()
	var (
		from     paymentdomain.PaymentStatus
		payment  *paymentdomain.Payment
		affected []snowflake.ID
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.paymentrepo.WithTrx(tx).FindForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if current == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		from = current.Status

		cascade, err := paymentdomain.EnsurePaymentCanTransition(from, to)
		if err != nil {
			return err
		}

		updates := map[string]any{"updated_at": now}
		if req.Notes != nil {
			if note := strings.TrimSpace(*req.Notes); note != "" {
				updates["notes"] = appendNote(current.Notes, note)
			}
		}
		if from != to {
			updates["status"] = to
			switch to {
			case paymentdomain.PaymentStatusCompleted:
				updates["completed_at"] = now
			case paymentdomain.PaymentStatusRefunded:
				updates["refunded_at"] = now
			}
		}
		if err := s.paymentrepo.WithTrx(tx).Update(ctx, paymentID, updates); err != nil {
			return err
		}

		switch cascade {
		case paymentdomain.CascadeSettle:
			affected, err = s.settleInvoices(ctx, tx, paymentID, now)
		case paymentdomain.CascadeReopen:
			affected, err = s.reopenInvoices(ctx, tx, paymentID, now)
		}
		if err != nil {
			return err
		}

		payment, err = s.paymentrepo.WithTrx(tx).FindOne(ctx, &paymentdomain.Payment{ID: paymentID})
		return err
	})
	if err != nil {
		return paymentdomain.StatusChange{}, err
	}
	if payment == nil {
		return paymentdomain.StatusChange{}, paymentdomain.ErrPaymentNotFound
	}

	invoiceIDs := make([]string, 0, len(affected))
	for _, invoiceID := range affected {
		invoiceIDs = append(invoiceIDs, invoiceID.String())
	}

	if from != to {
		s.log.Info("payment status updated",
			zap.String("payment_id", paymentID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int("affected_invoices", len(invoiceIDs)),
		)
		s.obsMetrics.RecordPaymentCascade(ctx, string(to), len(invoiceIDs))
		s.emitAudit(ctx, "payment.status_updated", payment, map[string]any{
			"previous_status":   string(from),
			"affected_invoices": invoiceIDs,
		})
	}

	return paymentdomain.StatusChange{Payment: *payment, AffectedInvoices: invoiceIDs}, nil
}

// settleInvoices marks every linked invoice PAID. Cancelled invoices stay
// cancelled.
func (s *Service) settleInvoices(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID, now time.Time) ([]snowflake.ID, error) {
	linked, err := s.linkedInvoices(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(linked))
	for _, invoice := range linked {
		if invoice.Status == invoicedomain.InvoiceStatusCancelled {
			continue
		}
		ids = append(ids, invoice.ID)
	}
	if len(ids) == 0 {
		return ids, nil
	}
	err = tx.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":     invoicedomain.InvoiceStatusPaid,
			"paid_at":    gorm.Expr("COALESCE(paid_at, ?)", now),
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// reopenInvoices detaches every linked invoice and reopens the ones that are
// not cancelled. Reopening fails with a conflict when the campaign has since
// been billed by another open invoice.
func (s *Service) reopenInvoices(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID, now time.Time) ([]snowflake.ID, error) {
	linked, err := s.linkedInvoices(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(linked))
	for _, invoice := range linked {
		updates := map[string]any{
			"payment_id": nil,
			"updated_at": now,
		}
		if invoice.Status != invoicedomain.InvoiceStatusCancelled {
			updates["status"] = invoicedomain.InvoiceStatusUnpaid
			updates["paid_at"] = nil
		}
		if err := s.invoicerepo.WithTrx(tx).Update(ctx, invoice.ID, updates); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return nil, paymentdomain.ErrReopenConflict.WithMessage("invoice %s cannot reopen: campaign already has an open invoice", invoice.InvoiceNumber)
			}
			return nil, err
		}
		ids = append(ids, invoice.ID)
	}
	return ids, nil
}

func (s *Service) linkedInvoices(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) ([]*invoicedomain.Invoice, error) {
	return s.invoicerepo.WithTrx(tx).Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "payment_id", Operator: option.EQ, Value: paymentID}),
		option.WithSortBy(option.QuerySortBy{Default: "created_at"}),
		option.ForUpdate(),
	)
}

func appendNote(existing, note string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
