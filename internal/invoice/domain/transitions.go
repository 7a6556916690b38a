package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EnsureInvoiceCanTransition guards direct admin status updates. Any status
// may be set except out of CANCELLED.
func EnsureInvoiceCanTransition(from, to InvoiceStatus) error {
	if _, ok := ParseInvoiceStatus(string(to)); !ok {
		return ErrInvalidStatus.WithMessage("unknown invoice status %q", to)
	}
	if from == InvoiceStatusCancelled && to != InvoiceStatusCancelled {
		return ErrInvoiceCancelled
	}
	return nil
}

// EnsureInvoiceCanLinkPayment guards payment attachment.
func EnsureInvoiceCanLinkPayment(status InvoiceStatus) error {
	if status == InvoiceStatusCancelled {
		return ErrInvoiceCancelled
	}
	return nil
}

// EnsureInvoiceCanRecordPayment guards generating an expected payment.
func EnsureInvoiceCanRecordPayment(status InvoiceStatus) error {
	switch status {
	case InvoiceStatusCancelled:
		return ErrInvoiceCancelled
	case InvoiceStatusPaid:
		return ErrInvoiceAlreadyPaid
	default:
		return nil
	}
}

// PaymentLink is the part of a payment that decides how an invoice links to it.
type PaymentLink struct {
	ID           snowflake.ID
	AdvertiserID snowflake.ID
	Completed    bool
	Refunded     bool
}

// LinkPayment attaches p to inv. A completed payment settles the invoice;
// otherwise the status is left as is.
func (inv *Invoice) LinkPayment(p PaymentLink, now time.Time) error {
	if err := EnsureInvoiceCanLinkPayment(inv.Status); err != nil {
		return err
	}
	if p.AdvertiserID != inv.AdvertiserID {
		return ErrAdvertiserMismatch
	}
	if p.Refunded {
		return ErrPaymentRefunded
	}
	id := p.ID
	inv.PaymentID = &id
	if p.Completed {
		inv.Status = InvoiceStatusPaid
		if inv.PaidAt == nil {
			paidAt := now
			inv.PaidAt = &paidAt
		}
	}
	inv.UpdatedAt = now
	return nil
}
