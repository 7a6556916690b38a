package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"github.com/smallbiznis/adbilling/pkg/db/pagination"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"gorm.io/gorm"
)

type CreatePaymentRequest struct {
	AdvertiserID         string          `json:"advertiser_id" validate:"required"`
	Amount               decimal.Decimal `json:"amount"`
	Method               string          `json:"method" validate:"required"`
	Status               string          `json:"status"`
	TransactionReference string          `json:"transaction_reference" validate:"max=128"`
	Notes                string          `json:"notes" validate:"max=2000"`
	InvoiceIDs           []string        `json:"invoice_ids"`
}

type UpdateStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes"`
}

type ListPaymentRequest struct {
	pagination.Pagination
	Status       string     `form:"status"`
	Method       string     `form:"method"`
	AdvertiserID string     `form:"advertiser_id"`
	From         *time.Time `form:"from" time_format:"2006-01-02"`
	To           *time.Time `form:"to" time_format:"2006-01-02"`
	AmountMin    string     `form:"amount_min"`
	AmountMax    string     `form:"amount_max"`
	Search       string     `form:"search"`
}

type PaymentSummary struct {
	Count           int64           `json:"count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CompletedAmount decimal.Decimal `json:"completed_amount"`
	RefundedAmount  decimal.Decimal `json:"refunded_amount"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
}

type ListPaymentResponse struct {
	Payments   []Payment           `json:"payments"`
	Pagination pagination.PageInfo `json:"pagination"`
	Summary    PaymentSummary      `json:"summary"`
}

// StatusChange is the outcome of a status update including the cascade.
type StatusChange struct {
	Payment          Payment  `json:"payment"`
	AffectedInvoices []string `json:"affected_invoices"`
}

type Service interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error)
	GetByID(ctx context.Context, id string) (Payment, error)
	List(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
	UpdatePaymentStatus(ctx context.Context, id string, req UpdateStatusRequest) (StatusChange, error)
	GeneratePaymentForInvoice(ctx context.Context, invoiceID string) (Payment, error)
}

// Repository holds the aggregate reads the generic store cannot express.
type Repository interface {
	Summarize(ctx context.Context, db *gorm.DB, filters ...option.QueryOption) (PaymentSummary, error)
}

var (
	ErrPaymentNotFound          = errs.NotFound("payment_not_found")
	ErrInvalidPaymentID         = errs.ValidationField("id", "invalid_payment_id")
	ErrInvalidAdvertiser        = errs.ValidationField("advertiser_id", "invalid_advertiser_id")
	ErrInvalidAmount            = errs.ValidationField("amount", "invalid_amount")
	ErrInvalidMethod            = errs.ValidationField("method", "invalid_payment_method")
	ErrInvalidStatus            = errs.ValidationField("status", "invalid_payment_status")
	ErrInvalidRange             = errs.Validation("invalid_range")
	ErrInvalidPaymentTransition = errs.InvariantViolation("invalid_payment_transition")
	ErrAdvertiserNotFound       = errs.NotFound("advertiser_not_found")
	ErrReopenConflict           = errs.Conflict("invoice_reopen_conflict")
)
