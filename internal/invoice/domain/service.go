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

type GenerateRequest struct {
	CampaignIDs []string         `json:"campaign_ids" validate:"required,min=1,dive,required"`
	DueDate     *time.Time       `json:"due_date"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
}

type SkipReason string

const (
	SkipCampaignNotFound SkipReason = "campaign_not_found"
	SkipOpenInvoice      SkipReason = "open_invoice"
	SkipNoBillableAmount SkipReason = "no_billable_amount"
	SkipFailed           SkipReason = "failed"
)

type SkippedCampaign struct {
	CampaignID string     `json:"campaign_id"`
	Reason     SkipReason `json:"reason"`
}

// GenerateResult keeps generated invoices in input order. Skipped lists the
// campaigns left untouched, including per-campaign failures.
type GenerateResult struct {
	Invoices []Invoice         `json:"invoices"`
	Skipped  []SkippedCampaign `json:"skipped"`
}

type LineItemInput struct {
	Description string           `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Amount      *decimal.Decimal `json:"amount"`
}

type CreateInvoiceRequest struct {
	AdvertiserID string           `json:"advertiser_id" validate:"required"`
	CampaignID   *string          `json:"campaign_id"`
	LineItems    []LineItemInput  `json:"line_items" validate:"required,min=1,dive"`
	DueDate      *time.Time       `json:"due_date"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Notes        string           `json:"notes" validate:"max=2000"`
}

type InvoiceAction string

const (
	ActionUpdateStatus  InvoiceAction = "update_status"
	ActionLinkPayment   InvoiceAction = "link_payment"
	ActionCancel        InvoiceAction = "cancel"
	ActionRecordPayment InvoiceAction = "record_payment"
)

type ActionRequest struct {
	Action    string `json:"action" validate:"required"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status       string     `form:"status"`
	AdvertiserID string     `form:"advertiser_id"`
	CampaignID   string     `form:"campaign_id"`
	CreatedFrom  *time.Time `form:"created_from" time_format:"2006-01-02"`
	CreatedTo    *time.Time `form:"created_to" time_format:"2006-01-02"`
	DueFrom      *time.Time `form:"due_from" time_format:"2006-01-02"`
	DueTo        *time.Time `form:"due_to" time_format:"2006-01-02"`
	TotalMin     string     `form:"total_min"`
	TotalMax     string     `form:"total_max"`
	Search       string     `form:"search"`
}

type InvoiceSummary struct {
	Count             int64           `json:"count"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	OverdueCount      int64           `json:"overdue_count"`
}

type ListInvoiceResponse struct {
	Invoices   []Invoice           `json:"invoices"`
	Pagination pagination.PageInfo `json:"pagination"`
	Summary    InvoiceSummary      `json:"summary"`
}

type Service interface {
	GenerateInvoices(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	UpdateStatus(ctx context.Context, id string, status string) (Invoice, error)
	LinkPayment(ctx context.Context, invoiceID string, paymentID string) (Invoice, error)
	Cancel(ctx context.Context, id string) (Invoice, error)
	ApplyAction(ctx context.Context, id string, req ActionRequest) (Invoice, error)
	RenderPDF(ctx context.Context, id string) ([]byte, Invoice, error)
}

// Repository holds the aggregate reads the generic store cannot express.
// now decides which UNPAID invoices count as overdue.
type Repository interface {
	Summarize(ctx context.Context, db *gorm.DB, now time.Time, filters ...option.QueryOption) (InvoiceSummary, error)
}

var (
	ErrInvoiceNotFound       = errs.NotFound("invoice_not_found")
	ErrCampaignNotFound      = errs.NotFound("campaign_not_found")
	ErrAdvertiserNotFound    = errs.NotFound("advertiser_not_found")
	ErrInvalidInvoiceID      = errs.ValidationField("id", "invalid_invoice_id")
	ErrInvalidAdvertiser     = errs.ValidationField("advertiser_id", "invalid_advertiser_id")
	ErrInvalidCampaign       = errs.ValidationField("campaign_id", "invalid_campaign_id")
	ErrInvalidStatus         = errs.ValidationField("status", "invalid_invoice_status")
	ErrInvalidAction         = errs.ValidationField("action", "invalid_invoice_action")
	ErrInvalidLineItems      = errs.ValidationField("line_items", "invalid_line_items")
	ErrInvalidTaxRate        = errs.ValidationField("tax_rate", "invalid_tax_rate")
	ErrInvalidDueDate        = errs.ValidationField("due_date", "invalid_due_date")
	ErrInvalidRange          = errs.Validation("invalid_range")
	ErrPaymentRequired       = errs.ValidationField("payment_id", "payment_id_required")
	ErrAdvertiserMismatch    = errs.ValidationField("payment_id", "payment_advertiser_mismatch")
	ErrPaymentRefunded       = errs.ValidationField("payment_id", "payment_refunded")
	ErrInvoiceCancelled      = errs.InvariantViolation("invoice_cancelled")
	ErrInvoiceAlreadyPaid    = errs.InvariantViolation("invoice_already_paid")
	ErrOpenInvoiceExists     = errs.Conflict("campaign_has_open_invoice")
	ErrInvoiceNumberConflict = errs.Conflict("invoice_number_conflict")
)
