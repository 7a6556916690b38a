// Package domain contains persistence models for advertiser invoicing.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

func ParseInvoiceStatus(value string) (InvoiceStatus, bool) {
	switch status := InvoiceStatus(strings.ToUpper(strings.TrimSpace(value))); status {
	case InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// Open reports whether the status blocks another invoice for the same campaign.
func (s InvoiceStatus) Open() bool {
	return s == InvoiceStatusUnpaid || s == InvoiceStatusPartiallyPaid
}

type AmountSource string

const (
	AmountSourceCostData AmountSource = "cost_data"
	AmountSourceBudget   AmountSource = "budget"
	AmountSourceManual   AmountSource = "manual"
)

type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is an advertiser-facing bill. TotalAmount always equals
// Amount + TaxAmount.
type Invoice struct {
	ID            snowflake.ID                  `gorm:"primaryKey" json:"id"`
	InvoiceNumber string                        `gorm:"type:text;not null;uniqueIndex:ux_invoices_number" json:"invoice_number"`
	AdvertiserID  snowflake.ID                  `gorm:"not null;index" json:"advertiser_id"`
	CampaignID    *snowflake.ID                 `gorm:"index" json:"campaign_id,omitempty"`
	LineItems     datatypes.JSONSlice[LineItem] `json:"line_items"`
	Amount        decimal.Decimal               `gorm:"type:numeric(18,2);not null" json:"amount"`
	TaxRate       decimal.Decimal               `gorm:"type:numeric(9,6);not null" json:"tax_rate"`
	TaxAmount     decimal.Decimal               `gorm:"type:numeric(18,2);not null" json:"tax_amount"`
	TotalAmount   decimal.Decimal               `gorm:"type:numeric(18,2);not null" json:"total_amount"`
	DueDate       time.Time                     `gorm:"not null;index" json:"due_date"`
	Status        InvoiceStatus                 `gorm:"type:text;not null;index" json:"status"`
	PaymentID     *snowflake.ID                 `gorm:"index" json:"payment_id,omitempty"`
	AmountSource  AmountSource                  `gorm:"type:text;not null" json:"amount_source"`
	Notes         string                        `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time                     `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time                     `gorm:"not null" json:"updated_at"`
	CancelledAt   *time.Time                    `json:"cancelled_at,omitempty"`
	PaidAt        *time.Time                    `json:"paid_at,omitempty"`

	// DisplayStatus is the read-time projection, OVERDUE when IsOverdue holds.
	DisplayStatus InvoiceStatus `gorm:"-" json:"display_status"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// IsOverdue is true iff the stored status is UNPAID and now is past the due date.
func IsOverdue(inv Invoice, now time.Time) bool {
	return inv.Status == InvoiceStatusUnpaid && now.After(inv.DueDate)
}

// Project fills DisplayStatus for reads.
func (inv *Invoice) Project(now time.Time) {
	if IsOverdue(*inv, now) {
		inv.DisplayStatus = InvoiceStatusOverdue
		return
	}
	inv.DisplayStatus = inv.Status
}

// ComputeTotals returns the rounded tax and total for a pre-tax amount.
func ComputeTotals(amount, taxRate decimal.Decimal) (tax, total decimal.Decimal) {
	amount = amount.Round(2)
	tax = amount.Mul(taxRate).Round(2)
	return tax, amount.Add(tax)
}
