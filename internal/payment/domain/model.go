// Package domain contains persistence models for advertiser payments.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// PaymentMethod is the rail a payment moved over. Gateways are not called;
// the method is recorded for reporting only.
type PaymentMethod string

const (
	PaymentMethodVisa         PaymentMethod = "VISA"
	PaymentMethodMastercard   PaymentMethod = "MASTERCARD"
	PaymentMethodAmex         PaymentMethod = "AMEX"
	PaymentMethodMpesa        PaymentMethod = "MPESA"
	PaymentMethodAirtelMoney  PaymentMethod = "AIRTEL_MONEY"
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodWire         PaymentMethod = "WIRE"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodVisa,
	PaymentMethodMastercard,
	PaymentMethodAmex,
	PaymentMethodMpesa,
	PaymentMethodAirtelMoney,
	PaymentMethodMobileMoney,
	PaymentMethodBankTransfer,
	PaymentMethodWire,
	PaymentMethodOther,
}

// PaymentMethods returns every supported rail in display order.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(paymentMethods))
	copy(out, paymentMethods)
	return out
}

func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	candidate := PaymentMethod(strings.ToUpper(strings.TrimSpace(value)))
	for _, m := range paymentMethods {
		if m == candidate {
			return m, true
		}
	}
	return "", false
}

func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	switch status := PaymentStatus(strings.ToUpper(strings.TrimSpace(value))); status {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return status, true
	default:
		return "", false
	}
}

// Payment is a recorded money movement from an advertiser. Linked invoices
// are the invoices whose payment_id points here.
type Payment struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	AdvertiserID         snowflake.ID    `gorm:"not null;index" json:"advertiser_id"`
	Amount               decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Method               PaymentMethod   `gorm:"type:text;not null" json:"method"`
	Status               PaymentStatus   `gorm:"type:text;not null;index" json:"status"`
	InitiatedAt          time.Time       `gorm:"not null" json:"initiated_at"`
	CompletedAt          *time.Time      `gorm:"index" json:"completed_at,omitempty"`
	RefundedAt           *time.Time      `json:"refunded_at,omitempty"`
	TransactionReference string          `gorm:"type:text;index" json:"transaction_reference"`
	Notes                string          `gorm:"type:text" json:"notes"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
