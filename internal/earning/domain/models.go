// Package domain contains the partner revenue-share ledger.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "PENDING"
	EarningStatusProcessed EarningStatus = "PROCESSED"
	EarningStatusPaid      EarningStatus = "PAID"
	EarningStatusCancelled EarningStatus = "CANCELLED"
)

func ParseEarningStatus(value string) (EarningStatus, bool) {
	switch status := EarningStatus(strings.ToUpper(strings.TrimSpace(value))); status {
	case EarningStatusPending, EarningStatusProcessed, EarningStatusPaid, EarningStatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// PartnerEarning is the revenue share owed to a partner for [PeriodStart, PeriodEnd).
// There is at most one row per (PartnerID, PeriodStart, PeriodEnd).
type PartnerEarning struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	PartnerID            snowflake.ID    `gorm:"not null;uniqueIndex:ux_partner_earnings_period,priority:1" json:"partner_id"`
	PeriodStart          time.Time       `gorm:"not null;uniqueIndex:ux_partner_earnings_period,priority:2" json:"period_start"`
	PeriodEnd            time.Time       `gorm:"not null;uniqueIndex:ux_partner_earnings_period,priority:3" json:"period_end"`
	TotalImpressions     int64           `gorm:"not null;default:0" json:"total_impressions"`
	TotalEngagements     int64           `gorm:"not null;default:0" json:"total_engagements"`
	TotalCompletions     int64           `gorm:"not null;default:0" json:"total_completions"`
	CommissionRate       decimal.Decimal `gorm:"type:numeric(9,6);not null" json:"commission_rate"`
	Amount               decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Status               EarningStatus   `gorm:"type:text;not null;index" json:"status"`
	PaidDate             *time.Time      `json:"paid_date,omitempty"`
	TransactionReference *string         `gorm:"type:text" json:"transaction_reference,omitempty"`
	PayoutMethod         *string         `gorm:"type:text" json:"payout_method,omitempty"`
	Notes                string          `gorm:"type:text" json:"notes"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
}

func (PartnerEarning) TableName() string { return "partner_earnings" }

// ComputeAmount is impressions x baseRate x commission, rounded to cents.
func ComputeAmount(impressions int64, baseRate, commission decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(impressions).Mul(baseRate).Mul(commission).Round(2)
}
