package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	usagedomain "github.com/smallbiznis/adbilling/internal/usage/domain"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"github.com/smallbiznis/adbilling/pkg/db/pagination"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"gorm.io/gorm"
)

type GenerateRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

type SkipReason string

const (
	SkipNoDevices     SkipReason = "no_devices"
	SkipNoImpressions SkipReason = "no_impressions"
	SkipFailed        SkipReason = "failed"
)

type SkippedPartner struct {
	PartnerID string     `json:"partner_id"`
	Reason    SkipReason `json:"reason"`
}

type GenerateResult struct {
	Earnings []PartnerEarning `json:"earnings"`
	Skipped  []SkippedPartner `json:"skipped"`
}

type ListEarningRequest struct {
	pagination.Pagination
	Status     string     `form:"status"`
	PartnerID  string     `form:"partner_id"`
	PeriodFrom *time.Time `form:"period_from" time_format:"2006-01-02"`
	PeriodTo   *time.Time `form:"period_to" time_format:"2006-01-02"`
	AmountMin  string     `form:"amount_min"`
	AmountMax  string     `form:"amount_max"`
	Search     string     `form:"search"`
}

type EarningSummary struct {
	Count           int64           `json:"count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	ProcessedAmount decimal.Decimal `json:"processed_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	CancelledAmount decimal.Decimal `json:"cancelled_amount"`
}

type ListEarningResponse struct {
	Earnings   []PartnerEarning    `json:"payouts"`
	Pagination pagination.PageInfo `json:"pagination"`
	Summary    EarningSummary      `json:"summary"`
}

// PartnerSummary is a partner's reconciled usage over a window next to the
// window immediately before it. Estimated earnings use the current
// commission for both windows.
type PartnerSummary struct {
	PartnerID         string                           `json:"partner_id"`
	PartnerName       string                           `json:"partner_name"`
	WindowStart       time.Time                        `json:"window_start"`
	WindowEnd         time.Time                        `json:"window_end"`
	PreviousStart     time.Time                        `json:"previous_start"`
	PreviousEnd       time.Time                        `json:"previous_end"`
	DeviceCount       int                              `json:"device_count"`
	Devices           []usagedomain.UsageRecord        `json:"devices"`
	Current           usagedomain.Totals               `json:"current"`
	Previous          usagedomain.Totals               `json:"previous"`
	CommissionRate    decimal.Decimal                  `json:"commission_rate"`
	EstimatedEarnings decimal.Decimal                  `json:"estimated_earnings"`
	Trends            map[string]reportingdomain.Trend `json:"trends"`
}

type SummaryRequest struct {
	Start *time.Time `form:"start" time_format:"2006-01-02"`
	End   *time.Time `form:"end" time_format:"2006-01-02"`
}

type Service interface {
	GenerateEarnings(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	GetByID(ctx context.Context, id string) (PartnerEarning, error)
	List(ctx context.Context, req ListEarningRequest) (ListEarningResponse, error)
	PartnerSummary(ctx context.Context, partnerID string, req SummaryRequest) (PartnerSummary, error)
}

// Repository holds the aggregate reads the generic store cannot express.
type Repository interface {
	Summarize(ctx context.Context, db *gorm.DB, filters ...option.QueryOption) (EarningSummary, error)
}

var (
	ErrEarningNotFound       = errs.NotFound("earning_not_found")
	ErrPartnerNotFound       = errs.NotFound("partner_not_found")
	ErrInvalidEarningID      = errs.ValidationField("id", "invalid_earning_id")
	ErrInvalidPartnerID      = errs.ValidationField("partner_id", "invalid_partner_id")
	ErrInvalidPeriod         = errs.Validation("invalid_period")
	ErrInvalidStatus         = errs.ValidationField("status", "invalid_earning_status")
	ErrInvalidRange          = errs.Validation("invalid_range")
	ErrInvalidCommissionRate = errs.ValidationField("commission_rate", "invalid_commission_rate")
)
