package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"gorm.io/gorm"
)

type AggregateRequest struct {
	DeviceIDs     []snowflake.ID
	CampaignIDs   []snowflake.ID
	Window        Window
	DeliveredOnly bool
	// Prior is an optional third source, such as the earnings snapshot of an
	// earlier period when computing a renewal period.
	Prior *Totals
}

// Service reads usage; it never writes, so aggregation can be re-run freely.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Aggregate(ctx context.Context, req AggregateRequest) (Totals, error)
	AggregateByDevice(ctx context.Context, req AggregateRequest) ([]UsageRecord, error)
}

type Repository interface {
	SumDeliveries(ctx context.Context, db *gorm.DB, filter DeliveryFilter) (Totals, error)
	SumAnalytics(ctx context.Context, db *gorm.DB, deviceIDs []snowflake.ID, window Window) (Totals, error)
	SumDeliveriesByDevice(ctx context.Context, db *gorm.DB, filter DeliveryFilter) (map[snowflake.ID]Totals, error)
	SumAnalyticsByDevice(ctx context.Context, db *gorm.DB, deviceIDs []snowflake.ID, window Window) (map[snowflake.ID]Totals, error)
}

var ErrInvalidWindow = errs.Validation("invalid_window").WithMessage("window start must be before end")
