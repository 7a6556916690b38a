package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
	usagedomain "github.com/smallbiznis/adbilling/internal/usage/domain"
	"gorm.io/gorm"
)

const effectiveTime = "COALESCE(actual_delivery_time, scheduled_time)"

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

type deviceTotals struct {
	DeviceID    snowflake.ID
	Impressions int64
	Engagements int64
	Completions int64
}

func (r *repo) deliveries(ctx context.Context, db *gorm.DB, filter usagedomain.DeliveryFilter) *gorm.DB {
	stmt := db.WithContext(ctx).
		Model(&catalogdomain.AdDelivery{}).
		Where("device_id IN ?", filter.DeviceIDs).
		Where(effectiveTime+" >= ?", filter.Window.Start.UTC()).
		Where(effectiveTime+" < ?", filter.Window.End.UTC())
	if len(filter.CampaignIDs) > 0 {
		stmt = stmt.Where("campaign_id IN ?", filter.CampaignIDs)
	}
	if filter.DeliveredOnly {
		stmt = stmt.Where("status = ?", catalogdomain.DeliveryStatusDelivered)
	}
	return stmt
}

func (r *repo) SumDeliveries(ctx context.Context, db *gorm.DB, filter usagedomain.DeliveryFilter) (usagedomain.Totals, error) {
	var totals usagedomain.Totals
	err := r.deliveries(ctx, db, filter).
		Select(`COALESCE(SUM(impressions), 0) AS impressions,
			COALESCE(SUM(engagements), 0) AS engagements,
			COALESCE(SUM(completions), 0) AS completions`).
		Scan(&totals).Error
	return totals, err
}

func (r *repo) SumDeliveriesByDevice(ctx context.Context, db *gorm.DB, filter usagedomain.DeliveryFilter) (map[snowflake.ID]usagedomain.Totals, error) {
	var rows []deviceTotals
	err := r.deliveries(ctx, db, filter).
		Select(`device_id,
			COALESCE(SUM(impressions), 0) AS impressions,
			COALESCE(SUM(engagements), 0) AS engagements,
			COALESCE(SUM(completions), 0) AS completions`).
		Group("device_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMap(rows), nil
}

func (r *repo) analytics(ctx context.Context, db *gorm.DB, deviceIDs []snowflake.ID, window usagedomain.Window) *gorm.DB {
	return db.WithContext(ctx).
		Model(&catalogdomain.DeviceAnalytics{}).
		Where("device_id IN ?", deviceIDs).
		Where("date >= ?", window.Start.UTC()).
		Where("date < ?", window.End.UTC())
}

// SumAnalytics reads rollups, which do not report completions.
func (r *repo) SumAnalytics(ctx context.Context, db *gorm.DB, deviceIDs []snowflake.ID, window usagedomain.Window) (usagedomain.Totals, error) {
	var totals usagedomain.Totals
	err := r.analytics(ctx, db, deviceIDs, window).
		Select(`COALESCE(SUM(impressions_served), 0) AS impressions,
			COALESCE(SUM(engagements_count), 0) AS engagements`).
		Scan(&totals).Error
	return totals, err
}

func (r *repo) SumAnalyticsByDevice(ctx context.Context, db *gorm.DB, deviceIDs []snowflake.ID, window usagedomain.Window) (map[snowflake.ID]usagedomain.Totals, error) {
	var rows []deviceTotals
	err := r.analytics(ctx, db, deviceIDs, window).
		Select(`device_id,
			COALESCE(SUM(impressions_served), 0) AS impressions,
			COALESCE(SUM(engagements_count), 0) AS engagements`).
		Group("device_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMap(rows), nil
}

func toMap(rows []deviceTotals) map[snowflake.ID]usagedomain.Totals {
	out := make(map[snowflake.ID]usagedomain.Totals, len(rows))
	for _, row := range rows {
		out[row.DeviceID] = usagedomain.Totals{
			Impressions: row.Impressions,
			Engagements: row.Engagements,
			Completions: row.Completions,
		}
	}
	return out
}
