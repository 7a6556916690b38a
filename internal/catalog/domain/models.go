// Package domain holds read models for collaborator records that feed
// billing. Rows are owned by other services; this module only reads them.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Campaign struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	AdvertiserID snowflake.ID      `gorm:"not null;index" json:"advertiser_id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Budget       decimal.Decimal   `gorm:"type:numeric(18,2);not null" json:"budget"`
	CostData     datatypes.JSONMap `gorm:"type:json" json:"cost_data,omitempty"`
	StartDate    *time.Time        `json:"start_date,omitempty"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// Spend reads the optional spend figure from the cost data blob.
func (c Campaign) Spend() (decimal.Decimal, bool) {
	if c.CostData == nil {
		return decimal.Zero, false
	}
	raw, ok := c.CostData["spend"]
	if !ok || raw == nil {
		return decimal.Zero, false
	}
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		d, err := decimal.NewFromString(fmt.Sprint(v))
		return d, err == nil
	}
}

type Advertiser struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyName string       `gorm:"type:text;not null" json:"company_name"`
	Email       string       `gorm:"type:text" json:"email"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (Advertiser) TableName() string { return "advertisers" }

type Partner struct {
	ID             snowflake.ID        `gorm:"primaryKey" json:"id"`
	Name           string              `gorm:"type:text;not null" json:"name"`
	CommissionRate decimal.NullDecimal `gorm:"type:numeric(9,6)" json:"commission_rate"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (Partner) TableName() string { return "partners" }

type Device struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	PartnerID snowflake.ID `gorm:"not null;index" json:"partner_id"`
	Name      string       `gorm:"type:text" json:"name"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Device) TableName() string { return "devices" }

type DeliveryStatus string

const (
	DeliveryStatusScheduled DeliveryStatus = "SCHEDULED"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
	DeliveryStatusSkipped   DeliveryStatus = "SKIPPED"
)

type AdDelivery struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	DeviceID           snowflake.ID   `gorm:"not null;index" json:"device_id"`
	CampaignID         snowflake.ID   `gorm:"not null;index" json:"campaign_id"`
	ScheduledTime      time.Time      `gorm:"not null;index" json:"scheduled_time"`
	ActualDeliveryTime *time.Time     `gorm:"index" json:"actual_delivery_time,omitempty"`
	Impressions        int64          `gorm:"not null;default:0" json:"impressions"`
	Engagements        int64          `gorm:"not null;default:0" json:"engagements"`
	Completions        int64          `gorm:"not null;default:0" json:"completions"`
	Status             DeliveryStatus `gorm:"type:text;not null" json:"status"`
}

func (AdDelivery) TableName() string { return "ad_deliveries" }

// DeviceAnalytics is a periodic rollup produced by the device telemetry pipeline.
type DeviceAnalytics struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	DeviceID          snowflake.ID `gorm:"not null;index:idx_device_analytics_device_date,priority:1" json:"device_id"`
	Date              time.Time    `gorm:"not null;index:idx_device_analytics_device_date,priority:2" json:"date"`
	ImpressionsServed int64        `gorm:"not null;default:0" json:"impressions_served"`
	EngagementsCount  int64        `gorm:"not null;default:0" json:"engagements_count"`
}

func (DeviceAnalytics) TableName() string { return "device_analytics" }
