// Package domain defines usage totals and the reconciliation rule shared by
// invoicing and partner earnings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Window is the half-open range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || !w.Start.Before(w.End) {
		return ErrInvalidWindow
	}
	return nil
}

func (w Window) UTC() Window {
	return Window{Start: w.Start.UTC(), End: w.End.UTC()}
}

type Totals struct {
	Impressions int64 `json:"impressions"`
	Engagements int64 `json:"engagements"`
	Completions int64 `json:"completions"`
}

func (t Totals) IsZero() bool {
	return t.Impressions == 0 && t.Engagements == 0 && t.Completions == 0
}

// Reconcile takes, per metric, the highest value reported by any source.
// Sources come from pipelines with different latency and none is
// authoritative; undercounting revenue is the costlier mistake.
func Reconcile(sources ...Totals) Totals {
	var out Totals
	for _, s := range sources {
		out.Impressions = max(out.Impressions, s.Impressions)
		out.Engagements = max(out.Engagements, s.Engagements)
		out.Completions = max(out.Completions, s.Completions)
	}
	return out
}

// UsageRecord is the reconciled usage of one device over a window.
type UsageRecord struct {
	DeviceID    snowflake.ID `json:"device_id"`
	WindowStart time.Time    `json:"window_start"`
	WindowEnd   time.Time    `json:"window_end"`
	Impressions int64        `json:"impressions"`
	Engagements int64        `json:"engagements"`
	Completions int64        `json:"completions"`
}

func (r UsageRecord) Totals() Totals {
	return Totals{Impressions: r.Impressions, Engagements: r.Engagements, Completions: r.Completions}
}

// DeliveryFilter selects ad deliveries by effective time, which is the
// actual delivery time when known and the scheduled time otherwise.
type DeliveryFilter struct {
	DeviceIDs     []snowflake.ID
	CampaignIDs   []snowflake.ID
	Window        Window
	DeliveredOnly bool
}
