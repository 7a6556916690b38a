package domain

import (
	"time"

	"github.com/shopspring/decimal"
	usagedomain "github.com/smallbiznis/adbilling/internal/usage/domain"
)

const DefaultFallbackDays = 30

var hundred = decimal.NewFromInt(100)

// Trend compares one metric across two equal-length windows.
type Trend struct {
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`
	Change   decimal.Decimal `json:"change_percent"`
}

// PreviousWindow returns the equal-length window immediately before
// [start, end). Inputs that do not form a valid window fall back to the
// fallbackDays ending at start.
func PreviousWindow(start, end time.Time, fallbackDays int) (time.Time, time.Time) {
	if fallbackDays <= 0 {
		fallbackDays = DefaultFallbackDays
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return start.AddDate(0, 0, -fallbackDays), start
	}
	return start.Add(-end.Sub(start)), start
}

// PercentChange is (current-previous)/|previous|×100 rounded to two places.
// With no previous value, growth is 100, decline is -100 and no change is 0.
func PercentChange(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		switch current.Sign() {
		case 1:
			return hundred
		case -1:
			return hundred.Neg()
		default:
			return decimal.Zero
		}
	}
	return current.Sub(previous).Div(previous.Abs()).Mul(hundred).Round(2)
}

func NewTrend(current, previous decimal.Decimal) Trend {
	return Trend{Current: current, Previous: previous, Change: PercentChange(current, previous)}
}

// Compare trends each usage metric.
func Compare(current, previous usagedomain.Totals) map[string]Trend {
	return map[string]Trend{
		"impressions": NewTrend(decimal.NewFromInt(current.Impressions), decimal.NewFromInt(previous.Impressions)),
		"engagements": NewTrend(decimal.NewFromInt(current.Engagements), decimal.NewFromInt(previous.Engagements)),
		"completions": NewTrend(decimal.NewFromInt(current.Completions), decimal.NewFromInt(previous.Completions)),
	}
}
