// Package domain holds the billing settings snapshot and the key/value
// overrides admins can write at runtime.
package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/config"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
)

// SystemConfig is one override row. Keys not present fall back to the
// billing config file.
type SystemConfig struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedBy string    `gorm:"type:text;not null" json:"updated_by"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (SystemConfig) TableName() string { return "system_configs" }

const (
	KeyTaxRate               = "taxRate"
	KeyBaseImpressionRate    = "baseImpressionRate"
	KeyDefaultCommissionRate = "defaultCommissionRate"
	KeyInvoiceNumberPrefix   = "invoiceNumberPrefix"
	KeyInvoiceNumberWidth    = "invoiceNumberWidth"
	KeyDefaultPaymentMethod  = "defaultPaymentMethod"
	KeyDefaultDueDays        = "defaultDueDays"
	KeyReportGranularities   = "reportGranularities"
	KeyTrendFallbackDays     = "trendFallbackDays"
)

// Keys lists every recognised key in display order.
func Keys() []string {
	return []string{
		KeyTaxRate,
		KeyBaseImpressionRate,
		KeyDefaultCommissionRate,
		KeyInvoiceNumberPrefix,
		KeyInvoiceNumberWidth,
		KeyDefaultPaymentMethod,
		KeyDefaultDueDays,
		KeyReportGranularities,
		KeyTrendFallbackDays,
	}
}

var granularities = map[string]struct{}{
	"day": {}, "week": {}, "month": {}, "quarter": {}, "year": {},
}

// Settings is the immutable snapshot handed to billing computations.
type Settings struct {
	TaxRate               decimal.Decimal
	BaseImpressionRate    decimal.Decimal
	DefaultCommissionRate decimal.Decimal
	InvoiceNumberPrefix   string
	InvoiceNumberWidth    int
	DefaultPaymentMethod  paymentdomain.PaymentMethod
	DefaultDueDays        int
	ReportGranularities   []string
	TrendFallbackDays     int
}

func SettingsFromConfig(cfg config.BillingConfig) Settings {
	method, ok := paymentdomain.ParsePaymentMethod(cfg.DefaultPaymentMethod)
	if !ok {
		method = paymentdomain.PaymentMethodOther
	}
	return Settings{
		TaxRate:               decimal.NewFromFloat(cfg.TaxRate),
		BaseImpressionRate:    decimal.NewFromFloat(cfg.BaseImpressionRate),
		DefaultCommissionRate: decimal.NewFromFloat(cfg.DefaultCommissionRate),
		InvoiceNumberPrefix:   cfg.InvoiceNumberPrefix,
		InvoiceNumberWidth:    cfg.InvoiceNumberWidth,
		DefaultPaymentMethod:  method,
		DefaultDueDays:        cfg.DefaultDueDays,
		ReportGranularities:   append([]string(nil), cfg.ReportGranularities...),
		TrendFallbackDays:     cfg.TrendFallbackDays,
	}
}

// Apply parses value for key and sets it on s.
func (s *Settings) Apply(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyTaxRate:
		d, err := parseRate(value, false)
		if err != nil {
			return err
		}
		s.TaxRate = d
	case KeyBaseImpressionRate:
		d, err := parseRate(value, false)
		if err != nil {
			return err
		}
		s.BaseImpressionRate = d
	case KeyDefaultCommissionRate:
		d, err := parseRate(value, true)
		if err != nil {
			return err
		}
		s.DefaultCommissionRate = d
	case KeyInvoiceNumberPrefix:
		if value == "" || len(value) > 16 {
			return ErrInvalidValue.WithMessage("invoice number prefix must be 1-16 characters")
		}
		s.InvoiceNumberPrefix = value
	case KeyInvoiceNumberWidth:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 18 {
			return ErrInvalidValue.WithMessage("invoice number width must be within [1,18]")
		}
		s.InvoiceNumberWidth = n
	case KeyDefaultPaymentMethod:
		method, ok := paymentdomain.ParsePaymentMethod(value)
		if !ok {
			return ErrInvalidValue.WithMessage("unknown payment method %q", value)
		}
		s.DefaultPaymentMethod = method
	case KeyDefaultDueDays:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return ErrInvalidValue.WithMessage("due days must be a non-negative integer")
		}
		s.DefaultDueDays = n
	case KeyReportGranularities:
		list, err := parseGranularities(value)
		if err != nil {
			return err
		}
		s.ReportGranularities = list
	case KeyTrendFallbackDays:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return ErrInvalidValue.WithMessage("trend fallback days must be positive")
		}
		s.TrendFallbackDays = n
	default:
		return ErrUnknownKey.WithMessage("unknown config key %q", key)
	}
	return nil
}

// Value renders the current value of key in the form Apply accepts.
func (s Settings) Value(key string) string {
	switch key {
	case KeyTaxRate:
		return s.TaxRate.String()
	case KeyBaseImpressionRate:
		return s.BaseImpressionRate.String()
	case KeyDefaultCommissionRate:
		return s.DefaultCommissionRate.String()
	case KeyInvoiceNumberPrefix:
		return s.InvoiceNumberPrefix
	case KeyInvoiceNumberWidth:
		return strconv.Itoa(s.InvoiceNumberWidth)
	case KeyDefaultPaymentMethod:
		return string(s.DefaultPaymentMethod)
	case KeyDefaultDueDays:
		return strconv.Itoa(s.DefaultDueDays)
	case KeyReportGranularities:
		return strings.Join(s.ReportGranularities, ",")
	case KeyTrendFallbackDays:
		return strconv.Itoa(s.TrendFallbackDays)
	default:
		return ""
	}
}

// AllowsGranularity reports whether reports may bucket by g.
func (s Settings) AllowsGranularity(g string) bool {
	for _, allowed := range s.ReportGranularities {
		if allowed == g {
			return true
		}
	}
	return false
}

func parseRate(value string, fraction bool) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, ErrInvalidValue.WithMessage("%q is not a decimal", value)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidValue.WithMessage("rate cannot be negative")
	}
	if fraction && d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrInvalidValue.WithMessage("rate must be within [0,1]")
	}
	return d, nil
}

func parseGranularities(value string) ([]string, error) {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(value, ",") {
		g := strings.ToLower(strings.TrimSpace(part))
		if g == "" {
			continue
		}
		if _, ok := granularities[g]; !ok {
			return nil, ErrInvalidValue.WithMessage("unknown granularity %q", g)
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil, ErrInvalidValue.WithMessage("at least one granularity is required")
	}
	return out, nil
}
