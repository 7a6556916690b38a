package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the file-level billing defaults. Rows in system_configs
// override these values at read time.
type BillingConfig struct {
	TaxRate               float64  `mapstructure:"taxRate"`
	BaseImpressionRate    float64  `mapstructure:"baseImpressionRate"`
	DefaultCommissionRate float64  `mapstructure:"defaultCommissionRate"`
	InvoiceNumberPrefix   string   `mapstructure:"invoiceNumberPrefix"`
	InvoiceNumberWidth    int      `mapstructure:"invoiceNumberWidth"`
	DefaultPaymentMethod  string   `mapstructure:"defaultPaymentMethod"`
	DefaultDueDays        int      `mapstructure:"defaultDueDays"`
	ReportGranularities   []string `mapstructure:"reportGranularities"`
	TrendFallbackDays     int      `mapstructure:"trendFallbackDays"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TaxRate:               0.16,
		BaseImpressionRate:    0.001,
		DefaultCommissionRate: 0.30,
		InvoiceNumberPrefix:   "INV-",
		InvoiceNumberWidth:    6,
		DefaultPaymentMethod:  "OTHER",
		DefaultDueDays:        30,
		ReportGranularities:   []string{"day", "week", "month", "quarter", "year"},
		TrendFallbackDays:     30,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config. Used by tests and tools
// that do not watch a file.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/adbilling/config") // Volume-mounted config
	v.AddConfigPath("/etc/adbilling")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("ADBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.taxRate", defaults.TaxRate)
	v.SetDefault("billing.baseImpressionRate", defaults.BaseImpressionRate)
	v.SetDefault("billing.defaultCommissionRate", defaults.DefaultCommissionRate)
	v.SetDefault("billing.invoiceNumberPrefix", defaults.InvoiceNumberPrefix)
	v.SetDefault("billing.invoiceNumberWidth", defaults.InvoiceNumberWidth)
	v.SetDefault("billing.defaultPaymentMethod", defaults.DefaultPaymentMethod)
	v.SetDefault("billing.defaultDueDays", defaults.DefaultDueDays)
	v.SetDefault("billing.reportGranularities", defaults.ReportGranularities)
	v.SetDefault("billing.trendFallbackDays", defaults.TrendFallbackDays)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if !fileLoaded {
		log.Info("billing config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := ValidateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func ValidateBillingConfig(cfg BillingConfig) error {
	if cfg.TaxRate < 0 {
		return errors.New("billing.taxRate cannot be negative")
	}
	if cfg.BaseImpressionRate < 0 {
		return errors.New("billing.baseImpressionRate cannot be negative")
	}
	if cfg.DefaultCommissionRate < 0 || cfg.DefaultCommissionRate > 1 {
		return errors.New("billing.defaultCommissionRate must be within [0,1]")
	}
	if cfg.InvoiceNumberWidth < 1 || cfg.InvoiceNumberWidth > 18 {
		return fmt.Errorf("billing.invoiceNumberWidth out of range: %d", cfg.InvoiceNumberWidth)
	}
	if cfg.DefaultDueDays < 0 {
		return errors.New("billing.defaultDueDays cannot be negative")
	}
	if len(cfg.ReportGranularities) == 0 {
		return errors.New("billing.reportGranularities cannot be empty")
	}
	if cfg.TrendFallbackDays <= 0 {
		return errors.New("billing.trendFallbackDays must be positive")
	}
	return nil
}
