package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateBillingConfig(DefaultBillingConfig()))
}

func TestValidateBillingConfigRejectsCommissionOutOfRange(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.DefaultCommissionRate = 1.5
	assert.Error(t, ValidateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.TaxRate = -0.1
	assert.Error(t, ValidateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.ReportGranularities = nil
	assert.Error(t, ValidateBillingConfig(cfg))
}

func TestNewBillingConfigHolderFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewBillingConfigHolder(zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, 0.16, got.TaxRate)
	assert.Equal(t, "INV-", got.InvoiceNumberPrefix)
	assert.Equal(t, 6, got.InvoiceNumberWidth)
}
