package format

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	got, err := FormatInvoiceNumber("INV-", 6, 1)
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", got)

	got, err = FormatInvoiceNumber("INV-", 3, 12345)
	require.NoError(t, err)
	assert.Equal(t, "INV-12345", got)

	_, err = FormatInvoiceNumber("INV-", 6, 0)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("INV ", 6, 1)
	assert.Error(t, err)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "1,234,567.89", Money(decimal.RequireFromString("1234567.891")))
	assert.Equal(t, "100.00", Money(decimal.NewFromInt(100)))
	assert.Equal(t, "-1,000.50", Money(decimal.RequireFromString("-1000.5")))
	assert.Equal(t, "0.01", Money(decimal.RequireFromString("0.005")))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "16%", Percent(decimal.RequireFromString("0.16")))
	assert.Equal(t, "7.5%", Percent(decimal.RequireFromString("0.075")))
}
