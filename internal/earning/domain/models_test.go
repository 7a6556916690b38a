package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeAmount(t *testing.T) {
	amount := ComputeAmount(50000, decimal.RequireFromString("0.001"), decimal.RequireFromString("0.3"))
	require.True(t, amount.Equal(decimal.RequireFromString("15.00")), "got %s", amount)

	amount = ComputeAmount(12345, decimal.RequireFromString("0.001"), decimal.RequireFromString("0.3"))
	require.True(t, amount.Equal(decimal.RequireFromString("3.70")), "got %s", amount)

	require.True(t, ComputeAmount(0, decimal.RequireFromString("0.001"), decimal.NewFromInt(1)).IsZero())
}
