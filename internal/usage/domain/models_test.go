package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconcileTakesElementWiseMax(t *testing.T) {
	got := Reconcile(
		Totals{Impressions: 100, Engagements: 5, Completions: 9},
		Totals{Impressions: 80, Engagements: 12},
		Totals{Impressions: 90, Engagements: 1, Completions: 2},
	)
	require.Equal(t, Totals{Impressions: 100, Engagements: 12, Completions: 9}, got)
}

func TestReconcileNoSources(t *testing.T) {
	require.True(t, Reconcile().IsZero())
}

func TestWindowValidate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Window{Start: start, End: start.AddDate(0, 1, 0)}.Validate())
	require.ErrorIs(t, Window{Start: start, End: start}.Validate(), ErrInvalidWindow)
	require.ErrorIs(t, Window{Start: start, End: start.Add(-time.Hour)}.Validate(), ErrInvalidWindow)
	require.ErrorIs(t, Window{End: start}.Validate(), ErrInvalidWindow)
}
