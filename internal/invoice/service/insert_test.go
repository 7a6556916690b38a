package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func (f fixture) impl(t *testing.T) *Service {
	t.Helper()
	impl, ok := f.svc.(*Service)
	require.True(t, ok)
	return impl
}

func newDraft(f fixture, advertiserID snowflake.ID) *invoicedomain.Invoice {
	amount := decimal.RequireFromString("100.00")
	tax, total := invoicedomain.ComputeTotals(amount, decimal.Zero)
	return &invoicedomain.Invoice{
		ID:           f.Node.Generate(),
		AdvertiserID: advertiserID,
		LineItems: []invoicedomain.LineItem{{
			Description: "Advertising services",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   amount,
			Amount:      amount,
		}},
		Amount:       amount,
		TaxAmount:    tax,
		TotalAmount:  total,
		DueDate:      epoch.AddDate(0, 0, 30),
		Status:       invoicedomain.InvoiceStatusUnpaid,
		AmountSource: invoicedomain.AmountSourceManual,
		CreatedAt:    epoch,
		UpdatedAt:    epoch,
	}
}

func TestNextSequence(t *testing.T) {
	cases := []struct {
		name             string
		count, lastTried int64
		want             int64
	}{
		{name: "first attempt", count: 41, want: 42},
		{name: "concurrent writer took the number", count: 42, lastTried: 42, want: 43},
		{name: "two writers took numbers", count: 44, lastTried: 42, want: 45},
		{name: "count did not move", count: 41, lastTried: 42, want: 43},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nextSequence(tc.count, tc.lastTried))
		})
	}
}

func TestGenerateInvoicesStepsPastTakenNumber(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	// One invoice exists, but it already holds the number the count points at.
	f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, InvoiceNumber: "INV-000002", Status: invoicedomain.InvoiceStatusPaid})
	campaign := f.Campaign(advertiser.ID, "750")

	result, err := f.svc.GenerateInvoices(context.Background(), invoicedomain.GenerateRequest{
		CampaignIDs: []string{campaign.ID.String()},
	})
	require.NoError(t, err)
	require.Empty(t, result.Skipped)
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, "INV-000003", result.Invoices[0].InvoiceNumber)
}

func TestInsertInvoiceOpenCampaignCollisionIsSkip(t *testing.T) {
	f := newFixture(t)
	svc := f.impl(t)
	ctx := context.Background()
	advertiser := f.Advertiser("Acme")
	campaign := f.Campaign(advertiser.ID, "300")
	f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, CampaignID: &campaign.ID})
	settings, err := svc.settings.Snapshot(ctx)
	require.NoError(t, err)

	// prepare skips the guard, as a writer that lost the race would have.
	_, err = svc.insertInvoice(ctx, &campaign.ID, settings, func(tx *gorm.DB) (*invoicedomain.Invoice, error) {
		draft := newDraft(f, advertiser.ID)
		draft.CampaignID = &campaign.ID
		return draft, nil
	})
	require.ErrorIs(t, err, invoicedomain.ErrOpenInvoiceExists)
	assert.Equal(t, invoicedomain.SkipOpenInvoice, skipReason(err))

	var open int64
	require.NoError(t, f.DB.Model(&invoicedomain.Invoice{}).Where("campaign_id = ?", campaign.ID).Count(&open).Error)
	assert.EqualValues(t, 1, open)
}

func TestInsertInvoiceGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	svc := f.impl(t)
	ctx := context.Background()
	advertiser := f.Advertiser("Acme")
	taken := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID})
	settings, err := svc.settings.Snapshot(ctx)
	require.NoError(t, err)

	attempts := 0
	_, err = svc.insertInvoice(ctx, nil, settings, func(tx *gorm.DB) (*invoicedomain.Invoice, error) {
		attempts++
		draft := newDraft(f, advertiser.ID)
		draft.ID = taken.ID
		return draft, nil
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNumberConflict)
	assert.Equal(t, maxNumberAttempts, attempts)
	assert.Equal(t, invoicedomain.SkipFailed, skipReason(err))
}
