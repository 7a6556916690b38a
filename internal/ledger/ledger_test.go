package ledger

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/pkg/db"
	"github.com/stretchr/testify/require"
)

func newInvoice(id snowflake.ID, number string, campaignID snowflake.ID, status invoicedomain.InvoiceStatus) *invoicedomain.Invoice {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &invoicedomain.Invoice{
		ID:            id,
		InvoiceNumber: number,
		AdvertiserID:  1,
		CampaignID:    &campaignID,
		Amount:        decimal.NewFromInt(100),
		TaxRate:       decimal.RequireFromString("0.16"),
		TaxAmount:     decimal.NewFromInt(16),
		TotalAmount:   decimal.NewFromInt(116),
		DueDate:       now.AddDate(0, 0, 30),
		Status:        status,
		AmountSource:  invoicedomain.AmountSourceBudget,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOpenCampaignIndexRejectsSecondOpenInvoice(t *testing.T) {
	conn := db.NewTest(t)
	require.NoError(t, AutoMigrate(conn))

	require.NoError(t, conn.Create(newInvoice(1, "INV-000001", 10, invoicedomain.InvoiceStatusUnpaid)).Error)
	err := conn.Create(newInvoice(2, "INV-000002", 10, invoicedomain.InvoiceStatusPartiallyPaid)).Error
	require.Error(t, err)
	require.True(t, db.IsDuplicateKeyErr(err))

	// closed invoices do not count
	require.NoError(t, conn.Create(newInvoice(3, "INV-000003", 10, invoicedomain.InvoiceStatusPaid)).Error)
	require.NoError(t, conn.Create(newInvoice(4, "INV-000004", 10, invoicedomain.InvoiceStatusCancelled)).Error)
}

func TestInvoiceNumberIsUnique(t *testing.T) {
	conn := db.NewTest(t)
	require.NoError(t, AutoMigrate(conn))

	require.NoError(t, conn.Create(newInvoice(1, "INV-000001", 10, invoicedomain.InvoiceStatusUnpaid)).Error)
	err := conn.Create(newInvoice(2, "INV-000001", 11, invoicedomain.InvoiceStatusUnpaid)).Error
	require.True(t, db.IsDuplicateKeyErr(err))
}

func TestEarningPeriodIsUnique(t *testing.T) {
	conn := db.NewTest(t)
	require.NoError(t, AutoMigrate(conn))

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	row := func(id snowflake.ID) *earningdomain.PartnerEarning {
		return &earningdomain.PartnerEarning{
			ID:             id,
			PartnerID:      5,
			PeriodStart:    start,
			PeriodEnd:      end,
			CommissionRate: decimal.RequireFromString("0.3"),
			Amount:         decimal.NewFromInt(15),
			Status:         earningdomain.EarningStatusPending,
			CreatedAt:      start,
			UpdatedAt:      start,
		}
	}
	require.NoError(t, conn.Create(row(1)).Error)
	require.True(t, db.IsDuplicateKeyErr(conn.Create(row(2)).Error))
}
