package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/ledger/ledgertest"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"github.com/smallbiznis/adbilling/internal/reporting/repository"
	systemconfigservice "github.com/smallbiznis/adbilling/internal/systemconfig/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, f *ledgertest.Fixtures, cfg config.BillingConfig) reportingdomain.Service {
	t.Helper()
	clk := clock.NewFakeClock(epoch)
	settings := systemconfigservice.NewService(systemconfigservice.Params{
		DB:     f.DB,
		Log:    zap.NewNop(),
		Clock:  clk,
		Holder: config.NewStaticBillingConfigHolder(cfg),
	})
	return NewService(Params{
		DB:       f.DB,
		Log:      zap.NewNop(),
		Clock:    clk,
		Repo:     repository.Provide(),
		Settings: settings,
	})
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func at(month time.Month, day int) time.Time {
	return time.Date(2025, month, day, 12, 0, 0, 0, time.UTC)
}

func TestBuildPaymentMethodShares(t *testing.T) {
	entries := []reportingdomain.Entry{
		{At: at(1, 3), Amount: decimal.RequireFromString("30"), Method: "VISA"},
		{At: at(1, 20), Amount: decimal.RequireFromString("10"), Method: "MPESA"},
		{At: at(2, 2), Amount: decimal.RequireFromString("60"), Method: "VISA"},
	}
	report := Build(reportingdomain.ReportPaymentMethods, reportingdomain.GranularityMonth, entries)

	require.Len(t, report.Rows, 3)
	assert.Equal(t, "2025-01", report.Rows[0].Period)
	assert.Equal(t, "MPESA", report.Rows[0].Method)
	assert.Equal(t, "VISA", report.Rows[1].Method)
	assert.Equal(t, "2025-02", report.Rows[2].Period)
	requireAmount(t, "100", report.TotalAmount)

	require.Len(t, report.Methods, 2)
	assert.Equal(t, "MPESA", report.Methods[0].Method)
	requireAmount(t, "10", report.Methods[0].Percentage)
	requireAmount(t, "90", report.Methods[1].Percentage)

	sum := decimal.Zero
	for _, m := range report.Methods {
		sum = sum.Add(m.Percentage)
	}
	requireAmount(t, "100", sum)
}

func TestBuildZeroTotalHasZeroShares(t *testing.T) {
	entries := []reportingdomain.Entry{
		{At: at(1, 3), Amount: decimal.Zero, Method: "VISA"},
		{At: at(1, 4), Amount: decimal.Zero, Method: "PAYPAL"},
	}
	report := Build(reportingdomain.ReportPaymentMethods, reportingdomain.GranularityDay, entries)
	require.Len(t, report.Methods, 2)
	for _, m := range report.Methods {
		assert.True(t, m.Percentage.IsZero())
	}
}

func TestBuildEmpty(t *testing.T) {
	report := Build(reportingdomain.ReportRevenue, reportingdomain.GranularityWeek, nil)
	assert.Empty(t, report.Rows)
	assert.Nil(t, report.Methods)
	assert.True(t, report.TotalAmount.IsZero())
}

func TestReportRevenueAndPayouts(t *testing.T) {
	f := ledgertest.New(t)
	svc := newService(t, f, config.DefaultBillingConfig())
	advertiser := f.Advertiser("Acme")
	partner := f.Partner("Screens", "0.3")

	for _, p := range []paymentdomain.Payment{
		{AdvertiserID: advertiser.ID, Amount: decimal.RequireFromString("100.25"), Method: paymentdomain.PaymentMethodVisa, Status: paymentdomain.PaymentStatusCompleted, InitiatedAt: at(1, 5)},
		{AdvertiserID: advertiser.ID, Amount: decimal.RequireFromString("50"), Method: paymentdomain.PaymentMethodMpesa, Status: paymentdomain.PaymentStatusCompleted, InitiatedAt: at(1, 28)},
		{AdvertiserID: advertiser.ID, Amount: decimal.RequireFromString("70"), Method: paymentdomain.PaymentMethodVisa, Status: paymentdomain.PaymentStatusCompleted, InitiatedAt: at(3, 2)},
		{AdvertiserID: advertiser.ID, Amount: decimal.RequireFromString("999"), Method: paymentdomain.PaymentMethodVisa, Status: paymentdomain.PaymentStatusPending, InitiatedAt: at(1, 6)},
	} {
		f.Payment(p)
	}

	start, end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	revenue, err := svc.Report(context.Background(), reportingdomain.ReportRequest{
		Type: "revenue", Start: &start, End: &end, Granularity: "month",
	})
	require.NoError(t, err)
	require.Len(t, revenue.Rows, 2)
	assert.Equal(t, "2025-01", revenue.Rows[0].Period)
	requireAmount(t, "150.25", revenue.Rows[0].Amount)
	assert.Equal(t, int64(2), revenue.Rows[0].Count)
	assert.Equal(t, "2025-03", revenue.Rows[1].Period)
	requireAmount(t, "220.25", revenue.TotalAmount)
	assert.True(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC).Equal(revenue.End))

	f.Earning(earningdomain.PartnerEarning{PartnerID: partner.ID, PeriodStart: ledgertest.Date(2025, 1, 1), PeriodEnd: ledgertest.Date(2025, 2, 1), Amount: decimal.RequireFromString("15")})
	f.Earning(earningdomain.PartnerEarning{PartnerID: partner.ID, PeriodStart: ledgertest.Date(2025, 2, 1), PeriodEnd: ledgertest.Date(2025, 3, 1), Amount: decimal.RequireFromString("20"), Status: earningdomain.EarningStatusCancelled})

	payouts, err := svc.Report(context.Background(), reportingdomain.ReportRequest{
		Type: "payouts", Start: &start, End: &end, Granularity: "quarter",
	})
	require.NoError(t, err)
	require.Len(t, payouts.Rows, 1)
	assert.Equal(t, "2025-Q1", payouts.Rows[0].Period)
	requireAmount(t, "15", payouts.Rows[0].Amount)
}

func TestReportInvoicesSkipsCancelled(t *testing.T) {
	f := ledgertest.New(t)
	svc := newService(t, f, config.DefaultBillingConfig())
	advertiser := f.Advertiser("Acme")
	f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(40), CreatedAt: at(3, 10)})
	f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(60), CreatedAt: at(3, 11)})
	f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(80), CreatedAt: at(3, 12), Status: invoicedomain.InvoiceStatusCancelled})

	// defaults to the trailing 30 days ending today
	report, err := svc.Report(context.Background(), reportingdomain.ReportRequest{Type: "invoices", Granularity: "year"})
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	requireAmount(t, "100", report.Rows[0].Amount)
	assert.Equal(t, int64(2), report.TotalCount)
}

func TestReportValidation(t *testing.T) {
	f := ledgertest.New(t)
	cfg := config.DefaultBillingConfig()
	cfg.ReportGranularities = []string{"month"}
	svc := newService(t, f, cfg)
	ctx := context.Background()

	_, err := svc.Report(ctx, reportingdomain.ReportRequest{Type: "churn"})
	assert.ErrorIs(t, err, reportingdomain.ErrInvalidReportType)

	_, err = svc.Report(ctx, reportingdomain.ReportRequest{Type: "revenue", Granularity: "hour"})
	assert.ErrorIs(t, err, reportingdomain.ErrInvalidGranularity)

	_, err = svc.Report(ctx, reportingdomain.ReportRequest{Type: "revenue", Granularity: "day"})
	assert.ErrorIs(t, err, reportingdomain.ErrInvalidGranularity)

	start, end := at(3, 1), at(2, 1)
	_, err = svc.Report(ctx, reportingdomain.ReportRequest{Type: "revenue", Start: &start, End: &end})
	assert.ErrorIs(t, err, reportingdomain.ErrInvalidRange)
}

func TestExport(t *testing.T) {
	f := ledgertest.New(t)
	svc := newService(t, f, config.DefaultBillingConfig())

	doc, name, err := svc.Export(context.Background(), reportingdomain.ReportRequest{Type: "payment-methods"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc)
	assert.Equal(t, "payment-methods-month-2025-03-03-2025-04-02.xlsx", name)
}
