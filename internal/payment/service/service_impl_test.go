package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	auditrepo "github.com/smallbiznis/adbilling/internal/audit/repository"
	auditservice "github.com/smallbiznis/adbilling/internal/audit/service"
	catalogrepo "github.com/smallbiznis/adbilling/internal/catalog/repository"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/ledger/ledgertest"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	"github.com/smallbiznis/adbilling/internal/payment/repository"
	systemconfigservice "github.com/smallbiznis/adbilling/internal/systemconfig/service"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	*ledgertest.Fixtures
	clock *clock.FakeClock
	svc   paymentdomain.Service
	audit auditdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := ledgertest.New(t)
	clk := clock.NewFakeClock(epoch)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    f.DB,
		Log:   zap.NewNop(),
		GenID: f.Node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	settings := systemconfigservice.NewService(systemconfigservice.Params{
		DB:     f.DB,
		Log:    zap.NewNop(),
		Clock:  clk,
		Holder: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	svc := NewService(Params{
		DB:          f.DB,
		Log:         zap.NewNop(),
		GenID:       f.Node,
		Clock:       clk,
		Repo:        repository.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Settings:    settings,
		AuditSvc:    auditSvc,
	})
	return fixture{Fixtures: f, clock: clk, svc: svc, audit: auditSvc}
}

func (f fixture) invoice(t *testing.T, id any) invoicedomain.Invoice {
	t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(t, f.DB.First(&inv, "id = ?", id).Error)
	return inv
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	ctx := context.Background()

	_, err := f.svc.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{
		AdvertiserID: advertiser.ID.String(), Amount: decimal.Zero, Method: "VISA",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = f.svc.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{
		AdvertiserID: advertiser.ID.String(), Amount: decimal.NewFromInt(10), Method: "CASH",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidMethod)

	_, err = f.svc.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{
		AdvertiserID: "not-an-id", Amount: decimal.NewFromInt(10), Method: "VISA",
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{
		AdvertiserID: "12345", Amount: decimal.NewFromInt(10), Method: "VISA",
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{
		AdvertiserID: advertiser.ID.String(), Amount: decimal.NewFromInt(10), Method: "VISA", Status: "REFUNDED",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidStatus)
}

func TestCreateCompletedPaymentSettlesInvoices(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	inv := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID})

	payment, err := f.svc.CreatePayment(context.Background(), paymentdomain.CreatePaymentRequest{
		AdvertiserID: advertiser.ID.String(),
		Amount:       decimal.RequireFromString("100.00"),
		Method:       "mpesa",
		Status:       "COMPLETED",
		InvoiceIDs:   []string{inv.ID.String()},
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentMethodMpesa, payment.Method)
	require.NotNil(t, payment.CompletedAt)
	assert.True(t, strings.HasPrefix(payment.TransactionReference, "PAY-"))

	stored := f.invoice(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, payment.ID, *stored.PaymentID)
	assert.NotNil(t, stored.PaidAt)
}

func TestCreatePaymentRejectsForeignInvoice(t *testing.T) {
	f := newFixture(t)
	acme := f.Advertiser("Acme")
	other := f.Advertiser("Other")
	inv := f.Invoice(invoicedomain.Invoice{AdvertiserID: other.ID})

	_, err := f.svc.CreatePayment(context.Background(), paymentdomain.CreatePaymentRequest{
		AdvertiserID: acme.ID.String(),
		Amount:       decimal.NewFromInt(100),
		Method:       "VISA",
		InvoiceIDs:   []string{inv.ID.String()},
	})
	require.ErrorIs(t, err, invoicedomain.ErrAdvertiserMismatch)

	var count int64
	require.NoError(t, f.DB.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.Zero(t, count, "payment insert must roll back with the failed link")
}

func TestCompletingPaymentSettlesLinkedInvoices(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	payment := f.Payment(paymentdomain.Payment{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(300)})
	a := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, PaymentID: &payment.ID})
	b := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, PaymentID: &payment.ID, Status: invoicedomain.InvoiceStatusPartiallyPaid})
	cancelled := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, PaymentID: &payment.ID, Status: invoicedomain.InvoiceStatusCancelled})

	change, err := f.svc.UpdatePaymentStatus(context.Background(), payment.ID.String(), paymentdomain.UpdateStatusRequest{Status: "COMPLETED"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusCompleted, change.Payment.Status)
	require.NotNil(t, change.Payment.CompletedAt)
	assert.ElementsMatch(t, []string{a.ID.String(), b.ID.String()}, change.AffectedInvoices)

	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.invoice(t, a.ID).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.invoice(t, b.ID).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, f.invoice(t, cancelled.ID).Status)
}

func TestRefundReopensLinkedInvoices(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	payment := f.Payment(paymentdomain.Payment{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(200), Status: paymentdomain.PaymentStatusCompleted})
	paidAt := epoch
	paid := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, PaymentID: &payment.ID, Status: invoicedomain.InvoiceStatusPaid, PaidAt: &paidAt})
	cancelled := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, PaymentID: &payment.ID, Status: invoicedomain.InvoiceStatusCancelled})

	change, err := f.svc.UpdatePaymentStatus(context.Background(), payment.ID.String(), paymentdomain.UpdateStatusRequest{Status: "REFUNDED"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusRefunded, change.Payment.Status)
	assert.NotNil(t, change.Payment.RefundedAt)
	assert.Len(t, change.AffectedInvoices, 2)

	reopened := f.invoice(t, paid.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, reopened.Status)
	assert.Nil(t, reopened.PaymentID)
	assert.Nil(t, reopened.PaidAt)

	stillCancelled := f.invoice(t, cancelled.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, stillCancelled.Status)
	assert.Nil(t, stillCancelled.PaymentID)
}

func TestRefundRollsBackWhenReopenConflicts(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	campaign := f.Campaign(advertiser.ID, "500")
	payment := f.Payment(paymentdomain.Payment{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(100), Status: paymentdomain.PaymentStatusCompleted})
	paid := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, CampaignID: &campaign.ID, PaymentID: &payment.ID, Status: invoicedomain.InvoiceStatusPaid})
	f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, CampaignID: &campaign.ID})

	_, err := f.svc.UpdatePaymentStatus(context.Background(), payment.ID.String(), paymentdomain.UpdateStatusRequest{Status: "REFUNDED"})
	require.ErrorIs(t, err, paymentdomain.ErrReopenConflict)

	stored, err := f.svc.GetByID(context.Background(), payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusCompleted, stored.Status)
	assert.Nil(t, stored.RefundedAt)

	invoice := f.invoice(t, paid.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, invoice.Status)
	require.NotNil(t, invoice.PaymentID)
}

func TestUpdatePaymentStatusRejectsIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	refunded := f.Payment(paymentdomain.Payment{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(10), Status: paymentdomain.PaymentStatusRefunded})
	completed := f.Payment(paymentdomain.Payment{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(10), Status: paymentdomain.PaymentStatusCompleted})

	for _, tc := range []struct {
		id string
		to string
	}{
		{refunded.ID.String(), "COMPLETED"},
		{refunded.ID.String(), "PENDING"},
		{completed.ID.String(), "PENDING"},
		{completed.ID.String(), "FAILED"},
	} {
		_, err := f.svc.UpdatePaymentStatus(context.Background(), tc.id, paymentdomain.UpdateStatusRequest{Status: tc.to})
		assert.ErrorIs(t, err, errs.ErrInvariantViolation, "to %s", tc.to)
	}

	_, err := f.svc.UpdatePaymentStatus(context.Background(), "999", paymentdomain.UpdateStatusRequest{Status: "COMPLETED"})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)

	_, err = f.svc.UpdatePaymentStatus(context.Background(), completed.ID.String(), paymentdomain.UpdateStatusRequest{Status: "SETTLED"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidStatus)
}

func TestSameStatusUpdateAppendsNotesOnly(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	payment := f.Payment(paymentdomain.Payment{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(10), Notes: "first"})
	inv := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, PaymentID: &payment.ID})

	note := "called the bank"
	change, err := f.svc.UpdatePaymentStatus(context.Background(), payment.ID.String(), paymentdomain.UpdateStatusRequest{Status: "PENDING", Notes: &note})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPending, change.Payment.Status)
	assert.Equal(t, "first\ncalled the bank", change.Payment.Notes)
	assert.Empty(t, change.AffectedInvoices)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, f.invoice(t, inv.ID).Status)
}

func TestFailedPaymentDoesNotCascade(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	payment := f.Payment(paymentdomain.Payment{AdvertiserID: advertiser.ID, Amount: decimal.NewFromInt(10)})
	inv := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, PaymentID: &payment.ID})

	change, err := f.svc.UpdatePaymentStatus(context.Background(), payment.ID.String(), paymentdomain.UpdateStatusRequest{Status: "FAILED"})
	require.NoError(t, err)
	assert.Empty(t, change.AffectedInvoices)
	stored := f.invoice(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)
	require.NotNil(t, stored.PaymentID)

	change, err = f.svc.UpdatePaymentStatus(context.Background(), payment.ID.String(), paymentdomain.UpdateStatusRequest{Status: "COMPLETED"})
	require.NoError(t, err)
	assert.Equal(t, []string{inv.ID.String()}, change.AffectedInvoices)
}

func TestGeneratePaymentForInvoice(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	inv := f.Invoice(invoicedomain.Invoice{
		AdvertiserID: advertiser.ID,
		Amount:       decimal.RequireFromString("1000"),
		TaxRate:      decimal.RequireFromString("0.16"),
	})

	payment, err := f.svc.GeneratePaymentForInvoice(context.Background(), inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPending, payment.Status)
	assert.Equal(t, paymentdomain.PaymentMethodOther, payment.Method)
	assert.Equal(t, advertiser.ID, payment.AdvertiserID)
	requireAmount(t, "1160.00", payment.Amount)
	assert.True(t, strings.HasPrefix(payment.TransactionReference, "PAY-"))

	stored := f.invoice(t, inv.ID)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, payment.ID, *stored.PaymentID)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)

	logs, err := f.audit.List(context.Background(), auditdomain.ListAuditLogRequest{Action: "payment.generated"})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.NotEqual(t, payment.TransactionReference, logs.AuditLogs[0].Metadata["transaction_reference"])
}

func TestGeneratePaymentForInvoiceGuards(t *testing.T) {
	f := newFixture(t)
	advertiser := f.Advertiser("Acme")
	cancelled := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, Status: invoicedomain.InvoiceStatusCancelled})
	paid := f.Invoice(invoicedomain.Invoice{AdvertiserID: advertiser.ID, Status: invoicedomain.InvoiceStatusPaid})

	_, err := f.svc.GeneratePaymentForInvoice(context.Background(), cancelled.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceCancelled)

	_, err = f.svc.GeneratePaymentForInvoice(context.Background(), paid.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceAlreadyPaid)

	_, err = f.svc.GeneratePaymentForInvoice(context.Background(), "42")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestListFiltersAndSummarizes(t *testing.T) {
	f := newFixture(t)
	acme := f.Advertiser("Acme")
	other := f.Advertiser("Other")
	day := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }

	f.Payment(paymentdomain.Payment{AdvertiserID: acme.ID, Amount: decimal.RequireFromString("100.10"), Status: paymentdomain.PaymentStatusCompleted, Method: paymentdomain.PaymentMethodVisa, InitiatedAt: day(1)})
	f.Payment(paymentdomain.Payment{AdvertiserID: acme.ID, Amount: decimal.RequireFromString("50.20"), Status: paymentdomain.PaymentStatusRefunded, Method: paymentdomain.PaymentMethodVisa, InitiatedAt: day(2)})
	f.Payment(paymentdomain.Payment{AdvertiserID: acme.ID, Amount: decimal.RequireFromString("25"), InitiatedAt: day(3), Notes: "wire from ACME treasury"})
	f.Payment(paymentdomain.Payment{AdvertiserID: other.ID, Amount: decimal.RequireFromString("999"), Status: paymentdomain.PaymentStatusCompleted, InitiatedAt: day(3)})

	ctx := context.Background()
	resp, err := f.svc.List(ctx, paymentdomain.ListPaymentRequest{AdvertiserID: acme.ID.String()})
	require.NoError(t, err)
	assert.Len(t, resp.Payments, 3)
	assert.EqualValues(t, 3, resp.Summary.Count)
	requireAmount(t, "175.30", resp.Summary.TotalAmount)
	requireAmount(t, "100.10", resp.Summary.CompletedAmount)
	requireAmount(t, "50.20", resp.Summary.RefundedAmount)
	requireAmount(t, "25", resp.Summary.PendingAmount)
	assert.True(t, day(3).Equal(resp.Payments[0].InitiatedAt), "newest first")

	resp, err = f.svc.List(ctx, paymentdomain.ListPaymentRequest{Method: "visa", AmountMin: "60"})
	require.NoError(t, err)
	require.Len(t, resp.Payments, 1)
	requireAmount(t, "100.10", resp.Payments[0].Amount)

	to := day(2)
	resp, err = f.svc.List(ctx, paymentdomain.ListPaymentRequest{To: &to})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Summary.Count)

	resp, err = f.svc.List(ctx, paymentdomain.ListPaymentRequest{Search: "treasury"})
	require.NoError(t, err)
	require.Len(t, resp.Payments, 1)

	_, err = f.svc.List(ctx, paymentdomain.ListPaymentRequest{AmountMin: "10", AmountMax: "5"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRange)

	_, err = f.svc.List(ctx, paymentdomain.ListPaymentRequest{Status: "LOST"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidStatus)
}
