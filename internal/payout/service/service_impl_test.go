package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	auditrepo "github.com/smallbiznis/adbilling/internal/audit/repository"
	auditservice "github.com/smallbiznis/adbilling/internal/audit/service"
	"github.com/smallbiznis/adbilling/internal/clock"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	"github.com/smallbiznis/adbilling/internal/ledger/ledgertest"
	payoutdomain "github.com/smallbiznis/adbilling/internal/payout/domain"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	*ledgertest.Fixtures
	svc   payoutdomain.Service
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
	svc := NewService(Params{DB: f.DB, Log: zap.NewNop(), Clock: clk, AuditSvc: auditSvc})
	return fixture{Fixtures: f, svc: svc, audit: auditSvc}
}

func (f fixture) earning(status earningdomain.EarningStatus) earningdomain.PartnerEarning {
	partner := f.Partner("Mall", "0.30")
	return f.Earning(earningdomain.PartnerEarning{
		PartnerID:        partner.ID,
		PeriodStart:      ledgertest.Date(2025, 3, 1),
		PeriodEnd:        ledgertest.Date(2025, 4, 1),
		TotalImpressions: 50000,
		CommissionRate:   decimal.RequireFromString("0.30"),
		Amount:           decimal.RequireFromString("15.00"),
		Status:           status,
	})
}

func TestProcessThenMarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.earning(earningdomain.EarningStatusPending)

	processed, err := f.svc.ApplyAction(ctx, e.ID.String(), payoutdomain.ActionRequest{Action: "process", Notes: "batch 12"})
	require.NoError(t, err)
	assert.Equal(t, earningdomain.EarningStatusProcessed, processed.Status)
	assert.Nil(t, processed.PaidDate)
	assert.Equal(t, "batch 12", processed.Notes)

	paid, err := f.svc.ApplyAction(ctx, e.ID.String(), payoutdomain.ActionRequest{
		Action:        "mark_paid",
		TransactionID: "TXN-0099887766",
		PayoutMethod:  " bank_transfer ",
		Notes:         "settled",
	})
	require.NoError(t, err)
	assert.Equal(t, earningdomain.EarningStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidDate)
	assert.True(t, paid.PaidDate.Equal(epoch))
	require.NotNil(t, paid.TransactionReference)
	assert.Equal(t, "TXN-0099887766", *paid.TransactionReference)
	require.NotNil(t, paid.PayoutMethod)
	assert.Equal(t, "BANK_TRANSFER", *paid.PayoutMethod)
	assert.Equal(t, "batch 12\nsettled", paid.Notes)
	assert.True(t, decimal.RequireFromString("15.00").Equal(paid.Amount))

	logs, err := f.audit.List(ctx, auditdomain.ListAuditLogRequest{Action: "payout.mark_paid"})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	ref, _ := logs.AuditLogs[0].Metadata["transaction_reference"].(string)
	assert.NotEqual(t, "TXN-0099887766", ref)
	assert.Contains(t, ref, "****")
	assert.Equal(t, "PROCESSED", logs.AuditLogs[0].Metadata["previous_status"])
}

func TestMarkPaidDirectlyFromPending(t *testing.T) {
	f := newFixture(t)
	e := f.earning(earningdomain.EarningStatusPending)

	paid, err := f.svc.ApplyAction(context.Background(), e.ID.String(), payoutdomain.ActionRequest{
		Action:        "mark_paid",
		TransactionID: "tx-1",
		PayoutMethod:  "ewallet",
	})
	require.NoError(t, err)
	assert.Equal(t, earningdomain.EarningStatusPaid, paid.Status)
}

func TestMarkPaidRequiresEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.earning(earningdomain.EarningStatusProcessed)

	_, err := f.svc.ApplyAction(ctx, e.ID.String(), payoutdomain.ActionRequest{Action: "mark_paid", PayoutMethod: "BANK"})
	assert.ErrorIs(t, err, payoutdomain.ErrTransactionIDRequired)

	_, err = f.svc.ApplyAction(ctx, e.ID.String(), payoutdomain.ActionRequest{Action: "mark_paid", TransactionID: "tx"})
	assert.ErrorIs(t, err, payoutdomain.ErrPayoutMethodRequired)

	var stored earningdomain.PartnerEarning
	require.NoError(t, f.DB.First(&stored, "id = ?", e.ID).Error)
	assert.Equal(t, earningdomain.EarningStatusProcessed, stored.Status)
}

func TestTerminalStatusesRejectActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []earningdomain.EarningStatus{earningdomain.EarningStatusPaid, earningdomain.EarningStatusCancelled} {
		e := f.earning(status)
		for _, action := range []string{"process", "cancel"} {
			_, err := f.svc.ApplyAction(ctx, e.ID.String(), payoutdomain.ActionRequest{Action: action})
			assert.ErrorIs(t, err, payoutdomain.ErrInvalidPayoutTransition, "%s on %s", action, status)
			assert.ErrorIs(t, err, errs.ErrInvariantViolation)
		}
	}

	processed := f.earning(earningdomain.EarningStatusProcessed)
	_, err := f.svc.ApplyAction(ctx, processed.ID.String(), payoutdomain.ActionRequest{Action: "process"})
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidPayoutTransition)

	cancelled, err := f.svc.ApplyAction(ctx, processed.ID.String(), payoutdomain.ActionRequest{Action: "cancel"})
	require.NoError(t, err)
	assert.Equal(t, earningdomain.EarningStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.PaidDate)
}

func TestApplyActionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.earning(earningdomain.EarningStatusPending)

	_, err := f.svc.ApplyAction(ctx, e.ID.String(), payoutdomain.ActionRequest{})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.ApplyAction(ctx, e.ID.String(), payoutdomain.ActionRequest{Action: "refund"})
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidAction)

	_, err = f.svc.ApplyAction(ctx, "abc", payoutdomain.ActionRequest{Action: "process"})
	assert.ErrorIs(t, err, earningdomain.ErrInvalidEarningID)

	_, err = f.svc.ApplyAction(ctx, f.Node.Generate().String(), payoutdomain.ActionRequest{Action: "process"})
	assert.ErrorIs(t, err, earningdomain.ErrEarningNotFound)
}
