package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/actorcontext"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	auditrepo "github.com/smallbiznis/adbilling/internal/audit/repository"
	auditservice "github.com/smallbiznis/adbilling/internal/audit/service"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	"github.com/smallbiznis/adbilling/internal/ledger"
	"github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"github.com/smallbiznis/adbilling/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	audit auditdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := db.NewTest(t)
	require.NoError(t, ledger.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	svc := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Clock:    clk,
		Holder:   config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		AuditSvc: auditSvc,
	})
	return fixture{db: conn, svc: svc, audit: auditSvc}
}

var admin = actorcontext.Actor{Type: actorcontext.ActorUser, ID: "101", Role: actorcontext.RolePlatformAdmin}

func TestSnapshotUsesFileDefaults(t *testing.T) {
	f := newFixture(t)

	settings, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.True(t, settings.TaxRate.Equal(decimal.RequireFromString("0.16")))
	require.Equal(t, "INV-", settings.InvoiceNumberPrefix)
}

func TestSetOverridesAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Set(ctx, admin, domain.KeyTaxRate, "0.18")
	require.NoError(t, err)
	require.Equal(t, domain.SourceOverride, entry.Source)
	require.Equal(t, "user:101", entry.UpdatedBy)

	settings, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, settings.TaxRate.Equal(decimal.RequireFromString("0.18")))

	_, err = f.svc.Set(ctx, admin, domain.KeyTaxRate, "0.2")
	require.NoError(t, err)

	logs, err := f.audit.List(ctx, auditdomain.ListAuditLogRequest{Action: "system_config.updated"})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 2)

	var sawDiff bool
	for _, l := range logs.AuditLogs {
		if l.Metadata["old_value"] == "0.18" && l.Metadata["new_value"] == "0.2" {
			sawDiff = true
		}
	}
	require.True(t, sawDiff, "audit entries must carry old and new values")

	var rows int64
	require.NoError(t, f.db.Model(&domain.SystemConfig{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestSetRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Set(ctx, admin, "unknownKey", "1")
	require.ErrorIs(t, err, domain.ErrUnknownKey)

	_, err = f.svc.Set(ctx, admin, domain.KeyDefaultCommissionRate, "2")
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = f.svc.Set(ctx, actorcontext.Actor{}, domain.KeyTaxRate, "0.1")
	require.ErrorIs(t, err, domain.ErrInvalidActor)
}

func TestListReportsSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Set(ctx, admin, domain.KeyInvoiceNumberPrefix, "AD-")
	require.NoError(t, err)

	entries, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, len(domain.Keys()))
	for _, e := range entries {
		if e.Key == domain.KeyInvoiceNumberPrefix {
			require.Equal(t, "AD-", e.Value)
			require.Equal(t, domain.SourceOverride, e.Source)
		} else {
			require.Equal(t, domain.SourceFile, e.Source)
		}
	}
}

func TestSnapshotSkipsInvalidStoredOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&domain.SystemConfig{
		Key:       domain.KeyInvoiceNumberWidth,
		Value:     "zero",
		UpdatedBy: "user:1",
		UpdatedAt: time.Now().UTC(),
	}).Error)

	settings, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, settings.InvoiceNumberWidth)
}
