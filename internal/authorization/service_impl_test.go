package authorization

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/adbilling/internal/actorcontext"
	"github.com/smallbiznis/adbilling/pkg/db"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(db.NewTest(t))
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestPlatformAdminMayMutate(t *testing.T) {
	svc := newTestService(t)
	admin := actorcontext.Actor{Type: actorcontext.ActorUser, ID: "42", Role: actorcontext.RolePlatformAdmin}

	require.NoError(t, svc.Authorize(context.Background(), admin, ObjectInvoice, ActionInvoiceGenerate))
	require.NoError(t, svc.Authorize(context.Background(), admin, ObjectPayout, ActionPayoutUpdate))
	require.NoError(t, svc.Authorize(context.Background(), admin, ObjectSystemConfig, ActionSystemConfigUpdate))
}

func TestNonAdminIsForbidden(t *testing.T) {
	svc := newTestService(t)
	advertiser := actorcontext.Actor{Type: actorcontext.ActorUser, ID: "7", Role: "advertiser"}

	err := svc.Authorize(context.Background(), advertiser, ObjectInvoice, ActionInvoiceView)
	require.True(t, errors.Is(err, errs.ErrForbidden))

	noRole := actorcontext.Actor{Type: actorcontext.ActorUser, ID: "8"}
	err = svc.Authorize(context.Background(), noRole, ObjectInvoice, ActionInvoiceView)
	require.True(t, errors.Is(err, errs.ErrForbidden))
}

func TestRoleChangeIsHonoured(t *testing.T) {
	svc := newTestService(t)
	actor := actorcontext.Actor{Type: actorcontext.ActorUser, ID: "9", Role: actorcontext.RolePlatformAdmin}
	require.NoError(t, svc.Authorize(context.Background(), actor, ObjectPayment, ActionPaymentUpdate))

	actor.Role = "partner"
	err := svc.Authorize(context.Background(), actor, ObjectPayment, ActionPaymentUpdate)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSystemActorLimitedToBatchActions(t *testing.T) {
	svc := newTestService(t)
	system := actorcontext.System()

	require.NoError(t, svc.Authorize(context.Background(), system, ObjectEarning, ActionEarningGenerate))
	require.ErrorIs(t, svc.Authorize(context.Background(), system, ObjectPayout, ActionPayoutUpdate), ErrForbidden)
}

func TestUserCannotClaimSystemRole(t *testing.T) {
	svc := newTestService(t)
	spoofed := actorcontext.Actor{Type: actorcontext.ActorUser, ID: "1337", Role: actorcontext.RoleSystem}

	for _, tc := range []struct{ object, action string }{
		{ObjectInvoice, ActionInvoiceGenerate},
		{ObjectEarning, ActionEarningGenerate},
		{ObjectReport, ActionReportView},
	} {
		err := svc.Authorize(context.Background(), spoofed, tc.object, tc.action)
		require.ErrorIs(t, err, ErrForbidden, tc.action)
	}

	spoofed.Role = " SYSTEM "
	require.ErrorIs(t, svc.Authorize(context.Background(), spoofed, ObjectInvoice, ActionInvoiceGenerate), ErrForbidden)
}

func TestAuthorizeDoesNotPersistRoleLinks(t *testing.T) {
	conn := db.NewTest(t)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})

	admin := actorcontext.Actor{Type: actorcontext.ActorUser, ID: "42", Role: actorcontext.RolePlatformAdmin}
	require.NoError(t, svc.Authorize(context.Background(), admin, ObjectInvoice, ActionInvoiceView))
	require.NoError(t, svc.Authorize(context.Background(), admin, ObjectPayment, ActionPaymentView))

	links, err := enforcer.GetGroupingPolicy()
	require.NoError(t, err)
	require.Empty(t, links)

	var stored int64
	require.NoError(t, conn.Table("casbin_rule").Where("ptype = ?", "g").Count(&stored).Error)
	require.Zero(t, stored)
}

func TestInvalidActor(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), actorcontext.Actor{}, ObjectInvoice, ActionInvoiceView)
	require.ErrorIs(t, err, ErrInvalidActor)
}
