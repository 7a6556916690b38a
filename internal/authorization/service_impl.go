package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/adbilling/internal/actorcontext"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectInvoice      = "invoice"
	ObjectPayment      = "payment"
	ObjectPayout       = "payout"
	ObjectEarning      = "earning"
	ObjectPartner      = "partner"
	ObjectReport       = "report"
	ObjectSystemConfig = "system_config"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionInvoiceView     = "invoice.view"
	ActionInvoiceCreate   = "invoice.create"
	ActionInvoiceGenerate = "invoice.generate"
	ActionInvoiceUpdate   = "invoice.update"

	ActionPaymentView   = "payment.view"
	ActionPaymentCreate = "payment.create"
	ActionPaymentUpdate = "payment.update"

	ActionPayoutView   = "payout.view"
	ActionPayoutUpdate = "payout.update"

	ActionEarningGenerate = "earning.generate"

	ActionPartnerView = "partner.view"

	ActionReportView = "report.view"

	ActionSystemConfigView   = "system_config.view"
	ActionSystemConfigUpdate = "system_config.update"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error {
	if !actor.Valid() {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName := roleFor(actor)
	if roleName == "" {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}

	// Enforced on the role itself; Authorize never writes policy.
	allowed, err := s.enforcer.Enforce(roleName, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

// roleFor resolves the casbin subject. The system role is reserved for the
// batch actor and never granted from a forwarded user role.
func roleFor(actor actorcontext.Actor) string {
	if actor.Type == actorcontext.ActorSystem {
		return "role:" + actorcontext.RoleSystem
	}
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role == "" || role == actorcontext.RoleSystem {
		return ""
	}
	return "role:" + role
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor actorcontext.Actor, object string, action string) {
	s.log.Warn("authorization denied",
		zap.String("subject", actor.Subject()),
		zap.String("role", actor.Role),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	actorID := actor.ID
	targetID := object
	_ = s.auditSvc.AuditLog(ctx, string(actor.Type), &actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"role":    actor.Role,
		"subject": actor.Subject(),
	})
}

var adminActions = map[string][]string{
	ObjectInvoice:      {ActionInvoiceView, ActionInvoiceCreate, ActionInvoiceGenerate, ActionInvoiceUpdate},
	ObjectPayment:      {ActionPaymentView, ActionPaymentCreate, ActionPaymentUpdate},
	ObjectPayout:       {ActionPayoutView, ActionPayoutUpdate},
	ObjectEarning:      {ActionEarningGenerate},
	ObjectPartner:      {ActionPartnerView},
	ObjectReport:       {ActionReportView},
	ObjectSystemConfig: {ActionSystemConfigView, ActionSystemConfigUpdate},
	ObjectAuditLog:     {ActionAuditLogView},
}

// systemActions is what the batch CLI may do.
var systemActions = map[string][]string{
	ObjectInvoice: {ActionInvoiceGenerate},
	ObjectEarning: {ActionEarningGenerate},
	ObjectReport:  {ActionReportView},
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	var policies [][]string
	for object, actions := range adminActions {
		for _, action := range actions {
			policies = append(policies, []string{"role:" + actorcontext.RolePlatformAdmin, object, action})
		}
	}
	for object, actions := range systemActions {
		for _, action := range actions {
			policies = append(policies, []string{"role:" + actorcontext.RoleSystem, object, action})
		}
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
