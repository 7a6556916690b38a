package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	"github.com/smallbiznis/adbilling/internal/clock"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/adbilling/internal/payout/domain"
	"github.com/smallbiznis/adbilling/pkg/repository"
	"github.com/smallbiznis/adbilling/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics

	earningrepo repository.Repository[earningdomain.PartnerEarning]
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,

		earningrepo: repository.ProvideStore[earningdomain.PartnerEarning](p.DB),
	}
}

// ApplyAction moves an earning through the payout workflow under a row lock.
// mark_paid needs settlement evidence: a transaction id and the payout rail.
func (s *Service) ApplyAction(ctx context.Context, earningID string, req payoutdomain.ActionRequest) (earningdomain.PartnerEarning, error) {
	if err := validation.Struct(req); err != nil {
		return earningdomain.PartnerEarning{}, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(earningID))
	if err != nil {
		return earningdomain.PartnerEarning{}, earningdomain.ErrInvalidEarningID
	}
	action, ok := payoutdomain.ParseAction(req.Action)
	if !ok {
		return earningdomain.PartnerEarning{}, payoutdomain.ErrInvalidAction
	}
	to, _ := action.Target()

	txID := strings.TrimSpace(req.TransactionID)
	method := strings.ToUpper(strings.TrimSpace(req.PayoutMethod))
	if action == payoutdomain.ActionMarkPaid {
		if txID == "" {
			return earningdomain.PartnerEarning{}, payoutdomain.ErrTransactionIDRequired
		}
		if method == "" {
			return earningdomain.PartnerEarning{}, payoutdomain.ErrPayoutMethodRequired
		}
	}

	now := s.clock.Now().UTC()
	var (
		from    earningdomain.EarningStatus
		updated earningdomain.PartnerEarning
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.earningrepo.WithTrx(tx)
		current, err := store.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return earningdomain.ErrEarningNotFound
		}
		from = current.Status
		if err := payoutdomain.EnsureEarningCanTransition(from, to); err != nil {
			return err
		}

		updates := map[string]any{
			"status":     to,
			"updated_at": now,
		}
		if note := strings.TrimSpace(req.Notes); note != "" {
			updates["notes"] = appendNote(current.Notes, note)
		}
		if to == earningdomain.EarningStatusPaid {
			updates["paid_date"] = now
			updates["transaction_reference"] = txID
			updates["payout_method"] = method
		}
		if err := store.Update(ctx, id, updates); err != nil {
			return err
		}

		reloaded, err := store.FindOne(ctx, &earningdomain.PartnerEarning{ID: id})
		if err != nil {
			return err
		}
		if reloaded == nil {
			return earningdomain.ErrEarningNotFound
		}
		updated = *reloaded
		return nil
	})
	if err != nil {
		return earningdomain.PartnerEarning{}, err
	}

	s.log.Info("payout status updated",
		zap.String("earning_id", id.String()),
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayoutTransition(ctx, string(from), string(to))
	}
	s.emitAudit(ctx, "payout."+string(action), &updated, string(from))
	return updated, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, earning *earningdomain.PartnerEarning, from string) {
	if s.auditSvc == nil || earning == nil {
		return
	}
	metadata := map[string]any{
		"partner_id":      earning.PartnerID.String(),
		"previous_status": from,
		"status":          string(earning.Status),
		"amount":          earning.Amount.StringFixed(2),
	}
	if earning.TransactionReference != nil {
		metadata["transaction_reference"] = *earning.TransactionReference
	}
	if earning.PayoutMethod != nil {
		metadata["payout_method"] = *earning.PayoutMethod
	}

	targetID := earning.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "payout", &targetID, metadata); err != nil {
		s.log.Warn("failed to audit payout", zap.String("action", action), zap.Error(err))
	}
}

func appendNote(existing, note string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
