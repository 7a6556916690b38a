package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/adbilling/internal/actorcontext"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	"github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"github.com/smallbiznis/adbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Holder   *config.BillingConfigHolder
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	holder   *config.BillingConfigHolder
	auditSvc auditdomain.Service
	repo     repository.Repository[domain.SystemConfig]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("systemconfig.service"),
		clock:    p.Clock,
		holder:   p.Holder,
		auditSvc: p.AuditSvc,
		repo:     repository.ProvideStore[domain.SystemConfig](p.DB),
	}
}

// Snapshot merges file defaults with stored overrides. A stored value that
// no longer validates is skipped so one bad row cannot halt billing.
func (s *Service) Snapshot(ctx context.Context) (domain.Settings, error) {
	settings := domain.SettingsFromConfig(s.holder.Get())

	rows, err := s.repo.Find(ctx, &domain.SystemConfig{})
	if err != nil {
		return domain.Settings{}, err
	}
	for _, row := range rows {
		if err := settings.Apply(row.Key, row.Value); err != nil {
			s.log.Warn("ignoring invalid config override",
				zap.String("key", row.Key),
				zap.Error(err),
			)
		}
	}
	return settings, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Entry, error) {
	settings, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Find(ctx, &domain.SystemConfig{})
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]*domain.SystemConfig, len(rows))
	for _, row := range rows {
		overrides[row.Key] = row
	}

	entries := make([]domain.Entry, 0, len(domain.Keys()))
	for _, key := range domain.Keys() {
		entry := domain.Entry{Key: key, Value: settings.Value(key), Source: domain.SourceFile}
		if row, ok := overrides[key]; ok {
			updatedAt := row.UpdatedAt
			entry.Source = domain.SourceOverride
			entry.UpdatedBy = row.UpdatedBy
			entry.UpdatedAt = &updatedAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) Set(ctx context.Context, actor actorcontext.Actor, key string, value string) (domain.Entry, error) {
	if !actor.Valid() {
		return domain.Entry{}, domain.ErrInvalidActor
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	current, err := s.Snapshot(ctx)
	if err != nil {
		return domain.Entry{}, err
	}
	oldValue := current.Value(key)
	next := current
	if err := next.Apply(key, value); err != nil {
		return domain.Entry{}, err
	}
	newValue := next.Value(key)

	now := s.clock.Now().UTC()
	row := domain.SystemConfig{
		Key:       key,
		Value:     newValue,
		UpdatedBy: actor.Subject(),
		UpdatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.repo.WithTrx(tx).Upsert(ctx, &row, clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
		})
		return err
	})
	if err != nil {
		return domain.Entry{}, err
	}

	s.log.Info("config updated",
		zap.String("key", key),
		zap.String("old_value", oldValue),
		zap.String("new_value", newValue),
		zap.String("actor", actor.Subject()),
	)
	s.emitAudit(ctx, actor, key, oldValue, newValue)

	return domain.Entry{
		Key:       key,
		Value:     newValue,
		Source:    domain.SourceOverride,
		UpdatedBy: row.UpdatedBy,
		UpdatedAt: &now,
	}, nil
}

func (s *Service) emitAudit(ctx context.Context, actor actorcontext.Actor, key, oldValue, newValue string) {
	if s.auditSvc == nil {
		return
	}
	actorID := actor.ID
	targetID := key
	if err := s.auditSvc.AuditLog(ctx, string(actor.Type), &actorID, "system_config.updated", "system_config", &targetID, map[string]any{
		"key":       key,
		"old_value": oldValue,
		"new_value": newValue,
	}); err != nil {
		s.log.Warn("failed to audit config update", zap.String("key", key), zap.Error(err))
	}
}
