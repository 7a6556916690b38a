package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	usagedomain "github.com/smallbiznis/adbilling/internal/usage/domain"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"github.com/smallbiznis/adbilling/pkg/db/pagination"
	"github.com/smallbiznis/adbilling/pkg/repository"
	"github.com/smallbiznis/adbilling/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        earningdomain.Repository
	CatalogRepo catalogdomain.Repository
	UsageSvc    usagedomain.Service
	Settings    systemconfigdomain.Service
	AuditSvc    auditdomain.Service    `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics    `optional:"true"`
	JobMetrics  *obsmetrics.JobMetrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	workers     int
	repo        earningdomain.Repository
	catalogRepo catalogdomain.Repository
	usageSvc    usagedomain.Service
	settings    systemconfigdomain.Service
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
	jobMetrics  *obsmetrics.JobMetrics

	earningrepo repository.Repository[earningdomain.PartnerEarning]
}

func NewService(p ServiceParam) earningdomain.Service {
	workers := p.Cfg.JobWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("earning.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		workers:     workers,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		usageSvc:    p.UsageSvc,
		settings:    p.Settings,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
		jobMetrics:  p.JobMetrics,

		earningrepo: repository.ProvideStore[earningdomain.PartnerEarning](p.DB),
	}
}

var (
	errNoDevices     = errors.New("partner has no devices")
	errNoImpressions = errors.New("no impressions in period")
)

type outcome struct {
	earning *earningdomain.PartnerEarning
	created bool
	err     error
}

// GenerateEarnings computes every partner's share for [start, end). Each
// partner is upserted in its own transaction so reruns converge on one row
// per partner and period.
func (s *Service) GenerateEarnings(ctx context.Context, req earningdomain.GenerateRequest) (earningdomain.GenerateResult, error) {
	if err := validation.Struct(req); err != nil {
		return earningdomain.GenerateResult{}, err
	}
	window := usagedomain.Window{Start: req.Start, End: req.End}.UTC()
	if err := window.Validate(); err != nil {
		return earningdomain.GenerateResult{}, earningdomain.ErrInvalidPeriod.WithMessage("period start must be before end")
	}

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return earningdomain.GenerateResult{}, err
	}
	partners, err := s.catalogRepo.ListPartners(ctx, s.db)
	if err != nil {
		return earningdomain.GenerateResult{}, err
	}

	start := time.Now()
	s.jobMetrics.IncRun(obsmetrics.JobGenerateEarnings)
	defer func() {
		s.jobMetrics.ObserveDuration(obsmetrics.JobGenerateEarnings, time.Since(start))
	}()

	now := s.clock.Now().UTC()
	outcomes := make([]outcome, len(partners))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, partner := range partners {
		g.Go(func() error {
			earning, created, err := s.generateOne(ctx, partner, window, now, settings)
			outcomes[i] = outcome{earning: earning, created: created, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := earningdomain.GenerateResult{
		Earnings: []earningdomain.PartnerEarning{},
		Skipped:  []earningdomain.SkippedPartner{},
	}
	for i, o := range outcomes {
		partnerID := partners[i].ID.String()
		if o.err != nil {
			reason := skipReason(o.err)
			result.Skipped = append(result.Skipped, earningdomain.SkippedPartner{PartnerID: partnerID, Reason: reason})
			s.jobMetrics.AddSkipped(obsmetrics.JobGenerateEarnings, string(reason), 1)
			if reason == earningdomain.SkipFailed {
				s.jobMetrics.IncError(obsmetrics.JobGenerateEarnings, o.err)
				s.log.Warn("earning generation failed", zap.String("partner_id", partnerID), zap.Error(o.err))
			}
			continue
		}
		result.Earnings = append(result.Earnings, *o.earning)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordEarningUpserted(ctx, o.created)
		}
		s.emitAudit(ctx, "earning.generated", o.earning, map[string]any{"created": o.created})
	}
	s.jobMetrics.AddProcessed(obsmetrics.JobGenerateEarnings, len(result.Earnings))

	s.log.Info("earning generation finished",
		zap.Time("period_start", window.Start),
		zap.Time("period_end", window.End),
		zap.Int("partners", len(partners)),
		zap.Int("upserted", len(result.Earnings)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (s *Service) generateOne(ctx context.Context, partner catalogdomain.Partner, window usagedomain.Window, now time.Time, settings systemconfigdomain.Settings) (*earningdomain.PartnerEarning, bool, error) {
	var (
		out     *earningdomain.PartnerEarning
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deviceIDs, err := s.catalogRepo.ListDeviceIDs(ctx, tx, partner.ID)
		if err != nil {
			return err
		}
		if len(deviceIDs) == 0 {
			return errNoDevices
		}

		store := s.earningrepo.WithTrx(tx)
		key := &earningdomain.PartnerEarning{PartnerID: partner.ID, PeriodStart: window.Start, PeriodEnd: window.End}
		existing, err := store.FindOne(ctx, key)
		if err != nil {
			return err
		}

		// The stored row for this period is never a usage source: regeneration
		// must follow corrected usage down as well as up.
		totals, err := s.usageSvc.WithTx(tx).Aggregate(ctx, usagedomain.AggregateRequest{
			DeviceIDs:     deviceIDs,
			Window:        window,
			DeliveredOnly: true,
		})
		if err != nil {
			return err
		}
		if totals.Impressions == 0 {
			return errNoImpressions
		}

		commission, err := commissionRate(partner, settings)
		if err != nil {
			return err
		}
		row := earningdomain.PartnerEarning{
			ID:               s.genID.Generate(),
			PartnerID:        partner.ID,
			PeriodStart:      window.Start,
			PeriodEnd:        window.End,
			TotalImpressions: totals.Impressions,
			TotalEngagements: totals.Engagements,
			TotalCompletions: totals.Completions,
			CommissionRate:   commission,
			Amount:           earningdomain.ComputeAmount(totals.Impressions, settings.BaseImpressionRate, commission),
			Status:           earningdomain.EarningStatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		_, err = store.Upsert(ctx, &row, clause.OnConflict{
			Columns: []clause.Column{{Name: "partner_id"}, {Name: "period_start"}, {Name: "period_end"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_impressions",
				"total_engagements",
				"total_completions",
				"commission_rate",
				"amount",
				"updated_at",
			}),
		})
		if err != nil {
			return err
		}

		out, err = store.FindOne(ctx, key)
		if err != nil {
			return err
		}
		if out == nil {
			return earningdomain.ErrEarningNotFound
		}
		created = existing == nil
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// commissionRate falls back to the platform default when the partner has
// none configured.
func commissionRate(partner catalogdomain.Partner, settings systemconfigdomain.Settings) (decimal.Decimal, error) {
	rate := settings.DefaultCommissionRate
	if partner.CommissionRate.Valid {
		rate = partner.CommissionRate.Decimal
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, earningdomain.ErrInvalidCommissionRate.WithMessage("partner %s commission rate %s is outside [0,1]", partner.ID, rate)
	}
	return rate, nil
}

func skipReason(err error) earningdomain.SkipReason {
	switch {
	case errors.Is(err, errNoDevices):
		return earningdomain.SkipNoDevices
	case errors.Is(err, errNoImpressions):
		return earningdomain.SkipNoImpressions
	default:
		return earningdomain.SkipFailed
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (earningdomain.PartnerEarning, error) {
	earningID, err := parseID(id)
	if err != nil {
		return earningdomain.PartnerEarning{}, earningdomain.ErrInvalidEarningID
	}
	item, err := s.earningrepo.FindOne(ctx, &earningdomain.PartnerEarning{ID: earningID})
	if err != nil {
		return earningdomain.PartnerEarning{}, err
	}
	if item == nil {
		return earningdomain.PartnerEarning{}, earningdomain.ErrEarningNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req earningdomain.ListEarningRequest) (earningdomain.ListEarningResponse, error) {
	filters, err := listFilters(req)
	if err != nil {
		return earningdomain.ListEarningResponse{}, err
	}

	summary, err := s.repo.Summarize(ctx, s.db, filters...)
	if err != nil {
		return earningdomain.ListEarningResponse{}, err
	}

	page := req.Pagination.Normalize()
	options := append(filters,
		option.WithSortBy(option.QuerySortBy{Default: "period_start", Desc: true}),
		option.WithLimit(page.Limit()),
		option.WithOffset(page.Offset()),
	)
	items, err := s.earningrepo.Find(ctx, nil, options...)
	if err != nil {
		return earningdomain.ListEarningResponse{}, err
	}

	earnings := make([]earningdomain.PartnerEarning, 0, len(items))
	for _, item := range items {
		if item != nil {
			earnings = append(earnings, *item)
		}
	}
	return earningdomain.ListEarningResponse{
		Earnings:   earnings,
		Pagination: pagination.BuildPageInfo(page, summary.Count),
		Summary:    summary,
	}, nil
}

func listFilters(req earningdomain.ListEarningRequest) ([]option.QueryOption, error) {
	var filters []option.QueryOption
	if strings.TrimSpace(req.Status) != "" {
		status, ok := earningdomain.ParseEarningStatus(req.Status)
		if !ok {
			return nil, earningdomain.ErrInvalidStatus
		}
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: status}))
	}
	if strings.TrimSpace(req.PartnerID) != "" {
		partnerID, err := parseID(req.PartnerID)
		if err != nil {
			return nil, earningdomain.ErrInvalidPartnerID
		}
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "partner_id", Operator: option.EQ, Value: partnerID}))
	}
	if req.PeriodFrom != nil && req.PeriodTo != nil && req.PeriodFrom.After(*req.PeriodTo) {
		return nil, earningdomain.ErrInvalidRange.WithMessage("period range is inverted")
	}
	if req.PeriodFrom != nil {
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "period_start", Operator: option.GTE, Value: req.PeriodFrom.UTC()}))
	}
	if req.PeriodTo != nil {
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "period_start", Operator: option.LT, Value: req.PeriodTo.UTC().AddDate(0, 0, 1)}))
	}

	var lo, hi *decimal.Decimal
	if v := strings.TrimSpace(req.AmountMin); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, earningdomain.ErrInvalidRange.WithMessage("amount_min is not a number")
		}
		lo = &d
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "amount", Operator: option.GTE, Value: d}))
	}
	if v := strings.TrimSpace(req.AmountMax); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, earningdomain.ErrInvalidRange.WithMessage("amount_max is not a number")
		}
		hi = &d
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "amount", Operator: option.LTE, Value: d}))
	}
	if lo != nil && hi != nil && lo.GreaterThan(*hi) {
		return nil, earningdomain.ErrInvalidRange.WithMessage("amount_min must not exceed amount_max")
	}

	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		pattern := "%" + search + "%"
		filters = append(filters, option.Where(
			"(LOWER(COALESCE(transaction_reference, '')) LIKE ? OR partner_id IN (SELECT id FROM partners WHERE LOWER(name) LIKE ?))",
			pattern, pattern,
		))
	}
	return filters, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, earning *earningdomain.PartnerEarning, extra map[string]any) {
	if s.auditSvc == nil || earning == nil {
		return
	}
	metadata := map[string]any{
		"partner_id":        earning.PartnerID.String(),
		"period_start":      earning.PeriodStart.UTC().Format(time.RFC3339),
		"period_end":        earning.PeriodEnd.UTC().Format(time.RFC3339),
		"total_impressions": earning.TotalImpressions,
		"amount":            earning.Amount.StringFixed(2),
		"status":            string(earning.Status),
	}
	for key, value := range extra {
		metadata[key] = value
	}
	targetID := earning.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "partner_earning", &targetID, metadata); err != nil {
		s.log.Warn("failed to audit earning", zap.String("action", action), zap.Error(err))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
