package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/adbilling/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo usagedomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo usagedomain.Repository
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("usage.service"),
		repo: p.Repo,
	}
}

// WithTx returns a copy reading through tx.
func (s *Service) WithTx(tx *gorm.DB) usagedomain.Service {
	cp := *s
	cp.db = tx
	return &cp
}

func (s *Service) Aggregate(ctx context.Context, req usagedomain.AggregateRequest) (usagedomain.Totals, error) {
	if err := req.Window.Validate(); err != nil {
		return usagedomain.Totals{}, err
	}
	if len(req.DeviceIDs) == 0 {
		return usagedomain.Totals{}, nil
	}
	window := req.Window.UTC()

	delivered, err := s.repo.SumDeliveries(ctx, s.db, usagedomain.DeliveryFilter{
		DeviceIDs:     req.DeviceIDs,
		CampaignIDs:   req.CampaignIDs,
		Window:        window,
		DeliveredOnly: req.DeliveredOnly,
	})
	if err != nil {
		return usagedomain.Totals{}, err
	}

	// rollups are per device, not per campaign
	sources := []usagedomain.Totals{delivered}
	if len(req.CampaignIDs) == 0 {
		rolled, err := s.repo.SumAnalytics(ctx, s.db, req.DeviceIDs, window)
		if err != nil {
			return usagedomain.Totals{}, err
		}
		sources = append(sources, rolled)
	}
	if req.Prior != nil {
		sources = append(sources, *req.Prior)
	}

	totals := usagedomain.Reconcile(sources...)
	s.log.Debug("usage aggregated",
		zap.Int("devices", len(req.DeviceIDs)),
		zap.Time("start", window.Start),
		zap.Time("end", window.End),
		zap.Int64("impressions", totals.Impressions),
	)
	return totals, nil
}

// AggregateByDevice reconciles delivery and rollup sources per device. Prior
// is ignored since snapshots are not kept per device.
func (s *Service) AggregateByDevice(ctx context.Context, req usagedomain.AggregateRequest) ([]usagedomain.UsageRecord, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	if len(req.DeviceIDs) == 0 {
		return []usagedomain.UsageRecord{}, nil
	}
	window := req.Window.UTC()

	delivered, err := s.repo.SumDeliveriesByDevice(ctx, s.db, usagedomain.DeliveryFilter{
		DeviceIDs:     req.DeviceIDs,
		CampaignIDs:   req.CampaignIDs,
		Window:        window,
		DeliveredOnly: req.DeliveredOnly,
	})
	if err != nil {
		return nil, err
	}
	rolled := map[snowflake.ID]usagedomain.Totals{}
	if len(req.CampaignIDs) == 0 {
		rolled, err = s.repo.SumAnalyticsByDevice(ctx, s.db, req.DeviceIDs, window)
		if err != nil {
			return nil, err
		}
	}

	records := make([]usagedomain.UsageRecord, 0, len(req.DeviceIDs))
	for _, deviceID := range req.DeviceIDs {
		totals := usagedomain.Reconcile(delivered[deviceID], rolled[deviceID])
		records = append(records, usagedomain.UsageRecord{
			DeviceID:    deviceID,
			WindowStart: window.Start,
			WindowEnd:   window.End,
			Impressions: totals.Impressions,
			Engagements: totals.Engagements,
			Completions: totals.Completions,
		})
	}
	return records, nil
}
