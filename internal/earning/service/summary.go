package service

import (
	"context"
	"time"

	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	usagedomain "github.com/smallbiznis/adbilling/internal/usage/domain"
)

// PartnerSummary reports a partner's usage over the requested window, or the
// trailing fallback window when none is given, against the window before it.
func (s *Service) PartnerSummary(ctx context.Context, partnerID string, req earningdomain.SummaryRequest) (earningdomain.PartnerSummary, error) {
	id, err := parseID(partnerID)
	if err != nil {
		return earningdomain.PartnerSummary{}, earningdomain.ErrInvalidPartnerID
	}
	partner, err := s.catalogRepo.GetPartner(ctx, s.db, id)
	if err != nil {
		return earningdomain.PartnerSummary{}, err
	}
	if partner == nil {
		return earningdomain.PartnerSummary{}, earningdomain.ErrPartnerNotFound
	}

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return earningdomain.PartnerSummary{}, err
	}
	start, end := summaryWindow(req, s.clock.Now(), settings.TrendFallbackDays)
	if !start.Before(end) {
		return earningdomain.PartnerSummary{}, earningdomain.ErrInvalidPeriod.WithMessage("start must not be after end")
	}
	prevStart, prevEnd := reportingdomain.PreviousWindow(start, end, settings.TrendFallbackDays)

	deviceIDs, err := s.catalogRepo.ListDeviceIDs(ctx, s.db, id)
	if err != nil {
		return earningdomain.PartnerSummary{}, err
	}
	current := usagedomain.AggregateRequest{
		DeviceIDs:     deviceIDs,
		Window:        usagedomain.Window{Start: start, End: end},
		DeliveredOnly: true,
	}
	previous := current
	previous.Window = usagedomain.Window{Start: prevStart, End: prevEnd}

	currentTotals, err := s.usageSvc.Aggregate(ctx, current)
	if err != nil {
		return earningdomain.PartnerSummary{}, err
	}
	previousTotals, err := s.usageSvc.Aggregate(ctx, previous)
	if err != nil {
		return earningdomain.PartnerSummary{}, err
	}
	devices, err := s.usageSvc.AggregateByDevice(ctx, current)
	if err != nil {
		return earningdomain.PartnerSummary{}, err
	}

	commission, err := commissionRate(*partner, settings)
	if err != nil {
		return earningdomain.PartnerSummary{}, err
	}
	estimate := earningdomain.ComputeAmount(currentTotals.Impressions, settings.BaseImpressionRate, commission)
	previousEstimate := earningdomain.ComputeAmount(previousTotals.Impressions, settings.BaseImpressionRate, commission)

	trends := reportingdomain.Compare(currentTotals, previousTotals)
	trends["earnings"] = reportingdomain.NewTrend(estimate, previousEstimate)

	return earningdomain.PartnerSummary{
		PartnerID:         partner.ID.String(),
		PartnerName:       partner.Name,
		WindowStart:       start,
		WindowEnd:         end,
		PreviousStart:     prevStart,
		PreviousEnd:       prevEnd,
		DeviceCount:       len(deviceIDs),
		Devices:           devices,
		Current:           currentTotals,
		Previous:          previousTotals,
		CommissionRate:    commission,
		EstimatedEarnings: estimate,
		Trends:            trends,
	}, nil
}

// summaryWindow treats End as an inclusive calendar day.
func summaryWindow(req earningdomain.SummaryRequest, now time.Time, fallbackDays int) (time.Time, time.Time) {
	if fallbackDays <= 0 {
		fallbackDays = reportingdomain.DefaultFallbackDays
	}
	end := reportingdomain.Truncate(now, reportingdomain.GranularityDay).AddDate(0, 0, 1)
	if req.End != nil {
		end = reportingdomain.Truncate(*req.End, reportingdomain.GranularityDay).AddDate(0, 0, 1)
	}
	start := end.AddDate(0, 0, -fallbackDays)
	if req.Start != nil {
		start = reportingdomain.Truncate(*req.Start, reportingdomain.GranularityDay)
	}
	return start, end
}
