package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/clock"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"github.com/smallbiznis/adbilling/internal/reporting/export"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     reportingdomain.Repository
	Settings systemconfigdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     reportingdomain.Repository
	settings systemconfigdomain.Service
}

func NewService(p Params) reportingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reporting.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		settings: p.Settings,
	}
}

var hundred = decimal.NewFromInt(100)

func (s *Service) Report(ctx context.Context, req reportingdomain.ReportRequest) (reportingdomain.Report, error) {
	reportType, ok := reportingdomain.ParseReportType(req.Type)
	if !ok {
		return reportingdomain.Report{}, reportingdomain.ErrInvalidReportType
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return reportingdomain.Report{}, err
	}
	granularity := reportingdomain.GranularityMonth
	if strings.TrimSpace(req.Granularity) != "" {
		granularity, ok = reportingdomain.ParseGranularity(req.Granularity)
		if !ok {
			return reportingdomain.Report{}, reportingdomain.ErrInvalidGranularity
		}
	}
	if !settings.AllowsGranularity(string(granularity)) {
		return reportingdomain.Report{}, reportingdomain.ErrInvalidGranularity.WithMessage("granularity %q is disabled", granularity)
	}
	start, end, err := s.normalizeRange(req, settings)
	if err != nil {
		return reportingdomain.Report{}, err
	}

	entries, err := s.repo.Entries(ctx, s.db, reportType, start, end)
	if err != nil {
		return reportingdomain.Report{}, err
	}

	report := Build(reportType, granularity, entries)
	report.Start = start
	report.End = end

	s.log.Debug("report built",
		zap.String("type", string(reportType)),
		zap.String("granularity", string(granularity)),
		zap.Int("entries", len(entries)),
		zap.Int("rows", len(report.Rows)),
	)
	return report, nil
}

func (s *Service) Export(ctx context.Context, req reportingdomain.ReportRequest) ([]byte, string, error) {
	report, err := s.Report(ctx, req)
	if err != nil {
		return nil, "", err
	}
	doc, err := export.XLSX(report)
	if err != nil {
		s.log.Error("failed to export report", zap.String("type", string(report.Type)), zap.Error(err))
		return nil, "", err
	}
	return doc, export.FileName(report), nil
}

// normalizeRange treats end as an inclusive calendar day. Without a range the
// report covers the trailing fallback window up to and including today.
func (s *Service) normalizeRange(req reportingdomain.ReportRequest, settings systemconfigdomain.Settings) (time.Time, time.Time, error) {
	today := reportingdomain.Truncate(s.clock.Now(), reportingdomain.GranularityDay)
	end := today.AddDate(0, 0, 1)
	if req.End != nil {
		end = reportingdomain.Truncate(*req.End, reportingdomain.GranularityDay).AddDate(0, 0, 1)
	}
	days := settings.TrendFallbackDays
	if days <= 0 {
		days = reportingdomain.DefaultFallbackDays
	}
	start := end.AddDate(0, 0, -days)
	if req.Start != nil {
		start = reportingdomain.Truncate(*req.Start, reportingdomain.GranularityDay)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, reportingdomain.ErrInvalidRange.WithMessage("start must not be after end")
	}
	return start, end, nil
}

type bucketKey struct {
	start  time.Time
	method string
}

// Build groups entries into period rows. Payment-method reports split each
// period by method and carry each method's share of the range total.
func Build(t reportingdomain.ReportType, g reportingdomain.Granularity, entries []reportingdomain.Entry) reportingdomain.Report {
	byMethod := t == reportingdomain.ReportPaymentMethods
	buckets := map[bucketKey]*reportingdomain.Row{}
	methods := map[string]*reportingdomain.MethodShare{}
	report := reportingdomain.Report{
		Type:        t,
		Granularity: g,
		Rows:        []reportingdomain.Row{},
		TotalAmount: decimal.Zero,
	}

	for _, e := range entries {
		key := bucketKey{start: reportingdomain.Truncate(e.At, g)}
		if byMethod {
			key.method = e.Method
		}
		row, ok := buckets[key]
		if !ok {
			row = &reportingdomain.Row{
				Period:      reportingdomain.Label(key.start, g),
				PeriodStart: key.start,
				Amount:      decimal.Zero,
				Method:      key.method,
			}
			buckets[key] = row
		}
		row.Amount = row.Amount.Add(e.Amount)
		row.Count++
		report.TotalAmount = report.TotalAmount.Add(e.Amount)
		report.TotalCount++

		if byMethod {
			share, ok := methods[e.Method]
			if !ok {
				share = &reportingdomain.MethodShare{Method: e.Method, Amount: decimal.Zero}
				methods[e.Method] = share
			}
			share.Amount = share.Amount.Add(e.Amount)
			share.Count++
		}
	}

	for _, row := range buckets {
		row.Amount = row.Amount.Round(2)
		report.Rows = append(report.Rows, *row)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		a, b := report.Rows[i], report.Rows[j]
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		return a.Method < b.Method
	})
	report.TotalAmount = report.TotalAmount.Round(2)

	if byMethod {
		report.Methods = make([]reportingdomain.MethodShare, 0, len(methods))
		for _, share := range methods {
			share.Amount = share.Amount.Round(2)
			share.Percentage = Share(share.Amount, report.TotalAmount)
			report.Methods = append(report.Methods, *share)
		}
		sort.Slice(report.Methods, func(i, j int) bool {
			return report.Methods[i].Method < report.Methods[j].Method
		})
	}
	return report
}

// Share is amount as a percentage of total, 0 when total is 0.
func Share(amount, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return amount.Div(total).Mul(hundred).Round(2)
}
