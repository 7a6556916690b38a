package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/invoice/format"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"github.com/smallbiznis/adbilling/pkg/db"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"github.com/smallbiznis/adbilling/pkg/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const maxNumberAttempts = 5

var errNoBillableAmount = errors.New("no billable amount")

type outcome struct {
	invoice *invoicedomain.Invoice
	reason  invoicedomain.SkipReason
	err     error
}

// GenerateInvoices bills each campaign in its own transaction. A failure on
// one campaign is reported as a skip and never aborts the others.
func (s *Service) GenerateInvoices(ctx context.Context, req invoicedomain.GenerateRequest) (invoicedomain.GenerateResult, error) {
	if err := validation.Struct(req); err != nil {
		return invoicedomain.GenerateResult{}, err
	}
	campaignIDs := make([]snowflake.ID, 0, len(req.CampaignIDs))
	for _, raw := range req.CampaignIDs {
		id, err := parseID(raw)
		if err != nil {
			return invoicedomain.GenerateResult{}, invoicedomain.ErrInvalidCampaign.WithMessage("invalid campaign id %q", raw)
		}
		campaignIDs = append(campaignIDs, id)
	}

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}
	taxRate, err := resolveTaxRate(req.TaxRate, settings)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}
	now := s.clock.Now().UTC()
	dueDate := resolveDueDate(req.DueDate, now, settings)

	start := time.Now()
	s.jobMetrics.IncRun(obsmetrics.JobGenerateInvoices)
	defer func() {
		s.jobMetrics.ObserveDuration(obsmetrics.JobGenerateInvoices, time.Since(start))
	}()

	outcomes := make([]outcome, len(campaignIDs))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, campaignID := range campaignIDs {
		g.Go(func() error {
			inv, err := s.generateOne(ctx, campaignID, taxRate, dueDate, now, settings)
			outcomes[i] = outcome{invoice: inv, reason: skipReason(err), err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := invoicedomain.GenerateResult{
		Invoices: []invoicedomain.Invoice{},
		Skipped:  []invoicedomain.SkippedCampaign{},
	}
	for i, o := range outcomes {
		if o.err != nil {
			result.Skipped = append(result.Skipped, invoicedomain.SkippedCampaign{
				CampaignID: campaignIDs[i].String(),
				Reason:     o.reason,
			})
			s.jobMetrics.AddSkipped(obsmetrics.JobGenerateInvoices, string(o.reason), 1)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordInvoiceSkipped(ctx, string(o.reason))
			}
			if o.reason == invoicedomain.SkipFailed {
				s.jobMetrics.IncError(obsmetrics.JobGenerateInvoices, o.err)
				s.log.Warn("invoice generation failed",
					zap.String("campaign_id", campaignIDs[i].String()),
					zap.Error(o.err),
				)
			}
			continue
		}
		o.invoice.Project(now)
		result.Invoices = append(result.Invoices, *o.invoice)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordInvoiceGenerated(ctx, string(o.invoice.AmountSource), o.invoice.TotalAmount.InexactFloat64())
		}
		s.emitAudit(ctx, "invoice.generated", o.invoice, nil)
	}
	s.jobMetrics.AddProcessed(obsmetrics.JobGenerateInvoices, len(result.Invoices))

	s.log.Info("invoice generation finished",
		zap.Int("requested", len(campaignIDs)),
		zap.Int("generated", len(result.Invoices)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (s *Service) generateOne(ctx context.Context, campaignID snowflake.ID, taxRate decimal.Decimal, dueDate, now time.Time, settings systemconfigdomain.Settings) (*invoicedomain.Invoice, error) {
	return s.insertInvoice(ctx, &campaignID, settings, func(tx *gorm.DB) (*invoicedomain.Invoice, error) {
		campaign, err := s.catalogRepo.GetCampaign(ctx, tx, campaignID)
		if err != nil {
			return nil, err
		}
		if campaign == nil {
			return nil, invoicedomain.ErrCampaignNotFound
		}
		if err := s.ensureNoOpenInvoice(ctx, tx, campaignID); err != nil {
			return nil, err
		}

		amount, source, ok, err := s.resolver.Resolve(ctx, *campaign)
		if err != nil {
			return nil, err
		}
		amount = amount.Round(2)
		if !ok || !amount.IsPositive() {
			return nil, errNoBillableAmount
		}

		tax, total := invoicedomain.ComputeTotals(amount, taxRate)
		id := campaign.ID
		return &invoicedomain.Invoice{
			ID:           s.genID.Generate(),
			AdvertiserID: campaign.AdvertiserID,
			CampaignID:   &id,
			LineItems:    []invoicedomain.LineItem{campaignLine(*campaign, amount)},
			Amount:       amount,
			TaxRate:      taxRate,
			TaxAmount:    tax,
			TotalAmount:  total,
			DueDate:      dueDate,
			Status:       invoicedomain.InvoiceStatusUnpaid,
			AmountSource: source,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, nil
	})
}

func campaignLine(campaign catalogdomain.Campaign, amount decimal.Decimal) invoicedomain.LineItem {
	return invoicedomain.LineItem{
		Description: fmt.Sprintf("Advertising services - %s", campaign.Name),
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   amount,
		Amount:      amount,
	}
}

// CreateInvoice records a manual invoice from explicit line items.
func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if err := validation.Struct(req); err != nil {
		return invoicedomain.Invoice{}, err
	}
	advertiserID, err := parseID(req.AdvertiserID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAdvertiser
	}
	var campaignID *snowflake.ID
	if req.CampaignID != nil && strings.TrimSpace(*req.CampaignID) != "" {
		id, err := parseID(*req.CampaignID)
		if err != nil {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCampaign
		}
		campaignID = &id
	}
	lines, amount, err := buildLineItems(req.LineItems)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	taxRate, err := resolveTaxRate(req.TaxRate, settings)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	now := s.clock.Now().UTC()
	if req.DueDate != nil && req.DueDate.Before(now.Truncate(24*time.Hour)) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDueDate.WithMessage("due date is in the past")
	}
	dueDate := resolveDueDate(req.DueDate, now, settings)

	inv, err := s.insertInvoice(ctx, campaignID, settings, func(tx *gorm.DB) (*invoicedomain.Invoice, error) {
		advertiser, err := s.catalogRepo.GetAdvertiser(ctx, tx, advertiserID)
		if err != nil {
			return nil, err
		}
		if advertiser == nil {
			return nil, invoicedomain.ErrAdvertiserNotFound
		}
		if campaignID != nil {
			campaign, err := s.catalogRepo.GetCampaign(ctx, tx, *campaignID)
			if err != nil {
				return nil, err
			}
			if campaign == nil {
				return nil, invoicedomain.ErrCampaignNotFound
			}
			if campaign.AdvertiserID != advertiserID {
				return nil, invoicedomain.ErrInvalidCampaign.WithMessage("campaign belongs to another advertiser")
			}
			if err := s.ensureNoOpenInvoice(ctx, tx, *campaignID); err != nil {
				return nil, err
			}
		}

		tax, total := invoicedomain.ComputeTotals(amount, taxRate)
		return &invoicedomain.Invoice{
			ID:           s.genID.Generate(),
			AdvertiserID: advertiserID,
			CampaignID:   campaignID,
			LineItems:    lines,
			Amount:       amount,
			TaxRate:      taxRate,
			TaxAmount:    tax,
			TotalAmount:  total,
			DueDate:      dueDate,
			Status:       invoicedomain.InvoiceStatusUnpaid,
			AmountSource: invoicedomain.AmountSourceManual,
			Notes:        strings.TrimSpace(req.Notes),
			CreatedAt:    now,
			UpdatedAt:    now,
		}, nil
	})
	if err != nil {
		if errors.Is(err, errNoBillableAmount) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLineItems.WithMessage("invoice amount must be positive")
		}
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("manual invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("advertiser_id", advertiserID.String()),
	)
	s.emitAudit(ctx, "invoice.created", inv, nil)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvoiceGenerated(ctx, string(inv.AmountSource), inv.TotalAmount.InexactFloat64())
	}
	inv.Project(now)
	return *inv, nil
}

// buildLineItems computes each line amount as quantity × unit price unless
// an explicit amount is supplied, and returns the rounded pre-tax sum.
func buildLineItems(inputs []invoicedomain.LineItemInput) ([]invoicedomain.LineItem, decimal.Decimal, error) {
	lines := make([]invoicedomain.LineItem, 0, len(inputs))
	sum := decimal.Zero
	for i, in := range inputs {
		if in.Quantity.IsNegative() || in.UnitPrice.IsNegative() {
			return nil, decimal.Zero, invoicedomain.ErrInvalidLineItems.WithMessage("line %d has a negative quantity or unit price", i)
		}
		amount := in.Quantity.Mul(in.UnitPrice)
		if in.Amount != nil {
			if in.Amount.IsNegative() {
				return nil, decimal.Zero, invoicedomain.ErrInvalidLineItems.WithMessage("line %d has a negative amount", i)
			}
			amount = *in.Amount
		}
		amount = amount.Round(2)
		lines = append(lines, invoicedomain.LineItem{
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Amount:      amount,
		})
		sum = sum.Add(amount)
	}
	if !sum.IsPositive() {
		return nil, decimal.Zero, invoicedomain.ErrInvalidLineItems.WithMessage("invoice amount must be positive")
	}
	return lines, sum.Round(2), nil
}

// insertInvoice runs prepare and inserts its invoice under the next sequence
// number. A number collision with a concurrent writer retries with a fresh
// transaction and a fresh count; a collision on the open-campaign index does
// not. When the count has not moved since the collided number, the sequence
// steps past it.
func (s *Service) insertInvoice(ctx context.Context, campaignID *snowflake.ID, settings systemconfigdomain.Settings, prepare func(tx *gorm.DB) (*invoicedomain.Invoice, error)) (*invoicedomain.Invoice, error) {
	var lastTried int64
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		var inv *invoicedomain.Invoice
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			prepared, err := prepare(tx)
			if err != nil {
				return err
			}
			count, err := s.invoicerepo.WithTrx(tx).Count(ctx, &invoicedomain.Invoice{})
			if err != nil {
				return err
			}
			seq := nextSequence(count, lastTried)
			lastTried = seq
			number, err := format.FormatInvoiceNumber(settings.InvoiceNumberPrefix, settings.InvoiceNumberWidth, seq)
			if err != nil {
				return err
			}
			prepared.InvoiceNumber = number
			if err := s.invoicerepo.WithTrx(tx).Create(ctx, prepared); err != nil {
				return err
			}
			inv = prepared
			return nil
		})
		if err == nil {
			return inv, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		if campaignID != nil {
			if openErr := s.ensureNoOpenInvoice(ctx, s.db, *campaignID); openErr != nil {
				return nil, openErr
			}
		}
		s.log.Debug("invoice number collision, retrying", zap.Int("attempt", attempt+1))
	}
	return nil, invoicedomain.ErrInvoiceNumberConflict
}

// nextSequence follows the committed count. It only steps past lastTried when
// the count has not moved beyond a number that already collided.
func nextSequence(count, lastTried int64) int64 {
	return max(count+1, lastTried+1)
}

func (s *Service) ensureNoOpenInvoice(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) error {
	count, err := s.invoicerepo.WithTrx(tx).Count(ctx, &invoicedomain.Invoice{},
		option.ApplyOperator(option.Condition{Field: "campaign_id", Operator: option.EQ, Value: campaignID}),
		option.Where("status IN ?", []invoicedomain.InvoiceStatus{
			invoicedomain.InvoiceStatusUnpaid,
			invoicedomain.InvoiceStatusPartiallyPaid,
		}),
	)
	if err != nil {
		return err
	}
	if count > 0 {
		return invoicedomain.ErrOpenInvoiceExists
	}
	return nil
}

func resolveTaxRate(override *decimal.Decimal, settings systemconfigdomain.Settings) (decimal.Decimal, error) {
	if override == nil {
		return settings.TaxRate, nil
	}
	if override.IsNegative() || override.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, invoicedomain.ErrInvalidTaxRate.WithMessage("tax rate must be within [0,1]")
	}
	return *override, nil
}

func resolveDueDate(due *time.Time, now time.Time, settings systemconfigdomain.Settings) time.Time {
	if due != nil {
		return due.UTC()
	}
	return now.AddDate(0, 0, settings.DefaultDueDays)
}

func skipReason(err error) invoicedomain.SkipReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, invoicedomain.ErrCampaignNotFound):
		return invoicedomain.SkipCampaignNotFound
	case errors.Is(err, invoicedomain.ErrOpenInvoiceExists):
		return invoicedomain.SkipOpenInvoice
	case errors.Is(err, errNoBillableAmount):
		return invoicedomain.SkipNoBillableAmount
	default:
		return invoicedomain.SkipFailed
	}
}
