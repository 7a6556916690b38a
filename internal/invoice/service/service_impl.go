package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/invoice/render"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"github.com/smallbiznis/adbilling/pkg/db"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"github.com/smallbiznis/adbilling/pkg/db/pagination"
	"github.com/smallbiznis/adbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        invoicedomain.Repository
	CatalogRepo catalogdomain.Repository
	Settings    systemconfigdomain.Service
	PaymentSvc  paymentdomain.Service
	Renderer    render.Renderer
	Resolver    invoicedomain.AmountResolver `optional:"true"`
	AuditSvc    auditdomain.Service          `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics          `optional:"true"`
	JobMetrics  *obsmetrics.JobMetrics       `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	workers     int
	issuer      string
	repo        invoicedomain.Repository
	catalogRepo catalogdomain.Repository
	settings    systemconfigdomain.Service
	paymentSvc  paymentdomain.Service
	renderer    render.Renderer
	resolver    invoicedomain.AmountResolver
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
	jobMetrics  *obsmetrics.JobMetrics

	invoicerepo repository.Repository[invoicedomain.Invoice]
	paymentrepo repository.Repository[paymentdomain.Payment]
}

func NewService(p ServiceParam) invoicedomain.Service {
	resolver := p.Resolver
	if resolver == nil {
		resolver = invoicedomain.DefaultAmountResolver()
	}
	workers := p.Cfg.JobWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		workers:     workers,
		issuer:      p.Cfg.AppName,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		settings:    p.Settings,
		paymentSvc:  p.PaymentSvc,
		renderer:    p.Renderer,
		resolver:    resolver,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
		jobMetrics:  p.JobMetrics,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		paymentrepo: repository.ProvideStore[paymentdomain.Payment](p.DB),
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	item, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if item == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	item.Project(s.clock.Now())
	return *item, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	now := s.clock.Now().UTC()
	filters, err := listFilters(req, now)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	summary, err := s.repo.Summarize(ctx, s.db, now, filters...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	page := req.Pagination.Normalize()
	options := append(filters,
		option.WithSortBy(option.QuerySortBy{Default: "created_at", Desc: true}),
		option.WithLimit(page.Limit()),
		option.WithOffset(page.Offset()),
	)
	items, err := s.invoicerepo.Find(ctx, nil, options...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		item.Project(now)
		invoices = append(invoices, *item)
	}

	return invoicedomain.ListInvoiceResponse{
		Invoices:   invoices,
		Pagination: pagination.BuildPageInfo(page, summary.Count),
		Summary:    summary,
	}, nil
}

func listFilters(req invoicedomain.ListInvoiceRequest, now time.Time) ([]option.QueryOption, error) {
	var filters []option.QueryOption
	if strings.TrimSpace(req.Status) != "" {
		status, ok := invoicedomain.ParseInvoiceStatus(req.Status)
		if !ok {
			return nil, invoicedomain.ErrInvalidStatus
		}
		switch status {
		case invoicedomain.InvoiceStatusOverdue:
			filters = append(filters, option.Where("(status = ? OR (status = ? AND due_date < ?))",
				invoicedomain.InvoiceStatusOverdue, invoicedomain.InvoiceStatusUnpaid, now))
		case invoicedomain.InvoiceStatusUnpaid:
			// overdue invoices are listed under OVERDUE
			filters = append(filters, option.Where("(status = ? AND due_date >= ?)", invoicedomain.InvoiceStatusUnpaid, now))
		default:
			filters = append(filters, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: status}))
		}
	}
	if strings.TrimSpace(req.AdvertiserID) != "" {
		advertiserID, err := parseID(req.AdvertiserID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidAdvertiser
		}
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "advertiser_id", Operator: option.EQ, Value: advertiserID}))
	}
	if strings.TrimSpace(req.CampaignID) != "" {
		campaignID, err := parseID(req.CampaignID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidCampaign
		}
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "campaign_id", Operator: option.EQ, Value: campaignID}))
	}

	created, err := dateRange("created_at", req.CreatedFrom, req.CreatedTo)
	if err != nil {
		return nil, err
	}
	filters = append(filters, created...)
	due, err := dateRange("due_date", req.DueFrom, req.DueTo)
	if err != nil {
		return nil, err
	}
	filters = append(filters, due...)

	var lo, hi *decimal.Decimal
	if v := strings.TrimSpace(req.TotalMin); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, invoicedomain.ErrInvalidRange.WithMessage("total_min is not a number")
		}
		lo = &d
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "total_amount", Operator: option.GTE, Value: d}))
	}
	if v := strings.TrimSpace(req.TotalMax); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, invoicedomain.ErrInvalidRange.WithMessage("total_max is not a number")
		}
		hi = &d
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "total_amount", Operator: option.LTE, Value: d}))
	}
	if lo != nil && hi != nil && lo.GreaterThan(*hi) {
		return nil, invoicedomain.ErrInvalidRange.WithMessage("total_min must not exceed total_max")
	}

	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		pattern := "%" + search + "%"
		filters = append(filters, option.Where(
			"(LOWER(invoice_number) LIKE ? OR advertiser_id IN (SELECT id FROM advertisers WHERE LOWER(company_name) LIKE ?))",
			pattern, pattern,
		))
	}
	return filters, nil
}

// dateRange filters field on calendar dates; to includes the whole day.
func dateRange(field string, from, to *time.Time) ([]option.QueryOption, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, invoicedomain.ErrInvalidRange.WithMessage("%s range is inverted", field)
	}
	var filters []option.QueryOption
	if from != nil {
		filters = append(filters, option.ApplyOperator(option.Condition{Field: field, Operator: option.GTE, Value: from.UTC()}))
	}
	if to != nil {
		filters = append(filters, option.ApplyOperator(option.Condition{Field: field, Operator: option.LT, Value: to.UTC().AddDate(0, 0, 1)}))
	}
	return filters, nil
}

// UpdateStatus sets an explicit status. PAID set here bypasses payment
// linkage.
func (s *Service) UpdateStatus(ctx context.Context, id string, status string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	to, ok := invoicedomain.ParseInvoiceStatus(status)
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus
	}

	now := s.clock.Now().UTC()
	var from invoicedomain.InvoiceStatus
	invoice, err := s.mutate(ctx, invoiceID, func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		from = inv.Status
		if err := invoicedomain.EnsureInvoiceCanTransition(from, to); err != nil {
			return nil, err
		}
		if from == to {
			return nil, nil
		}
		updates := map[string]any{"status": to, "updated_at": now}
		switch to {
		case invoicedomain.InvoiceStatusPaid:
			if inv.PaidAt == nil {
				updates["paid_at"] = now
			}
		case invoicedomain.InvoiceStatusCancelled:
			updates["cancelled_at"] = now
		}
		return updates, nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if from != to {
		s.log.Info("invoice status updated",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		s.emitAudit(ctx, "invoice.status_updated", &invoice, map[string]any{"previous_status": string(from)})
	}
	return invoice, nil
}

// Cancel sets CANCELLED. A linked payment is left untouched.
func (s *Service) Cancel(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	now := s.clock.Now().UTC()
	var from invoicedomain.InvoiceStatus
	invoice, err := s.mutate(ctx, invoiceID, func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		from = inv.Status
		if from == invoicedomain.InvoiceStatusCancelled {
			return nil, nil
		}
		return map[string]any{
			"status":       invoicedomain.InvoiceStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		}, nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if from != invoicedomain.InvoiceStatusCancelled {
		s.log.Info("invoice cancelled", zap.String("invoice_id", invoiceID.String()))
		s.emitAudit(ctx, "invoice.cancelled", &invoice, map[string]any{"previous_status": string(from)})
	}
	return invoice, nil
}

func (s *Service) LinkPayment(ctx context.Context, invoiceID string, paymentID string) (invoicedomain.Invoice, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	if strings.TrimSpace(paymentID) == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrPaymentRequired
	}
	pid, err := parseID(paymentID)
	if err != nil {
		return invoicedomain.Invoice{}, paymentdomain.ErrInvalidPaymentID
	}

	now := s.clock.Now().UTC()
	invoice, err := s.mutate(ctx, id, func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		payment, err := s.paymentrepo.WithTrx(tx).FindOne(ctx, &paymentdomain.Payment{ID: pid})
		if err != nil {
			return nil, err
		}
		if payment == nil {
			return nil, paymentdomain.ErrPaymentNotFound
		}
		if err := inv.LinkPayment(invoicedomain.PaymentLink{
			ID:           payment.ID,
			AdvertiserID: payment.AdvertiserID,
			Completed:    payment.Status == paymentdomain.PaymentStatusCompleted,
			Refunded:     payment.Status == paymentdomain.PaymentStatusRefunded,
		}, now); err != nil {
			return nil, err
		}
		return map[string]any{
			"payment_id": inv.PaymentID,
			"status":     inv.Status,
			"paid_at":    inv.PaidAt,
			"updated_at": inv.UpdatedAt,
		}, nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("payment linked to invoice",
		zap.String("invoice_id", id.String()),
		zap.String("payment_id", pid.String()),
		zap.String("status", string(invoice.Status)),
	)
	s.emitAudit(ctx, "invoice.payment_linked", &invoice, map[string]any{"payment_id": pid.String()})
	return invoice, nil
}

func (s *Service) ApplyAction(ctx context.Context, id string, req invoicedomain.ActionRequest) (invoicedomain.Invoice, error) {
	switch invoicedomain.InvoiceAction(strings.ToLower(strings.TrimSpace(req.Action))) {
	case invoicedomain.ActionUpdateStatus:
		if strings.TrimSpace(req.Status) == "" {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus.WithMessage("status is required")
		}
		return s.UpdateStatus(ctx, id, req.Status)
	case invoicedomain.ActionLinkPayment:
		return s.LinkPayment(ctx, id, req.PaymentID)
	case invoicedomain.ActionCancel:
		return s.Cancel(ctx, id)
	case invoicedomain.ActionRecordPayment:
		if _, err := s.paymentSvc.GeneratePaymentForInvoice(ctx, id); err != nil {
			return invoicedomain.Invoice{}, err
		}
		return s.GetByID(ctx, id)
	default:
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAction
	}
}

// mutate locks the invoice, lets apply compute the column updates and writes
// them. A nil update map leaves the row as it is.
func (s *Service) mutate(ctx context.Context, id snowflake.ID, apply func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error)) (invoicedomain.Invoice, error) {
	var out invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.invoicerepo.WithTrx(tx)
		inv, err := store.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		updates, err := apply(tx, inv)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := store.Update(ctx, id, updates); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return invoicedomain.ErrOpenInvoiceExists.WithMessage("campaign already has an open invoice")
				}
				return err
			}
		}
		reloaded, err := store.FindOne(ctx, &invoicedomain.Invoice{ID: id})
		if err != nil {
			return err
		}
		if reloaded == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		out = *reloaded
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	out.Project(s.clock.Now())
	return out, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"advertiser_id":  invoice.AdvertiserID.String(),
		"status":         string(invoice.Status),
		"total_amount":   invoice.TotalAmount.StringFixed(2),
		"amount_source":  string(invoice.AmountSource),
	}
	if invoice.CampaignID != nil {
		metadata["campaign_id"] = invoice.CampaignID.String()
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to audit invoice", zap.String("action", action), zap.Error(err))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
