package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
	"github.com/smallbiznis/adbilling/internal/clock"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"github.com/smallbiznis/adbilling/pkg/db/option"
	"github.com/smallbiznis/adbilling/pkg/db/pagination"
	"github.com/smallbiznis/adbilling/pkg/repository"
	"github.com/smallbiznis/adbilling/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	CatalogRepo catalogdomain.Repository
	Settings    systemconfigdomain.Service
	AuditSvc    auditdomain.Service `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	catalogRepo catalogdomain.Repository
	settings    systemconfigdomain.Service
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics

	paymentrepo repository.Repository[paymentdomain.Payment]
	invoicerepo repository.Repository[invoicedomain.Invoice]
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		settings:    p.Settings,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,

		paymentrepo: repository.ProvideStore[paymentdomain.Payment](p.DB),
		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

func (s *Service) CreatePayment(ctx context.Context, req paymentdomain.CreatePaymentRequest) (paymentdomain.Payment, error) {
	if err := validation.Struct(req); err != nil {
		return paymentdomain.Payment{}, err
	}
	advertiserID, err := parseID(req.AdvertiserID)
	if err != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAdvertiser
	}
	if !req.Amount.IsPositive() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	method, ok := paymentdomain.ParsePaymentMethod(req.Method)
	if !ok {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}
	status := paymentdomain.PaymentStatusPending
	if strings.TrimSpace(req.Status) != "" {
		status, ok = paymentdomain.ParsePaymentStatus(req.Status)
		if !ok {
			return paymentdomain.Payment{}, paymentdomain.ErrInvalidStatus
		}
	}
	if status == paymentdomain.PaymentStatusRefunded {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidStatus.WithMessage("a payment cannot be recorded as refunded")
	}
	invoiceIDs := make([]snowflake.ID, 0, len(req.InvoiceIDs))
	for _, raw := range req.InvoiceIDs {
		id, err := parseID(raw)
		if err != nil {
			return paymentdomain.Payment{}, invoicedomain.ErrInvalidInvoiceID
		}
		invoiceIDs = append(invoiceIDs, id)
	}

	now := s.clock.Now().UTC()
	payment := paymentdomain.Payment{
		ID:                   s.genID.Generate(),
		AdvertiserID:         advertiserID,
		Amount:               req.Amount.Round(2),
		Method:               method,
		Status:               status,
		InitiatedAt:          now,
		TransactionReference: strings.TrimSpace(req.TransactionReference),
		Notes:                strings.TrimSpace(req.Notes),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if payment.TransactionReference == "" {
		payment.TransactionReference = newReference()
	}
	if status == paymentdomain.PaymentStatusCompleted {
		payment.CompletedAt = &now
	}

	var linked []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		advertiser, err := s.catalogRepo.GetAdvertiser(ctx, tx, advertiserID)
		if err != nil {
			return err
		}
		if advertiser == nil {
			return paymentdomain.ErrAdvertiserNotFound
		}
		if err := s.paymentrepo.WithTrx(tx).Create(ctx, &payment); err != nil {
			return err
		}
		for _, invoiceID := range invoiceIDs {
			if err := s.linkInvoice(ctx, tx, invoiceID, payment, now); err != nil {
				return err
			}
			linked = append(linked, invoiceID.String())
		}
		return nil
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("advertiser_id", advertiserID.String()),
		zap.String("status", string(status)),
		zap.Int("linked_invoices", len(linked)),
	)
	s.emitAudit(ctx, "payment.created", &payment, map[string]any{
		"linked_invoices": linked,
	})
	return payment, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (paymentdomain.Payment, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentID
	}
	item, err := s.paymentrepo.FindOne(ctx, &paymentdomain.Payment{ID: paymentID})
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if item == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentRequest) (paymentdomain.ListPaymentResponse, error) {
	filters, err := listFilters(req)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	summary, err := s.repo.Summarize(ctx, s.db, filters...)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	page := req.Pagination.Normalize()
	options := append(filters,
		option.WithSortBy(option.QuerySortBy{Default: "initiated_at", Desc: true}),
		option.WithLimit(page.Limit()),
		option.WithOffset(page.Offset()),
	)
	items, err := s.paymentrepo.Find(ctx, nil, options...)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	return paymentdomain.ListPaymentResponse{
		Payments:   payments,
		Pagination: pagination.BuildPageInfo(page, summary.Count),
		Summary:    summary,
	}, nil
}

func listFilters(req paymentdomain.ListPaymentRequest) ([]option.QueryOption, error) {
	var filters []option.QueryOption
	if strings.TrimSpace(req.Status) != "" {
		status, ok := paymentdomain.ParsePaymentStatus(req.Status)
		if !ok {
			return nil, paymentdomain.ErrInvalidStatus
		}
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: status}))
	}
	if strings.TrimSpace(req.Method) != "" {
		method, ok := paymentdomain.ParsePaymentMethod(req.Method)
		if !ok {
			return nil, paymentdomain.ErrInvalidMethod
		}
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "method", Operator: option.EQ, Value: method}))
	}
	if strings.TrimSpace(req.AdvertiserID) != "" {
		advertiserID, err := parseID(req.AdvertiserID)
		if err != nil {
			return nil, paymentdomain.ErrInvalidAdvertiser
		}
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "advertiser_id", Operator: option.EQ, Value: advertiserID}))
	}

	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return nil, paymentdomain.ErrInvalidRange.WithMessage("from must not be after to")
	}
	if req.From != nil {
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "initiated_at", Operator: option.GTE, Value: req.From.UTC()}))
	}
	if req.To != nil {
		// to is a calendar date and includes the whole day
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "initiated_at", Operator: option.LT, Value: req.To.UTC().AddDate(0, 0, 1)}))
	}

	amountFilters, err := amountRange("amount", req.AmountMin, req.AmountMax)
	if err != nil {
		return nil, err
	}
	filters = append(filters, amountFilters...)

	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		pattern := "%" + search + "%"
		filters = append(filters, option.Where("(LOWER(transaction_reference) LIKE ? OR LOWER(notes) LIKE ?)", pattern, pattern))
	}
	return filters, nil
}

func amountRange(field, rawMin, rawMax string) ([]option.QueryOption, error) {
	var filters []option.QueryOption
	var lo, hi *decimal.Decimal
	if v := strings.TrimSpace(rawMin); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, paymentdomain.ErrInvalidRange.WithMessage("amount_min is not a number")
		}
		lo = &d
		filters = append(filters, option.ApplyOperator(option.Condition{Field: field, Operator: option.GTE, Value: d}))
	}
	if v := strings.TrimSpace(rawMax); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, paymentdomain.ErrInvalidRange.WithMessage("amount_max is not a number")
		}
		hi = &d
		filters = append(filters, option.ApplyOperator(option.Condition{Field: field, Operator: option.LTE, Value: d}))
	}
	if lo != nil && hi != nil && lo.GreaterThan(*hi) {
		return nil, paymentdomain.ErrInvalidRange.WithMessage("amount_min must not exceed amount_max")
	}
	return filters, nil
}

// GeneratePaymentForInvoice records the expected payment for an invoice and
// links it. The payment starts PENDING so the invoice status is unchanged.
func (s *Service) GeneratePaymentForInvoice(ctx context.Context, invoiceID string) (paymentdomain.Payment, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return paymentdomain.Payment{}, invoicedomain.ErrInvalidInvoiceID
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	now := s.clock.Now().UTC()
	var payment paymentdomain.Payment
	var invoiceNumber string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoicerepo.WithTrx(tx).FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if err := invoicedomain.EnsureInvoiceCanRecordPayment(invoice.Status); err != nil {
			return err
		}
		invoiceNumber = invoice.InvoiceNumber

		payment = paymentdomain.Payment{
			ID:                   s.genID.Generate(),
			AdvertiserID:         invoice.AdvertiserID,
			Amount:               invoice.TotalAmount.Round(2),
			Method:               settings.DefaultPaymentMethod,
			Status:               paymentdomain.PaymentStatusPending,
			InitiatedAt:          now,
			TransactionReference: newReference(),
			Notes:                "Payment for invoice " + invoice.InvoiceNumber,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.paymentrepo.WithTrx(tx).Create(ctx, &payment); err != nil {
			return err
		}
		return s.applyLink(ctx, tx, invoice, payment, now)
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.log.Info("payment generated for invoice",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", id.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	s.emitAudit(ctx, "payment.generated", &payment, map[string]any{
		"invoice_id":     id.String(),
		"invoice_number": invoiceNumber,
	})
	return payment, nil
}

func (s *Service) linkInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, payment paymentdomain.Payment, now time.Time) error {
	invoice, err := s.invoicerepo.WithTrx(tx).FindForUpdate(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return invoicedomain.ErrInvoiceNotFound
	}
	return s.applyLink(ctx, tx, invoice, payment, now)
}

func (s *Service) applyLink(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, payment paymentdomain.Payment, now time.Time) error {
	if err := invoice.LinkPayment(invoicedomain.PaymentLink{
		ID:           payment.ID,
		AdvertiserID: payment.AdvertiserID,
		Completed:    payment.Status == paymentdomain.PaymentStatusCompleted,
		Refunded:     payment.Status == paymentdomain.PaymentStatusRefunded,
	}, now); err != nil {
		return err
	}
	return s.invoicerepo.WithTrx(tx).Update(ctx, invoice.ID, map[string]any{
		"payment_id": invoice.PaymentID,
		"status":     invoice.Status,
		"paid_at":    invoice.PaidAt,
		"updated_at": invoice.UpdatedAt,
	})
}

func (s *Service) emitAudit(ctx context.Context, action string, payment *paymentdomain.Payment, extra map[string]any) {
	if s.auditSvc == nil || payment == nil {
		return
	}
	metadata := map[string]any{
		"advertiser_id":         payment.AdvertiserID.String(),
		"amount":                payment.Amount.StringFixed(2),
		"method":                string(payment.Method),
		"status":                string(payment.Status),
		"transaction_reference": payment.TransactionReference,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := payment.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "payment", &targetID, metadata); err != nil {
		s.log.Warn("failed to audit payment", zap.String("action", action), zap.Error(err))
	}
}

func newReference() string {
	return "PAY-" + ulid.Make().String()
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
