// Package ledgertest seeds an in-memory ledger for service tests.
package ledgertest

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/ledger"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	"github.com/smallbiznis/adbilling/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Fixtures struct {
	t        testing.TB
	DB       *gorm.DB
	Node     *snowflake.Node
	invoices int
}

// New opens a migrated in-memory ledger.
func New(t testing.TB) *Fixtures {
	t.Helper()
	conn := db.NewTest(t)
	if err := ledger.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return &Fixtures{t: t, DB: conn, Node: node}
}

func (f *Fixtures) create(v any) {
	f.t.Helper()
	if err := f.DB.Create(v).Error; err != nil {
		f.t.Fatalf("seed %T: %v", v, err)
	}
}

func (f *Fixtures) Advertiser(name string) catalogdomain.Advertiser {
	a := catalogdomain.Advertiser{
		ID:          f.Node.Generate(),
		CompanyName: name,
		Email:       "billing@example.com",
		CreatedAt:   time.Now().UTC(),
	}
	f.create(&a)
	return a
}

type CampaignOption func(*catalogdomain.Campaign)

func WithSpend(spend any) CampaignOption {
	return func(c *catalogdomain.Campaign) {
		c.CostData = datatypes.JSONMap{"spend": spend}
	}
}

func (f *Fixtures) Campaign(advertiserID snowflake.ID, budget string, opts ...CampaignOption) catalogdomain.Campaign {
	c := catalogdomain.Campaign{
		ID:           f.Node.Generate(),
		AdvertiserID: advertiserID,
		Name:         "Campaign",
		Budget:       decimal.RequireFromString(budget),
		CreatedAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	f.create(&c)
	return c
}

// Partner seeds a partner; an empty commission leaves the rate unset.
func (f *Fixtures) Partner(name string, commission string) catalogdomain.Partner {
	p := catalogdomain.Partner{
		ID:        f.Node.Generate(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if commission != "" {
		p.CommissionRate = decimal.NewNullDecimal(decimal.RequireFromString(commission))
	}
	f.create(&p)
	return p
}

func (f *Fixtures) Device(partnerID snowflake.ID) catalogdomain.Device {
	d := catalogdomain.Device{
		ID:        f.Node.Generate(),
		PartnerID: partnerID,
		Name:      "screen",
		CreatedAt: time.Now().UTC(),
	}
	f.create(&d)
	return d
}

type Delivery struct {
	DeviceID    snowflake.ID
	CampaignID  snowflake.ID
	Scheduled   time.Time
	Actual      *time.Time
	Impressions int64
	Engagements int64
	Completions int64
	Status      catalogdomain.DeliveryStatus
}

func (f *Fixtures) Delivery(d Delivery) catalogdomain.AdDelivery {
	if d.Status == "" {
		d.Status = catalogdomain.DeliveryStatusDelivered
	}
	row := catalogdomain.AdDelivery{
		ID:            f.Node.Generate(),
		DeviceID:      d.DeviceID,
		CampaignID:    d.CampaignID,
		ScheduledTime: d.Scheduled.UTC(),
		Impressions:   d.Impressions,
		Engagements:   d.Engagements,
		Completions:   d.Completions,
		Status:        d.Status,
	}
	if d.Actual != nil {
		actual := d.Actual.UTC()
		row.ActualDeliveryTime = &actual
	}
	f.create(&row)
	return row
}

func (f *Fixtures) Analytics(deviceID snowflake.ID, date time.Time, impressions, engagements int64) catalogdomain.DeviceAnalytics {
	row := catalogdomain.DeviceAnalytics{
		ID:                f.Node.Generate(),
		DeviceID:          deviceID,
		Date:              date.UTC(),
		ImpressionsServed: impressions,
		EngagementsCount:  engagements,
	}
	f.create(&row)
	return row
}

// Date is a UTC midnight helper.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Invoice seeds an invoice. Zero fields get defaults: a sequential number,
// UNPAID status, a total of 100.00 with no tax and a due date 30 days out.
func (f *Fixtures) Invoice(inv invoicedomain.Invoice) invoicedomain.Invoice {
	f.invoices++
	now := time.Now().UTC()
	if inv.ID == 0 {
		inv.ID = f.Node.Generate()
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = fmt.Sprintf("SEED-%06d", f.invoices)
	}
	if inv.Status == "" {
		inv.Status = invoicedomain.InvoiceStatusUnpaid
	}
	if inv.Amount.IsZero() {
		inv.Amount = decimal.NewFromInt(100)
	}
	inv.TaxAmount, inv.TotalAmount = invoicedomain.ComputeTotals(inv.Amount, inv.TaxRate)
	if inv.AmountSource == "" {
		inv.AmountSource = invoicedomain.AmountSourceManual
	}
	if inv.LineItems == nil {
		inv.LineItems = []invoicedomain.LineItem{{
			Description: "Seeded",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   inv.Amount,
			Amount:      inv.Amount,
		}}
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.CreatedAt.AddDate(0, 0, 30)
	}
	inv.UpdatedAt = inv.CreatedAt
	f.create(&inv)
	return inv
}

// Payment seeds a payment. Zero fields get defaults: PENDING over OTHER.
func (f *Fixtures) Payment(p paymentdomain.Payment) paymentdomain.Payment {
	now := time.Now().UTC()
	if p.ID == 0 {
		p.ID = f.Node.Generate()
	}
	if p.Status == "" {
		p.Status = paymentdomain.PaymentStatusPending
	}
	if p.Method == "" {
		p.Method = paymentdomain.PaymentMethodOther
	}
	if p.InitiatedAt.IsZero() {
		p.InitiatedAt = now
	}
	if p.Status == paymentdomain.PaymentStatusCompleted && p.CompletedAt == nil {
		completed := p.InitiatedAt
		p.CompletedAt = &completed
	}
	if p.TransactionReference == "" {
		p.TransactionReference = "SEED-" + p.ID.String()
	}
	p.CreatedAt = p.InitiatedAt
	p.UpdatedAt = p.InitiatedAt
	f.create(&p)
	return p
}

// Earning seeds a partner earning row. Zero status is PENDING.
func (f *Fixtures) Earning(e earningdomain.PartnerEarning) earningdomain.PartnerEarning {
	now := time.Now().UTC()
	if e.ID == 0 {
		e.ID = f.Node.Generate()
	}
	if e.Status == "" {
		e.Status = earningdomain.EarningStatusPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt
	f.create(&e)
	return e
}
