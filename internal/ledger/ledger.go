// Package ledger owns the billing schema: invoices, payments, partner
// earnings, config overrides, audit rows and the collaborator read models.
package ledger

import (
	"fmt"

	auditdomain "github.com/smallbiznis/adbilling/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"gorm.io/gorm"
)

// OpenCampaignIndex allows at most one UNPAID or PARTIALLY_PAID invoice per campaign.
const OpenCampaignIndex = "ux_invoices_open_campaign"

// EarningPeriodIndex allows one earning per partner and period.
const EarningPeriodIndex = "ux_partner_earnings_period"

func Models() []any {
	return []any{
		&catalogdomain.Advertiser{},
		&catalogdomain.Campaign{},
		&catalogdomain.Partner{},
		&catalogdomain.Device{},
		&catalogdomain.AdDelivery{},
		&catalogdomain.DeviceAnalytics{},
		&paymentdomain.Payment{},
		&invoicedomain.Invoice{},
		&earningdomain.PartnerEarning{},
		&systemconfigdomain.SystemConfig{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models. Production postgres uses
// the embedded SQL migrations instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return ensurePartialIndexes(db)
}

func ensurePartialIndexes(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "postgres", "sqlite":
	default:
		// mysql has no partial indexes; the in-transaction open invoice check stands alone
		return nil
	}
	stmt := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON invoices (campaign_id) WHERE status IN ('%s', '%s') AND campaign_id IS NOT NULL`,
		OpenCampaignIndex,
		invoicedomain.InvoiceStatusUnpaid,
		invoicedomain.InvoiceStatusPartiallyPaid,
	)
	return db.Exec(stmt).Error
}
