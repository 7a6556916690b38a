package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/invoice/format"
	"github.com/smallbiznis/adbilling/internal/invoice/render"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// RenderPDF renders the invoice document together with the invoice it was
// built from.
func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, invoicedomain.Invoice, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, invoicedomain.Invoice{}, err
	}

	view := render.InvoiceView{
		Issuer:        s.issuer,
		InvoiceNumber: invoice.InvoiceNumber,
		Status:        string(invoice.DisplayStatus),
		IssueDate:     invoice.CreatedAt.UTC().Format(dateLayout),
		DueDate:       invoice.DueDate.UTC().Format(dateLayout),
		Subtotal:      format.Money(invoice.Amount),
		TaxLabel:      fmt.Sprintf("Tax (%s)", format.Percent(invoice.TaxRate)),
		Tax:           format.Money(invoice.TaxAmount),
		Total:         format.Money(invoice.TotalAmount),
		Notes:         strings.TrimSpace(invoice.Notes),
	}
	if invoice.PaidAt != nil {
		view.PaidDate = invoice.PaidAt.UTC().Format(dateLayout)
	}

	advertiser, err := s.catalogRepo.GetAdvertiser(ctx, s.db, invoice.AdvertiserID)
	if err != nil {
		return nil, invoicedomain.Invoice{}, err
	}
	if advertiser != nil {
		view.BillToName = advertiser.CompanyName
		view.BillToEmail = advertiser.Email
	} else {
		view.BillToName = invoice.AdvertiserID.String()
	}
	if invoice.CampaignID != nil {
		campaign, err := s.catalogRepo.GetCampaign(ctx, s.db, *invoice.CampaignID)
		if err != nil {
			return nil, invoicedomain.Invoice{}, err
		}
		if campaign != nil {
			view.Campaign = campaign.Name
		}
	}

	for _, item := range invoice.LineItems {
		view.Items = append(view.Items, render.LineView{
			Description: item.Description,
			Quantity:    quantity(item.Quantity),
			UnitPrice:   format.Money(item.UnitPrice),
			Amount:      format.Money(item.Amount),
		})
	}

	doc, err := s.renderer.RenderInvoice(ctx, view)
	if err != nil {
		s.log.Error("failed to render invoice",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
		return nil, invoicedomain.Invoice{}, err
	}
	return doc, invoice, nil
}

func quantity(q decimal.Decimal) string {
	if q.IsInteger() {
		return q.String()
	}
	return q.StringFixed(2)
}
