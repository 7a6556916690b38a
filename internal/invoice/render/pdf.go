package render

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceView is the formatted, render-ready invoice.
type InvoiceView struct {
	Issuer        string
	InvoiceNumber string
	Status        string
	IssueDate     string
	DueDate       string
	PaidDate      string

	BillToName  string
	BillToEmail string
	Campaign    string

	Items []LineView

	Subtotal string
	TaxLabel string
	Tax      string
	Total    string
	Notes    string
}

type LineView struct {
	Description string
	Quantity    string
	UnitPrice   string
	Amount      string
}

type Renderer interface {
	RenderInvoice(ctx context.Context, view InvoiceView) ([]byte, error)
}

type PDFRenderer struct{}

func NewRenderer() Renderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) RenderInvoice(ctx context.Context, view InvoiceView) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if view.InvoiceNumber == "" {
		return nil, fmt.Errorf("invoice number is required")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, view.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+view.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+view.IssueDate, props.Text{Top: 5}),
			text.New("Date due: "+view.DueDate, props.Text{Top: 10}),
			text.New("Date paid: "+dash(view.PaidDate), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New(view.Issuer, props.Text{Style: fontstyle.Bold, Align: align.Right}),
		),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(view.BillToName, props.Text{Top: 5}),
			text.New(view.BillToEmail, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Campaign", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(dash(view.Campaign), props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, view.Total+" due "+view.DueDate, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range view.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, view.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, view.TaxLabel, props.Text{Size: 9}),
		text.NewCol(2, view.Tax, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, view.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if view.Notes != "" {
		m.AddRow(20,
			col.New(12).Add(
				text.New("Notes", props.Text{Style: fontstyle.Bold, Size: 9, Top: 4}),
				text.New(view.Notes, props.Text{Size: 9, Top: 9}),
			),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
