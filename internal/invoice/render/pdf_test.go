package render

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderInvoiceProducesPDF(t *testing.T) {
	out, err := NewRenderer().RenderInvoice(context.Background(), InvoiceView{
		Issuer:        "adbilling",
		InvoiceNumber: "INV-000001",
		Status:        "UNPAID",
		IssueDate:     "2025-01-01",
		DueDate:       "2025-01-31",
		BillToName:    "Acme Ltd",
		Items: []LineView{{
			Description: "Campaign Spring",
			Quantity:    "1",
			UnitPrice:   "1,000.00",
			Amount:      "1,000.00",
		}},
		Subtotal: "1,000.00",
		TaxLabel: "Tax (16%)",
		Tax:      "160.00",
		Total:    "1,160.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderInvoiceRequiresNumber(t *testing.T) {
	_, err := NewRenderer().RenderInvoice(context.Background(), InvoiceView{})
	assert.Error(t, err)
}
