package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatInvoiceNumber joins prefix and a zero-padded sequence, e.g.
// FormatInvoiceNumber("INV-", 6, 1) == "INV-000001". Sequences wider than
// width are printed in full.
func FormatInvoiceNumber(prefix string, width int, seq int64) (string, error) {
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	if width <= 0 {
		return "", fmt.Errorf("invalid invoice number width: %d", width)
	}
	if strings.ContainsAny(prefix, " \t\n") {
		return "", fmt.Errorf("invoice number prefix must not contain whitespace")
	}
	return fmt.Sprintf("%s%0*d", prefix, width, seq), nil
}

// Money renders an amount with two decimals and thousands separators.
func Money(amount decimal.Decimal) string {
	fixed := amount.Round(2).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

// Percent renders a fractional rate as a percentage, e.g. 0.16 -> "16%".
func Percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).Round(4).String() + "%"
}
