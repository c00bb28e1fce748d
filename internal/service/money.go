package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL renders d as Brazilian currency: "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	fixed := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$ " + b.String() + "," + frac
}

// money rounds to centavos and drops the sign.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Abs().Round(2)
}
