// Package money converts between integer cents and the decimal reais used by
// the payment gateway and the FIPE price table.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Reais converts cents to a two-place decimal amount.
func Reais(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred).Round(2)
}

// Cents converts a reais amount to cents, rounding half away from zero.
func Cents(reais decimal.Decimal) int64 {
	return reais.Mul(hundred).Round(0).IntPart()
}

// ParseBRL parses amounts such as "R$ 45.678,90", "45678.90" or "45678".
func ParseBRL(value string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(value)
	prefixed := strings.HasPrefix(clean, "R$")
	clean = strings.TrimPrefix(clean, "R$")
	clean = strings.ReplaceAll(clean, " ", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	// Brazilian notation uses dots for thousands and a comma for cents.
	if strings.Contains(clean, ",") || prefixed {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	}
	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return amount, nil
}

// FormatBRL renders an amount as "R$ 45.678,90".
func FormatBRL(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	out := "R$ " + grouped.String() + "," + frac
	if negative {
		return "-" + out
	}
	return out
}
