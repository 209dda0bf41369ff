package rules

import "github.com/shopspring/decimal"

// FormatCents renders an amount of cents as dollars, e.g. -$0.12.
func FormatCents(cents int64) string {
	amount := decimal.New(cents, -2)
	if amount.IsNegative() {
		return "-$" + amount.Abs().StringFixed(2)
	}
	return "$" + amount.StringFixed(2)
}

// FormatSignedCents renders the difference with an explicit sign, e.g. +$0.05.
func FormatSignedCents(cents int64) string {
	if cents > 0 {
		return "+" + FormatCents(cents)
	}
	return FormatCents(cents)
}
