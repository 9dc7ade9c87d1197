package kinnet

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/amount"
)

// AmountPrecision is the number of fractional digits the ledger stores.
const AmountPrecision = 7

// ParseAmount validates s as a ledger amount: a decimal number with at most
// AmountPrecision fractional digits that fits in an int64 number of stroops.
// Negative amounts are always rejected; zero only when allowZero is set.
func ParseAmount(field, s string, allowZero bool) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, invalidParam(field, "%q is not a number", s)
	}
	switch d.Sign() {
	case -1:
		return decimal.Zero, invalidParam(field, "must not be negative")
	case 0:
		if !allowZero {
			return decimal.Zero, invalidParam(field, "must be positive")
		}
	}
	if !d.Equal(d.Truncate(AmountPrecision)) {
		return decimal.Zero, invalidParam(field, "more than %d digits after the decimal point", AmountPrecision)
	}
	if _, err := amount.ParseInt64(FormatAmount(d)); err != nil {
		return decimal.Zero, invalidParam(field, "%s is out of range", s)
	}
	return d, nil
}

// FormatAmount renders d with exactly AmountPrecision fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPrecision)
}
