// Package money validates monetary amounts supplied as decimal strings.
// Transfer amounts arrive as text and are compared exactly, so a value
// like "0.009999999" can never round up past a minimum.
package money

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/apperr"
)

var decimalStringRe = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

// IsDecimalString reports whether value is a plain unsigned decimal
// literal. Signs, exponents, and thousands separators are rejected.
func IsDecimalString(value string) bool {
	return decimalStringRe.MatchString(strings.TrimSpace(value))
}

// DecimalPlaces returns the number of fractional digits in value.
func DecimalPlaces(value string) int {
	v := strings.TrimSpace(value)
	dot := strings.IndexByte(v, '.')
	if dot == -1 {
		return 0
	}
	return len(v) - dot - 1
}

// Compare compares two decimal strings exactly. It returns -1, 0, or 1,
// and false when either input is not a decimal string.
func Compare(a, b string) (int, bool) {
	if !IsDecimalString(a) || !IsDecimalString(b) {
		return 0, false
	}
	da, err := decimal.NewFromString(strings.TrimSpace(a))
	if err != nil {
		return 0, false
	}
	db, err := decimal.NewFromString(strings.TrimSpace(b))
	if err != nil {
		return 0, false
	}
	return da.Cmp(db), true
}

// ParseTransferAmount parses a transfer amount string: positive, at most
// maxDecimals fractional digits, and at least min.
func ParseTransferAmount(value string, maxDecimals int, min decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(value)
	if !IsDecimalString(v) {
		return decimal.Decimal{}, apperr.Validation("amount must be a decimal string")
	}
	if DecimalPlaces(v) > maxDecimals {
		return decimal.Decimal{}, apperr.Validation("amount has too many decimal places")
	}
	amount, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, apperr.Validation("amount is invalid")
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, apperr.Validation("amount must be greater than 0")
	}
	if cmp, ok := Compare(v, min.String()); !ok || cmp < 0 {
		return decimal.Decimal{}, apperr.Validation("minimum transfer amount is " + min.String() + " USDT")
	}
	return amount, nil
}
