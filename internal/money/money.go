// Package money parses and carries currency amounts as exact decimals.
//
// Spreadsheet cells and webhook payloads report amounts loosely: plain JSON
// numbers, formatted strings like "฿1,234.50", accounting negatives like
// "(120.00)", or empty cells. Everything is normalised to decimal.Decimal.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Zero is the zero amount.
var Zero = decimal.Zero

// Parse converts a formatted amount to a decimal. Empty input is zero.
// Currency codes and symbols are accepted only before or after the number.
func Parse(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	invalid := fmt.Errorf("invalid amount %q", raw)

	negative := false
	// Signs, parentheses and currency nest in either order: "-฿5", "฿(5)", "(THB 5)".
	for stripping := true; stripping; {
		s = strings.TrimFunc(s, isDecoration)
		switch {
		case len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')':
			negative = !negative
			s = s[1 : len(s)-1]
		case strings.HasPrefix(s, "-"):
			negative = !negative
			s = s[1:]
		case strings.HasPrefix(s, "+"):
			s = s[1:]
		default:
			stripping = false
		}
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',', unicode.IsSpace(r):
		default:
			return decimal.Zero, invalid
		}
	}

	digits := b.String()
	if digits == "" || digits == "." {
		return decimal.Zero, invalid
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// isDecoration matches currency text around an amount: ISO codes ("THB"),
// spelled symbols ("Rs") and signs such as ฿ or $.
func isDecoration(r rune) bool {
	return unicode.IsUpper(r) || r == 's' || unicode.Is(unicode.Sc, r) || unicode.IsSpace(r)
}

// Amount is a decimal that decodes from JSON numbers or formatted strings
// and encodes as a JSON number with two decimal places.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// UnmarshalJSON accepts numbers, strings and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		d, err := Parse(s)
		if err != nil {
			return err
		}
		a.Decimal = d
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	a.Decimal = d
	return nil
}

// MarshalJSON writes the amount as a number rounded to cents.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.StringFixed(2)), nil
}
