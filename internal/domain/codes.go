package domain

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedCardNo is returned when a card number is not an integer after
// trimming. It is a data contract breach and fails the whole batch.
var ErrMalformedCardNo = errors.New("malformed card number")

// ParseCardNo trims s and parses it as a base 10 integer.
func ParseCardNo(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrMalformedCardNo
	}
	return v, nil
}

// ParseCode coerces a product or group code to an integer. Empty, non-numeric
// and fractional values are reported as absent rather than as errors.
func ParseCode(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	return d.IntPart(), true
}

// CodeText renders a numeric code the way it is displayed in exports:
// integral values without a fraction ("8.0" is "8") and fractional values
// as they are ("7.5"). Non-numeric values are empty.
func CodeText(s string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return d.String()
}
