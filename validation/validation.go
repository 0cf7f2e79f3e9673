// Package validation collects field-level violations for request payloads.
package validation

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

var maxInt32 = decimal.NewFromInt(math.MaxInt32)

// PositiveInteger requires a whole number in [1, MaxInt32].
func PositiveInteger(field string, val decimal.Decimal, v Violations) {
	switch {
	case !val.IsInteger():
		v[field] = "must_be_integer"
	case !val.IsPositive():
		v[field] = "must_be_positive"
	case val.GreaterThan(maxInt32):
		v[field] = "out_of_range"
	}
}

func PositiveDecimal(field string, val decimal.Decimal, v Violations) {
	if !val.IsPositive() {
		v[field] = "must_be_positive"
	}
}

func NonNegativeDecimal(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v[field] = "must_not_be_negative"
	}
}

// MaxDecimal rejects values above limit.
func MaxDecimal(field string, val, limit decimal.Decimal, v Violations) {
	if _, exists := v[field]; exists {
		return
	}
	if val.GreaterThan(limit) {
		v[field] = "out_of_range"
	}
}

// MaxPlaces rejects values carrying more fractional digits than the column stores.
func MaxPlaces(field string, val decimal.Decimal, places int32, v Violations) {
	if _, exists := v[field]; exists {
		return
	}
	if !val.Equal(val.Truncate(places)) {
		v[field] = "too_many_decimals"
	}
}

func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_choice"
}
