// Package core provides money normalization and the ledger domain model.
//
// Every monetary value that is parsed, stored or summed passes through
// ToDecimal and Quantize so amounts are exact decimals with two places.
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CentPlaces is the currency minor-unit precision.
const CentPlaces = 2

// ToDecimal converts numeric input to an exact decimal.
//
// Floats are formatted with their shortest round-trip representation and
// parsed back from that string, so 0.1 becomes exactly 0.1 rather than the
// binary approximation. Strings are trimmed before parsing.
//
// Examples:
//   ToDecimal("4.50")  -> 4.5, nil
//   ToDecimal(2.345)   -> 2.345, nil
//   ToDecimal("abc")   -> ErrParse
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%w: missing value", ErrParse)
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, fmt.Errorf("%w: missing value", ErrParse)
		}
		return *x, nil
	case string:
		return parseDecimalString(x)
	case json.Number:
		return parseDecimalString(x.String())
	case float64:
		return floatToDecimal(x, 64)
	case float32:
		return floatToDecimal(float64(x), 32)
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int8:
		return decimal.NewFromInt(int64(x)), nil
	case int16:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint:
		return parseDecimalString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		return decimal.NewFromInt(int64(x)), nil
	case uint16:
		return decimal.NewFromInt(int64(x)), nil
	case uint32:
		return decimal.NewFromInt(int64(x)), nil
	case uint64:
		return parseDecimalString(strconv.FormatUint(x, 10))
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrParse, v)
	}
}

func parseDecimalString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrParse)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrParse, s)
	}
	return d, nil
}

func floatToDecimal(f float64, bitSize int) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: non-finite amount", ErrParse)
	}
	return parseDecimalString(strconv.FormatFloat(f, 'f', -1, bitSize))
}

// Quantize rounds to two fractional digits, half away from zero
// (2.345 -> 2.35, -2.345 -> -2.35).
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// Money normalizes any accepted input into a quantized amount.
// A nil input is treated as absent and yields 0.00.
func Money(v any) (decimal.Decimal, error) {
	if v == nil {
		return Quantize(decimal.Zero), nil
	}
	d, err := ToDecimal(v)
	if err != nil {
		return decimal.Zero, err
	}
	return Quantize(d), nil
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return Quantize(d).StringFixed(CentPlaces)
}

// MoneyNumber renders an amount as a JSON number with two decimals.
func MoneyNumber(d decimal.Decimal) json.Number {
	return json.Number(FormatMoney(d))
}
