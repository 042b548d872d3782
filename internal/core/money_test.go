package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoney(t *testing.T) {
	cases := []struct {
		in  any
		out string
		ok  bool
	}{
		{2.345, "2.35", true}, // half-up
		{"2.345", "2.35", true},
		{"2.344", "2.34", true},
		{-2.345, "-2.35", true},
		{nil, "0.00", true},
		{0.1, "0.10", true},
		{4.5, "4.50", true},
		{3, "3.00", true},
		{int64(-7), "-7.00", true},
		{uint(12), "12.00", true},
		{float32(1.005), "1.01", true},
		{" 10.005 ", "10.01", true},
		{json.Number("5"), "5.00", true},
		{decimal.RequireFromString("0.005"), "0.01", true},
		{"abc", "", false},
		{"", "", false},
		{math.NaN(), "", false},
		{math.Inf(1), "", false},
		{true, "", false},
	}
	for _, tc := range cases {
		got, err := Money(tc.in)
		if tc.ok {
			if err != nil || got.StringFixed(2) != tc.out {
				t.Fatalf("%v expected %s, got %s (err=%v)", tc.in, tc.out, got.StringFixed(2), err)
			}
		} else {
			if err == nil {
				t.Fatalf("%v expected error", tc.in)
			}
			if !errors.Is(err, ErrParse) {
				t.Fatalf("%v expected ErrParse, got %v", tc.in, err)
			}
		}
	}
}

func TestToDecimalUsesStringIntermediate(t *testing.T) {
	d, err := ToDecimal(0.1)
	if err != nil {
		t.Fatalf("ToDecimal: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expected exactly 0.1, got %s", d.String())
	}
	if _, err := ToDecimal(nil); !errors.Is(err, ErrParse) {
		t.Fatalf("nil should not parse, got %v", err)
	}
}

func TestQuantizeIsIdempotent(t *testing.T) {
	for _, s := range []string{"1.234", "1.235", "-0.005", "99999.995"} {
		once := Quantize(decimal.RequireFromString(s))
		if !Quantize(once).Equal(once) {
			t.Fatalf("quantize not idempotent for %s", s)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(decimal.NewFromInt(5)); got != "5.00" {
		t.Fatalf("FormatMoney(5) = %s", got)
	}
	if got := string(MoneyNumber(decimal.RequireFromString("-1.5"))); got != "-1.50" {
		t.Fatalf("MoneyNumber(-1.5) = %s", got)
	}
}
