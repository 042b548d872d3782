package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts maps a participant name to a currency amount. It backs both the
// price record and the balance record.
type Amounts map[string]decimal.Decimal

// Names returns the keys in ascending byte order, the canonical iteration
// order used wherever "all participants" is implied.
func (a Amounts) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves name to the stored key. An exact match wins, otherwise the
// first case-insensitive match in Names order.
func (a Amounts) Lookup(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if _, ok := a[name]; ok {
		return name, true
	}
	for _, key := range a.Names() {
		if strings.EqualFold(key, name) {
			return key, true
		}
	}
	return "", false
}

// Clone returns a shallow copy. Decimals are immutable values.
func (a Amounts) Clone() Amounts {
	out := make(Amounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Quantized returns a copy with every value quantized.
func (a Amounts) Quantized() Amounts {
	out := make(Amounts, len(a))
	for k, v := range a {
		out[k] = Quantize(v)
	}
	return out
}

// Sum adds the amounts stored under names, quantized. Unknown names count as zero.
func (a Amounts) Sum(names []string) decimal.Decimal {
	total := decimal.Zero
	for _, name := range names {
		total = total.Add(a[name])
	}
	return Quantize(total)
}

// MarshalJSON writes a flat object of numbers with two decimals.
func (a Amounts) MarshalJSON() ([]byte, error) {
	flat := make(map[string]json.Number, len(a))
	for k, v := range a {
		flat[k] = MoneyNumber(v)
	}
	return json.Marshal(flat)
}

// UnmarshalJSON accepts a flat object of numbers or numeric strings.
// Values are normalized through Money.
func (a *Amounts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	out := make(Amounts, len(raw))
	for name, v := range raw {
		d, err := Money(v)
		if err != nil {
			return fmt.Errorf("value for %q: %w", name, err)
		}
		out[name] = d
	}
	*a = out
	return nil
}
