package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	TieLeastRecent TieStrategy = "least_recent"
	TieAlpha       TieStrategy = "alpha"
	TieRandom      TieStrategy = "random"
	TieRoundRobin  TieStrategy = "round_robin"
)

const (
	RecordPrices   = "prices"
	RecordBalances = "balances"

	// NameMaxLength bounds a participant name in runes.
	NameMaxLength = 40
	// PeopleSeparator joins participant names in a history row. It is not a
	// valid name character.
	PeopleSeparator = "|"

	TimestampLayout = "2006-01-02T15:04:05-07:00"
)

type (
	// TieStrategy names the rule used to pick among payers tied at the
	// minimum balance. Unknown values are allowed and behave as least_recent.
	TieStrategy string

	HistoryEntry struct {
		Timestamp string
		Payer     string
		TotalCost decimal.Decimal
		People    []string
	}

	State struct {
		Prices   Amounts        `json:"prices"`
		Balances Amounts        `json:"balances"`
		History  []HistoryEntry `json:"history"`
	}

	// NextPayer is the read-only preview of the next round.
	NextPayer struct {
		Payer     string
		TotalCost decimal.Decimal
		Included  []string
		Tie       TieStrategy
	}

	RoundResult struct {
		Timestamp string
		Payer     string
		TotalCost decimal.Decimal
		Included  []string
		Tie       TieStrategy
		Prices    Amounts
		Balances  Amounts
		History   []HistoryEntry
	}

	ValidationError struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	}

	ValidationErrors []ValidationError
)

var (
	ErrParse                  = errors.New("parse error")
	ErrValidation             = errors.New("validation error")
	ErrNoMatchingParticipants = errors.New("no provided people match prices")
	ErrNoEligibleCandidates   = errors.New("no eligible candidates")
	ErrNotFound               = errors.New("not found")
)

// NormalizeStrategy trims and lowercases s; empty means least_recent.
func NormalizeStrategy(s string) TieStrategy {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TieLeastRecent
	}
	return TieStrategy(s)
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e ValidationError) Unwrap() error { return ErrValidation }

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrValidation }

// ValidateName trims name and checks it is 1-40 characters of letters,
// spaces, hyphens and apostrophes.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > NameMaxLength {
		return "", ValidationError{Field: "name", Reason: fmt.Sprintf("must be 1-%d characters", NameMaxLength)}
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == ' ', r == '-', r == '\'':
		default:
			return "", ValidationError{Field: "name", Reason: "only letters, spaces, hyphen and apostrophe are allowed"}
		}
	}
	return name, nil
}

var maxPrice = decimal.New(1, 10)

// ValidatePrice parses v and requires a positive amount of at most twelve
// digits. The result is quantized.
func ValidatePrice(v any) (decimal.Decimal, error) {
	d, err := ToDecimal(v)
	if err != nil {
		return decimal.Zero, ValidationError{Field: "price", Reason: "must be a number"}
	}
	d = Quantize(d)
	if d.Sign() <= 0 {
		return decimal.Zero, ValidationError{Field: "price", Reason: "must be greater than 0"}
	}
	if d.Cmp(maxPrice) >= 0 {
		return decimal.Zero, ValidationError{Field: "price", Reason: "must have at most 12 digits"}
	}
	return d, nil
}

// ValidateExactPrice is ValidatePrice without rounding: amounts with more
// than two significant fractional digits are rejected.
func ValidateExactPrice(v any) (decimal.Decimal, error) {
	d, err := ToDecimal(v)
	if err != nil {
		return decimal.Zero, ValidationError{Field: "price", Reason: "must be a number"}
	}
	if !d.Equal(d.Round(CentPlaces)) {
		return decimal.Zero, ValidationError{Field: "price", Reason: "must have at most 2 decimal places"}
	}
	return ValidatePrice(d)
}

// DedupeNames trims each name, drops empties and removes case-insensitive
// duplicates keeping the first spelling and the input order.
func DedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

// FormatTimestamp renders t in UTC with second precision and an explicit
// offset, e.g. 2025-08-11T01:23:45+00:00.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// ParseTimestamp accepts RFC 3339 (Z or numeric offset) and offset-less
// timestamps, the latter read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrParse, s)
	}
	return t, nil
}

// JoinPeople and SplitPeople convert the participant list to and from its
// history-row form.
func JoinPeople(people []string) string {
	return strings.Join(people, PeopleSeparator)
}

func SplitPeople(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, PeopleSeparator)
}

type historyEntryJSON struct {
	Timestamp string      `json:"timestamp"`
	Payer     string      `json:"payer"`
	TotalCost json.Number `json:"total_cost"`
	People    []string    `json:"people"`
}

func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	people := h.People
	if people == nil {
		people = []string{}
	}
	return json.Marshal(historyEntryJSON{
		Timestamp: h.Timestamp,
		Payer:     h.Payer,
		TotalCost: MoneyNumber(h.TotalCost),
		People:    people,
	})
}

func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw historyEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	total, err := Money(string(raw.TotalCost))
	if err != nil {
		total = Quantize(decimal.Zero)
	}
	*h = HistoryEntry{Timestamp: raw.Timestamp, Payer: raw.Payer, TotalCost: total, People: raw.People}
	return nil
}

func (n NextPayer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Payer     string      `json:"payer"`
		TotalCost json.Number `json:"total_cost"`
		Included  []string    `json:"included"`
		Tie       TieStrategy `json:"tie"`
	}{n.Payer, MoneyNumber(n.TotalCost), n.Included, n.Tie})
}

func (r RoundResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp string         `json:"timestamp"`
		Payer     string         `json:"payer"`
		TotalCost json.Number    `json:"total_cost"`
		Included  []string       `json:"included"`
		Tie       TieStrategy    `json:"tie"`
		Prices    Amounts        `json:"prices"`
		Balances  Amounts        `json:"balances"`
		History   []HistoryEntry `json:"history"`
	}{r.Timestamp, r.Payer, MoneyNumber(r.TotalCost), r.Included, r.Tie, r.Prices, r.Balances, nonNilHistory(r.History)})
}

func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	s.History = nonNilHistory(s.History)
	if s.Prices == nil {
		s.Prices = Amounts{}
	}
	if s.Balances == nil {
		s.Balances = Amounts{}
	}
	return json.Marshal(plain(s))
}

func nonNilHistory(h []HistoryEntry) []HistoryEntry {
	if h == nil {
		return []HistoryEntry{}
	}
	return h
}
