// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for breaking ties between
// participants that share the minimum balance. Each tie strategy
// (alpha, random, round_robin, least_recent) has its own breaker.
package services

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"whopays/internal/core"
)

// TieBreaker is the strategy interface for picking one payer among tied
// candidates. tied is never empty and holds canonical names in candidate order.
type TieBreaker interface {
	Break(tied []string, history []core.HistoryEntry, rng *rand.Rand) string
}

// AlphaBreaker picks the lexicographically smallest name.
type AlphaBreaker struct{}

func (AlphaBreaker) Break(tied []string, _ []core.HistoryEntry, _ *rand.Rand) string {
	return sortedCopy(tied)[0]
}

// RandomBreaker picks uniformly among the tied names.
type RandomBreaker struct{}

func (RandomBreaker) Break(tied []string, _ []core.HistoryEntry, rng *rand.Rand) string {
	if rng == nil {
		return tied[rand.Intn(len(tied))]
	}
	return tied[rng.Intn(len(tied))]
}

// RoundRobinBreaker hands the turn to the name after the most recent tied
// payer, cycling through the sorted tied names.
type RoundRobinBreaker struct{}

func (RoundRobinBreaker) Break(tied []string, history []core.HistoryEntry, _ *rand.Rand) string {
	sorted := sortedCopy(tied)
	for i := len(history) - 1; i >= 0; i-- {
		payer := history[i].Payer
		for j, name := range sorted {
			if strings.EqualFold(name, payer) {
				return sorted[(j+1)%len(sorted)]
			}
		}
	}
	return sorted[0]
}

// LeastRecentBreaker picks whoever paid longest ago. Names that never paid
// come first; the final tie-break is the name itself.
type LeastRecentBreaker struct{}

func (LeastRecentBreaker) Break(tied []string, history []core.HistoryEntry, _ *rand.Rand) string {
	last := lastPayments(history)

	ranked := sortedCopy(tied)
	sort.SliceStable(ranked, func(i, j int) bool {
		ti, paidI := last[strings.ToLower(ranked[i])]
		tj, paidJ := last[strings.ToLower(ranked[j])]
		if paidI != paidJ {
			return !paidI
		}
		if paidI && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ranked[i] < ranked[j]
	})
	return ranked[0]
}

// lastPayments returns the latest payment time per payer, keyed by the
// lowercased name. Rows with unparseable timestamps are ignored.
func lastPayments(history []core.HistoryEntry) map[string]time.Time {
	last := make(map[string]time.Time)
	for _, e := range history {
		if e.Payer == "" {
			continue
		}
		ts, err := core.ParseTimestamp(e.Timestamp)
		if err != nil {
			continue
		}
		key := strings.ToLower(e.Payer)
		if prev, ok := last[key]; !ok || ts.After(prev) {
			last[key] = ts
		}
	}
	return last
}

func sortedCopy(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

// tieBreakers maps strategy names to their breakers.
var tieBreakers = map[core.TieStrategy]TieBreaker{
	core.TieAlpha:       AlphaBreaker{},
	core.TieRandom:      RandomBreaker{},
	core.TieRoundRobin:  RoundRobinBreaker{},
	core.TieLeastRecent: LeastRecentBreaker{},
}

// GetTieBreaker returns the breaker for strategy. Unknown strategies fall
// back to least_recent.
func GetTieBreaker(strategy core.TieStrategy) TieBreaker {
	if b, ok := tieBreakers[core.NormalizeStrategy(string(strategy))]; ok {
		return b
	}
	return tieBreakers[core.TieLeastRecent]
}

// RegisterTieBreaker allows registering custom breakers for new strategy names.
func RegisterTieBreaker(strategy core.TieStrategy, breaker TieBreaker) {
	tieBreakers[core.NormalizeStrategy(string(strategy))] = breaker
}

// SelectPayer picks the next payer among candidates: the lowest balance
// wins and ties go to the strategy's breaker.
//
// Candidates are resolved against balances case-insensitively and
// deduplicated; the returned name is the key stored in balances. It fails
// with core.ErrNoEligibleCandidates when no candidate has a balance.
func SelectPayer(balances core.Amounts, candidates []string, strategy core.TieStrategy, history []core.HistoryEntry, rng *rand.Rand) (string, error) {
	eligible := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		key, ok := balances.Lookup(c)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		eligible = append(eligible, key)
	}
	if len(eligible) == 0 {
		return "", fmt.Errorf("select payer among %d candidates: %w", len(candidates), core.ErrNoEligibleCandidates)
	}

	minBalance := core.Quantize(balances[eligible[0]])
	for _, name := range eligible[1:] {
		if b := core.Quantize(balances[name]); b.LessThan(minBalance) {
			minBalance = b
		}
	}

	tied := make([]string, 0, len(eligible))
	for _, name := range eligible {
		if core.Quantize(balances[name]).Equal(minBalance) {
			tied = append(tied, name)
		}
	}
	if len(tied) == 1 {
		return tied[0], nil
	}

	return GetTieBreaker(strategy).Break(tied, history, rng), nil
}
