package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"whopays/internal/core"
	"whopays/internal/log"
	"whopays/internal/storage"
)

// RoundPublisher announces completed rounds to other processes.
type RoundPublisher interface {
	PublishRoundCompleted(ctx context.Context, round core.RoundResult) error
}

// PriceUpdate is the outcome of SetPrice.
type PriceUpdate struct {
	Name     string
	Price    decimal.Decimal
	Prices   core.Amounts
	Balances core.Amounts
}

// LedgerService runs rounds and the bookkeeping operations around them.
// Every operation runs under one lock, so read-modify-write cycles on the
// balance record never interleave within a process.
type LedgerService struct {
	mu         sync.Mutex
	store      storage.KeyValueStore
	history    storage.HistoryLog
	publisher  RoundPublisher
	now        func() time.Time
	rng        *rand.Rand
	defaultTie core.TieStrategy
}

type LedgerOption func(*LedgerService)

func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func WithRand(rng *rand.Rand) LedgerOption {
	return func(s *LedgerService) { s.rng = rng }
}

func WithPublisher(p RoundPublisher) LedgerOption {
	return func(s *LedgerService) { s.publisher = p }
}

// WithDefaultTie sets the strategy used when a caller passes none.
func WithDefaultTie(tie string) LedgerOption {
	return func(s *LedgerService) { s.defaultTie = core.NormalizeStrategy(tie) }
}

func NewLedgerService(store storage.KeyValueStore, history storage.HistoryLog, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:      store,
		history:    history,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		defaultTie: core.TieLeastRecent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap seeds prices when none exist, gives every priced name a balance
// and makes sure the history log has its header. It is the only place
// default data is written and is meant for the composition root.
func (s *LedgerService) Bootstrap(ctx context.Context, seed core.Amounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prices, balances, err := s.loadLedger(ctx)
	if err != nil {
		return err
	}

	if len(prices) == 0 && len(seed) > 0 {
		prices = seed.Quantized()
		if err := s.store.Save(ctx, core.RecordPrices, prices); err != nil {
			return fmt.Errorf("seed prices: %w", err)
		}
		slog.InfoContext(ctx, "Seeded default prices", "people", prices.Names())
	}

	if fillBalances(prices, balances) {
		if err := s.store.Save(ctx, core.RecordBalances, balances); err != nil {
			return fmt.Errorf("seed balances: %w", err)
		}
	}

	if err := s.history.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// GetState reads prices, balances and history without writing anything.
// Priced names missing a balance are reported at zero.
func (s *LedgerService) GetState(ctx context.Context) (core.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(ctx)
}

// PreviewNext performs the selection of a round without applying it.
func (s *LedgerService) PreviewNext(ctx context.Context, people []string, tie string) (core.NextPayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.planRound(ctx, people, tie)
	if err != nil {
		return core.NextPayer{}, err
	}
	return core.NextPayer{
		Payer:     plan.payer,
		TotalCost: plan.total,
		Included:  plan.included,
		Tie:       plan.tie,
	}, nil
}

// RunRound charges every included participant their price, credits the
// selected payer with the round total and appends the round to history.
//
// Inputs are fully validated before anything is written. A failed balance
// save leaves the durable state untouched.
func (s *LedgerService) RunRound(ctx context.Context, people []string, tie string) (core.RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.planRound(ctx, people, tie)
	if err != nil {
		return core.RoundResult{}, err
	}

	balances := plan.balances.Clone()
	fillBalances(plan.prices, balances)
	for _, name := range plan.included {
		key := balanceKey(balances, name)
		balances[key] = core.Quantize(balances[key].Sub(plan.prices[name]))
	}
	payerKey := balanceKey(balances, plan.payer)
	balances[payerKey] = core.Quantize(balances[payerKey].Add(plan.total))

	if err := s.store.Save(ctx, core.RecordBalances, balances); err != nil {
		return core.RoundResult{}, fmt.Errorf("save balances: %w", err)
	}

	entry := core.HistoryEntry{
		Timestamp: core.FormatTimestamp(s.now()),
		Payer:     plan.payer,
		TotalCost: plan.total,
		People:    plan.included,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return core.RoundResult{}, fmt.Errorf("append history: %w", err)
	}

	result := core.RoundResult{
		Timestamp: entry.Timestamp,
		Payer:     plan.payer,
		TotalCost: plan.total,
		Included:  plan.included,
		Tie:       plan.tie,
		Prices:    plan.prices,
		Balances:  balances,
		History:   append(plan.history, entry),
	}

	fields := log.NewFields().
		WithComponent(log.ComponentLedger).
		WithRound(result.Payer, result.TotalCost, result.Included, string(result.Tie)).
		WithOperation(log.OpRunRound)
	slog.InfoContext(ctx, "Round completed", fields.ToSlice()...)

	s.publishRound(ctx, result)
	return result, nil
}

// SetPrice validates and stores a price. An existing participant keeps the
// spelling already on record; a new one gets a zero balance.
func (s *LedgerService) SetPrice(ctx context.Context, name string, price any) (PriceUpdate, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return PriceUpdate{}, err
	}
	amount, err := core.ValidatePrice(price)
	if err != nil {
		return PriceUpdate{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prices, balances, err := s.loadLedger(ctx)
	if err != nil {
		return PriceUpdate{}, err
	}

	canonical := name
	if key, ok := prices.Lookup(name); ok {
		canonical = key
	} else if key, ok := balances.Lookup(name); ok {
		canonical = key
	}

	prices[canonical] = amount
	if err := s.store.Save(ctx, core.RecordPrices, prices); err != nil {
		return PriceUpdate{}, fmt.Errorf("save prices: %w", err)
	}
	if _, ok := balances.Lookup(canonical); !ok {
		balances[canonical] = core.Quantize(decimal.Zero)
		if err := s.store.Save(ctx, core.RecordBalances, balances); err != nil {
			return PriceUpdate{}, fmt.Errorf("save balances: %w", err)
		}
	}

	slog.InfoContext(ctx, "Price set",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpSetPrice,
		log.FieldName, canonical,
		"price", core.FormatMoney(amount))
	return PriceUpdate{Name: canonical, Price: amount, Prices: prices, Balances: balances}, nil
}

// RemovePerson deletes name from prices and balances. It reports whether
// anything was removed.
func (s *LedgerService) RemovePerson(ctx context.Context, name string) (bool, core.State, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return false, core.State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prices, balances, err := s.loadLedger(ctx)
	if err != nil {
		return false, core.State{}, err
	}

	removed := false
	if key, ok := prices.Lookup(name); ok {
		delete(prices, key)
		if err := s.store.Save(ctx, core.RecordPrices, prices); err != nil {
			return false, core.State{}, fmt.Errorf("save prices: %w", err)
		}
		removed = true
	}
	if key, ok := balances.Lookup(name); ok {
		delete(balances, key)
		if err := s.store.Save(ctx, core.RecordBalances, balances); err != nil {
			return false, core.State{}, fmt.Errorf("save balances: %w", err)
		}
		removed = true
	}

	if removed {
		slog.InfoContext(ctx, "Person removed",
			log.FieldComponent, log.ComponentLedger,
			log.FieldOperation, log.OpRemove,
			log.FieldName, name)
	}
	return removed, core.State{Prices: prices, Balances: balances}, nil
}

// ResetBalances sets every priced participant's balance to zero and drops
// balances of unpriced names. History is cleared when clearHistory is set.
func (s *LedgerService) ResetBalances(ctx context.Context, clearHistory bool) (core.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prices, _, err := s.loadLedger(ctx)
	if err != nil {
		return core.State{}, err
	}

	balances := make(core.Amounts, len(prices))
	fillBalances(prices, balances)
	if err := s.store.Save(ctx, core.RecordBalances, balances); err != nil {
		return core.State{}, fmt.Errorf("save balances: %w", err)
	}

	if clearHistory {
		if err := s.clearHistory(ctx); err != nil {
			return core.State{}, err
		}
	}

	slog.InfoContext(ctx, "Balances reset",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpReset,
		"clear_history", clearHistory)
	return s.snapshot(ctx)
}

// ClearHistory removes every round from the log, keeping its header.
func (s *LedgerService) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.clearHistory(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "History cleared", log.FieldComponent, log.ComponentLedger, log.FieldOperation, log.OpClear)
	return nil
}

func (s *LedgerService) clearHistory(ctx context.Context) error {
	if err := s.history.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	if err := s.history.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

type roundPlan struct {
	prices   core.Amounts
	balances core.Amounts
	history  []core.HistoryEntry
	included []string
	total    decimal.Decimal
	payer    string
	tie      core.TieStrategy
}

// planRound is the read-only part of a round: it resolves participants,
// totals their prices and selects the payer.
func (s *LedgerService) planRound(ctx context.Context, people []string, tie string) (roundPlan, error) {
	prices, balances, err := s.loadLedger(ctx)
	if err != nil {
		return roundPlan{}, err
	}

	requested := core.DedupeNames(people)
	if len(requested) == 0 {
		requested = prices.Names()
	}

	included := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, p := range requested {
		key, ok := prices.Lookup(p)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		included = append(included, key)
	}
	if len(included) == 0 {
		return roundPlan{}, core.ErrNoMatchingParticipants
	}

	history, err := s.history.ReadAll(ctx)
	if err != nil {
		return roundPlan{}, fmt.Errorf("read history: %w", err)
	}

	strategy := s.defaultTie
	if tie != "" {
		strategy = core.NormalizeStrategy(tie)
	}

	// The selector sees balances under the price spelling so the payer is
	// reported the same way as the included list.
	view := make(core.Amounts, len(included))
	for _, name := range included {
		if key, ok := balances.Lookup(name); ok {
			view[name] = balances[key]
		} else {
			view[name] = core.Quantize(decimal.Zero)
		}
	}

	payer, err := SelectPayer(view, included, strategy, history, s.rng)
	if err != nil {
		return roundPlan{}, err
	}

	return roundPlan{
		prices:   prices,
		balances: balances,
		history:  history,
		included: included,
		total:    prices.Sum(included),
		payer:    payer,
		tie:      strategy,
	}, nil
}

func (s *LedgerService) loadLedger(ctx context.Context) (core.Amounts, core.Amounts, error) {
	prices, err := s.store.Load(ctx, core.RecordPrices)
	if err != nil {
		return nil, nil, fmt.Errorf("load prices: %w", err)
	}
	balances, err := s.store.Load(ctx, core.RecordBalances)
	if err != nil {
		return nil, nil, fmt.Errorf("load balances: %w", err)
	}
	return prices.Quantized(), balances.Quantized(), nil
}

func (s *LedgerService) snapshot(ctx context.Context) (core.State, error) {
	prices, balances, err := s.loadLedger(ctx)
	if err != nil {
		return core.State{}, err
	}
	fillBalances(prices, balances)

	history, err := s.history.ReadAll(ctx)
	if err != nil {
		return core.State{}, fmt.Errorf("read history: %w", err)
	}
	return core.State{Prices: prices, Balances: balances, History: history}, nil
}

func (s *LedgerService) publishRound(ctx context.Context, result core.RoundResult) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Round publisher not available, skipping round event")
		return
	}
	if err := s.publisher.PublishRoundCompleted(ctx, result); err != nil {
		slog.ErrorContext(ctx, "Failed to publish round event", "payer", result.Payer, "error", err)
	}
}

// fillBalances adds a zero balance for every priced name without one and
// reports whether balances changed.
func fillBalances(prices, balances core.Amounts) bool {
	changed := false
	for _, name := range prices.Names() {
		if _, ok := balances.Lookup(name); !ok {
			balances[name] = core.Quantize(decimal.Zero)
			changed = true
		}
	}
	return changed
}

// balanceKey returns the key under which name's balance is stored, or name
// itself when there is none yet.
func balanceKey(balances core.Amounts, name string) string {
	if key, ok := balances.Lookup(name); ok {
		return key
	}
	return name
}
