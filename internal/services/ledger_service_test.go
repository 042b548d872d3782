package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"whopays/internal/core"
	"whopays/internal/storage"
)

var fixedNow = time.Date(2025, 8, 11, 1, 23, 45, 0, time.UTC)

type failingStore struct {
	*storage.MemoryStore
	failKey string
}

func (f *failingStore) Save(ctx context.Context, key string, values core.Amounts) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryStore.Save(ctx, key, values)
}

type recordingPublisher struct {
	rounds []core.RoundResult
	err    error
}

func (p *recordingPublisher) PublishRoundCompleted(_ context.Context, round core.RoundResult) error {
	p.rounds = append(p.rounds, round)
	return p.err
}

func newTestLedger(t *testing.T, prices, balances core.Amounts, opts ...LedgerOption) (*LedgerService, *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	if prices != nil {
		if err := mem.Save(ctx, core.RecordPrices, prices); err != nil {
			t.Fatalf("seed prices: %v", err)
		}
	}
	if balances != nil {
		if err := mem.Save(ctx, core.RecordBalances, balances); err != nil {
			t.Fatalf("seed balances: %v", err)
		}
	}
	opts = append([]LedgerOption{
		WithClock(func() time.Time { return fixedNow }),
		WithRand(rand.New(rand.NewSource(1))),
	}, opts...)
	return NewLedgerService(mem, mem, opts...), mem
}

func assertMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if core.FormatMoney(got) != want {
		t.Errorf("%s = %s, want %s", label, core.FormatMoney(got), want)
	}
}

func TestLedgerService_RunRound_AlphaScenario(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestLedger(t,
		amounts(t, "A", "3.00", "B", "5.00"),
		amounts(t, "A", "0.00", "B", "0.00"))

	result, err := svc.RunRound(ctx, []string{"A", "B"}, "alpha")
	if err != nil {
		t.Fatalf("RunRound() error = %v", err)
	}

	if result.Payer != "A" {
		t.Errorf("Payer = %q, want A", result.Payer)
	}
	assertMoney(t, "TotalCost", result.TotalCost, "8.00")
	assertMoney(t, "balance A", result.Balances["A"], "5.00")
	assertMoney(t, "balance B", result.Balances["B"], "-5.00")
	if result.Tie != core.TieAlpha {
		t.Errorf("Tie = %q, want alpha", result.Tie)
	}
	if result.Timestamp != "2025-08-11T01:23:45+00:00" {
		t.Errorf("Timestamp = %q", result.Timestamp)
	}

	history, _ := mem.ReadAll(ctx)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	h := history[0]
	if h.Payer != "A" || core.FormatMoney(h.TotalCost) != "8.00" || len(h.People) != 2 || h.People[0] != "A" || h.People[1] != "B" {
		t.Errorf("history entry = %+v", h)
	}

	stored, _ := mem.Load(ctx, core.RecordBalances)
	assertMoney(t, "stored A", stored["A"], "5.00")
	assertMoney(t, "stored B", stored["B"], "-5.00")
}

func TestLedgerService_RunRound_ZeroSum(t *testing.T) {
	ctx := context.Background()
	prices := amounts(t, "Ann", "3.33", "Bob", "4.50", "Cat", "0.01", "Dan", "12.99")

	svc, _ := newTestLedger(t, prices, amounts(t, "Ann", "1.10", "Bob", "-2.00"))

	tests := [][]string{
		{"Ann", "Bob"},
		{"Cat"},
		{"Dan", "Ann", "Cat"},
		nil,
	}
	strategies := []string{"alpha", "random", "round_robin", "least_recent"}

	for i, people := range tests {
		before, err := svc.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		result, err := svc.RunRound(ctx, people, strategies[i%len(strategies)])
		if err != nil {
			t.Fatalf("RunRound(%v) error = %v", people, err)
		}
		sum := decimal.Zero
		for _, name := range result.Included {
			sum = sum.Add(result.Balances[name].Sub(before.Balances[name]))
		}
		if !sum.IsZero() {
			t.Errorf("round %d: delta sum = %s, want 0", i, sum)
		}
	}
}

func TestLedgerService_RunRound_EmptyPeopleUsesAllPriced(t *testing.T) {
	svc, _ := newTestLedger(t, amounts(t, "Sara", "5.00", "Bob", "4.50", "Jim", "3.00"), nil)

	result, err := svc.RunRound(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("RunRound() error = %v", err)
	}
	want := []string{"Bob", "Jim", "Sara"}
	if len(result.Included) != len(want) {
		t.Fatalf("Included = %v, want %v", result.Included, want)
	}
	for i := range want {
		if result.Included[i] != want[i] {
			t.Errorf("Included[%d] = %q, want %q", i, result.Included[i], want[i])
		}
	}
	assertMoney(t, "TotalCost", result.TotalCost, "12.50")
	if result.Tie != core.TieLeastRecent {
		t.Errorf("Tie = %q, want least_recent", result.Tie)
	}
	if result.Payer != "Bob" {
		t.Errorf("Payer = %q, want Bob", result.Payer)
	}
}

func TestLedgerService_RunRound_NoMatchingParticipants(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestLedger(t, amounts(t, "A", "3.00"), nil)

	_, err := svc.RunRound(ctx, []string{"X"}, "alpha")
	if !errors.Is(err, core.ErrNoMatchingParticipants) {
		t.Fatalf("RunRound() error = %v, want ErrNoMatchingParticipants", err)
	}

	history, _ := mem.ReadAll(ctx)
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0", len(history))
	}
	balances, _ := mem.Load(ctx, core.RecordBalances)
	if len(balances) != 0 {
		t.Errorf("balances = %v, want untouched", balances)
	}
}

func TestLedgerService_RunRound_CaseInsensitiveDedupe(t *testing.T) {
	svc, _ := newTestLedger(t, amounts(t, "Bob", "4.50", "Ann", "2.00"), nil)

	result, err := svc.RunRound(context.Background(), []string{"bob", "BOB", " Bob ", "ann"}, "alpha")
	if err != nil {
		t.Fatalf("RunRound() error = %v", err)
	}
	if len(result.Included) != 2 || result.Included[0] != "Bob" || result.Included[1] != "Ann" {
		t.Errorf("Included = %v, want [Bob Ann]", result.Included)
	}
	assertMoney(t, "TotalCost", result.TotalCost, "6.50")
}

func TestLedgerService_RunRound_FailedSaveLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	_ = mem.Save(ctx, core.RecordPrices, amounts(t, "A", "3.00", "B", "5.00"))
	_ = mem.Save(ctx, core.RecordBalances, amounts(t, "A", "1.00", "B", "2.00"))
	store := &failingStore{MemoryStore: mem, failKey: core.RecordBalances}
	pub := &recordingPublisher{}

	svc := NewLedgerService(store, mem, WithPublisher(pub))
	if _, err := svc.RunRound(ctx, nil, "alpha"); err == nil {
		t.Fatal("RunRound() should fail when balances cannot be saved")
	}

	balances, _ := mem.Load(ctx, core.RecordBalances)
	assertMoney(t, "A", balances["A"], "1.00")
	assertMoney(t, "B", balances["B"], "2.00")
	history, _ := mem.ReadAll(ctx)
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0", len(history))
	}
	if len(pub.rounds) != 0 {
		t.Errorf("published %d rounds, want 0", len(pub.rounds))
	}
}

func TestLedgerService_RunRound_Publishes(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newTestLedger(t, amounts(t, "A", "3.00"), nil, WithPublisher(pub))

	if _, err := svc.RunRound(context.Background(), nil, ""); err != nil {
		t.Fatalf("RunRound() error = %v, publish failures must not fail a round", err)
	}
	if len(pub.rounds) != 1 || pub.rounds[0].Payer != "A" {
		t.Errorf("published = %+v", pub.rounds)
	}
}

func TestLedgerService_PreviewNext_DoesNotMutate(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestLedger(t, amounts(t, "A", "3.00", "B", "5.00"), nil)

	next, err := svc.PreviewNext(ctx, []string{"B", "A"}, "alpha")
	if err != nil {
		t.Fatalf("PreviewNext() error = %v", err)
	}
	if next.Payer != "A" {
		t.Errorf("Payer = %q, want A", next.Payer)
	}
	assertMoney(t, "TotalCost", next.TotalCost, "8.00")

	balances, _ := mem.Load(ctx, core.RecordBalances)
	if len(balances) != 0 {
		t.Errorf("PreviewNext wrote balances: %v", balances)
	}
}

func TestLedgerService_Bootstrap(t *testing.T) {
	ctx := context.Background()
	seed := amounts(t, "Bob", "4.50", "Jim", "3.00", "Sara", "5.00")

	t.Run("seeds empty store", func(t *testing.T) {
		svc, mem := newTestLedger(t, nil, nil)
		if err := svc.Bootstrap(ctx, seed); err != nil {
			t.Fatalf("Bootstrap() error = %v", err)
		}
		prices, _ := mem.Load(ctx, core.RecordPrices)
		balances, _ := mem.Load(ctx, core.RecordBalances)
		if len(prices) != 3 || len(balances) != 3 {
			t.Fatalf("prices = %v, balances = %v", prices, balances)
		}
		assertMoney(t, "Sara balance", balances["Sara"], "0.00")
	})

	t.Run("keeps existing prices", func(t *testing.T) {
		svc, mem := newTestLedger(t, amounts(t, "Ann", "2.00"), amounts(t, "Ann", "-1.00", "Old", "3.00"))
		if err := svc.Bootstrap(ctx, seed); err != nil {
			t.Fatalf("Bootstrap() error = %v", err)
		}
		prices, _ := mem.Load(ctx, core.RecordPrices)
		if len(prices) != 1 {
			t.Errorf("prices = %v, want only Ann", prices)
		}
		balances, _ := mem.Load(ctx, core.RecordBalances)
		assertMoney(t, "Ann", balances["Ann"], "-1.00")
		assertMoney(t, "Old", balances["Old"], "3.00")
	})
}

func TestLedgerService_GetState_IsPure(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestLedger(t, amounts(t, "Ann", "2.00"), nil)

	state, err := svc.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	assertMoney(t, "Ann balance", state.Balances["Ann"], "0.00")
	if state.History == nil {
		t.Error("History should be empty, not nil")
	}

	stored, _ := mem.Load(ctx, core.RecordBalances)
	if len(stored) != 0 {
		t.Errorf("GetState wrote balances: %v", stored)
	}
}

func TestLedgerService_SetPrice(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		input     string
		price     any
		wantName  string
		wantPrice string
		wantErr   error
	}{
		{name: "new person", input: "Cat", price: "2.5", wantName: "Cat", wantPrice: "2.50"},
		{name: "existing keeps casing", input: "bob", price: 6, wantName: "Bob", wantPrice: "6.00"},
		{name: "rounds half up", input: "Ann", price: 2.345, wantName: "Ann", wantPrice: "2.35"},
		{name: "invalid name", input: "B0b", price: "1", wantErr: core.ErrValidation},
		{name: "zero price", input: "Ann", price: "0", wantErr: core.ErrValidation},
		{name: "garbage price", input: "Ann", price: "abc", wantErr: core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mem := newTestLedger(t, amounts(t, "Bob", "4.50"), amounts(t, "Bob", "-3.00"))

			got, err := svc.SetPrice(ctx, tt.input, tt.price)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SetPrice() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetPrice() error = %v", err)
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			assertMoney(t, "Price", got.Price, tt.wantPrice)

			prices, _ := mem.Load(ctx, core.RecordPrices)
			assertMoney(t, "stored price", prices[tt.wantName], tt.wantPrice)
			balances, _ := mem.Load(ctx, core.RecordBalances)
			if _, ok := balances[tt.wantName]; !ok {
				t.Errorf("balance for %q missing", tt.wantName)
			}
			assertMoney(t, "Bob balance", balances["Bob"], "-3.00")
		})
	}
}

func TestLedgerService_RemovePerson(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestLedger(t, amounts(t, "Bob", "4.50", "Ann", "2.00"), amounts(t, "Bob", "1.00", "Ann", "-1.00", "Gone", "0.00"))

	removed, state, err := svc.RemovePerson(ctx, "bob")
	if err != nil {
		t.Fatalf("RemovePerson() error = %v", err)
	}
	if !removed {
		t.Error("RemovePerson() removed = false, want true")
	}
	if _, ok := state.Prices["Bob"]; ok {
		t.Error("Bob still priced")
	}

	removed, _, err = svc.RemovePerson(ctx, "Gone")
	if err != nil || !removed {
		t.Errorf("RemovePerson(Gone) = %v, %v; want balance-only removal", removed, err)
	}

	removed, _, err = svc.RemovePerson(ctx, "Nobody")
	if err != nil || removed {
		t.Errorf("RemovePerson(Nobody) = %v, %v; want false, nil", removed, err)
	}

	balances, _ := mem.Load(ctx, core.RecordBalances)
	if len(balances) != 1 {
		t.Errorf("balances = %v, want only Ann", balances)
	}
}

func TestLedgerService_ResetBalances(t *testing.T) {
	ctx := context.Background()

	for _, clearHistory := range []bool{false, true} {
		svc, mem := newTestLedger(t, amounts(t, "A", "3.00", "B", "5.00"), amounts(t, "Old", "9.00"))
		if _, err := svc.RunRound(ctx, nil, "alpha"); err != nil {
			t.Fatalf("RunRound() error = %v", err)
		}

		state, err := svc.ResetBalances(ctx, clearHistory)
		if err != nil {
			t.Fatalf("ResetBalances(%v) error = %v", clearHistory, err)
		}
		if len(state.Balances) != 2 {
			t.Errorf("balances = %v, want exactly priced names", state.Balances)
		}
		for name, b := range state.Balances {
			assertMoney(t, name, b, "0.00")
		}

		history, _ := mem.ReadAll(ctx)
		wantLen := 1
		if clearHistory {
			wantLen = 0
		}
		if len(history) != wantLen {
			t.Errorf("clear=%v: history length = %d, want %d", clearHistory, len(history), wantLen)
		}
	}
}

func TestLedgerService_ClearHistoryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestLedger(t, amounts(t, "A", "3.00"), nil)
	if _, err := svc.RunRound(ctx, nil, ""); err != nil {
		t.Fatalf("RunRound() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.ClearHistory(ctx); err != nil {
			t.Fatalf("ClearHistory() #%d error = %v", i, err)
		}
		history, _ := mem.ReadAll(ctx)
		if len(history) != 0 {
			t.Errorf("ClearHistory() #%d left %d entries", i, len(history))
		}
	}
}
