package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"whopays/internal/amqp"
	"whopays/internal/core"
	"whopays/internal/sheets"
	"whopays/internal/sheets/memory"
	"whopays/internal/storage"
)

type failingWriter struct{}

func (failingWriter) AppendRound(context.Context, sheets.RoundRow) (string, error) {
	return "", errors.New("quota exceeded")
}

func testRound() core.RoundResult {
	return core.RoundResult{
		Timestamp: "2025-08-11T01:23:45+00:00",
		Payer:     "Ann",
		TotalCost: decimal.RequireFromString("8.00"),
		Included:  []string{"Ann", "Bob"},
		Tie:       core.TieAlpha,
	}
}

func TestMirrorWorker_HandleRoundMessage(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	w := NewMirrorWorker(mem)

	msg := amqp.NewRoundCompletedMessage(testRound())
	if err := w.HandleRoundMessage(ctx, msg); err != nil {
		t.Fatalf("HandleRoundMessage() error = %v", err)
	}
	if err := w.HandleRoundMessage(ctx, msg); err != nil {
		t.Fatalf("HandleRoundMessage() redelivery error = %v", err)
	}

	rows := mem.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 after redelivery", len(rows))
	}
	if rows[0].Payer != "Ann" || rows[0].Tie != "alpha" || rows[0].RoundID != msg.ID {
		t.Errorf("row = %+v", rows[0])
	}
	if w.Mirrored() != 2 {
		t.Errorf("Mirrored() = %d, want 2", w.Mirrored())
	}
}

func TestMirrorWorker_HandleRoundMessageError(t *testing.T) {
	w := NewMirrorWorker(failingWriter{})

	err := w.HandleRoundMessage(context.Background(), amqp.NewRoundCompletedMessage(testRound()))
	if err == nil {
		t.Fatal("HandleRoundMessage() should surface writer errors")
	}
	if w.Mirrored() != 0 {
		t.Errorf("Mirrored() = %d, want 0", w.Mirrored())
	}
}

func TestMirrorWorker_BackfillSkipsMirroredRounds(t *testing.T) {
	ctx := context.Background()
	history := storage.NewMemoryStore()
	round := testRound()
	_ = history.Append(ctx, core.HistoryEntry{Timestamp: round.Timestamp, Payer: round.Payer, TotalCost: round.TotalCost, People: round.Included})
	_ = history.Append(ctx, core.HistoryEntry{Timestamp: "2025-08-12T00:00:00+00:00", Payer: "Bob", TotalCost: decimal.RequireFromString("3.00"), People: []string{"Bob"}})

	mem := memory.New()
	w := NewMirrorWorker(mem)
	if err := w.HandleRoundMessage(ctx, amqp.NewRoundCompletedMessage(round)); err != nil {
		t.Fatalf("HandleRoundMessage() error = %v", err)
	}

	n, err := w.Backfill(ctx, history)
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Backfill() = %d, want 2", n)
	}
	if rows := mem.Rows(); len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestMirrorWorker_BackfillKeepsIdenticalRounds(t *testing.T) {
	ctx := context.Background()
	history := storage.NewMemoryStore()
	entry := core.HistoryEntry{Timestamp: "2025-08-11T01:23:45+00:00", Payer: "Ann", TotalCost: decimal.RequireFromString("3.00"), People: []string{"Ann"}}
	_ = history.Append(ctx, entry)
	_ = history.Append(ctx, entry)

	mem := memory.New()
	if _, err := NewMirrorWorker(mem).Backfill(ctx, history); err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	rows := mem.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].RoundID == rows[1].RoundID {
		t.Errorf("identical rounds share id %q", rows[0].RoundID)
	}
}
