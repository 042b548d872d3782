package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	ports "whopays/internal/sheets"
)

func TestStore_AppendRound(t *testing.T) {
	ctx := context.Background()
	s := New()

	row := ports.RoundRow{
		RoundID:   "r-1",
		Timestamp: "2025-08-11T01:23:45+00:00",
		Payer:     "Ann",
		TotalCost: decimal.RequireFromString("8.00"),
		People:    []string{"Ann", "Bob"},
		Tie:       "alpha",
	}

	ref, err := s.AppendRound(ctx, row)
	if err != nil {
		t.Fatalf("AppendRound() error = %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}

	again, err := s.AppendRound(ctx, row)
	if err != nil {
		t.Fatalf("AppendRound() duplicate error = %v", err)
	}
	if again != ref {
		t.Errorf("duplicate ref = %q, want %q", again, ref)
	}

	row.People[0] = "Zed"
	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("Rows() len = %d, want 1", len(rows))
	}
	if rows[0].People[0] != "Ann" {
		t.Error("stored row shares the caller's slice")
	}
}

func TestStore_AppendRoundRequiresID(t *testing.T) {
	if _, err := New().AppendRound(context.Background(), ports.RoundRow{Payer: "Ann"}); err == nil {
		t.Error("AppendRound() without id should fail")
	}
}
