package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"whopays/internal/core"
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())

	got, err := store.Load(context.Background(), core.RecordPrices)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %v, want empty mapping", got)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store := NewFileStore(dir)

	in := core.Amounts{
		"Bob":  decimal.RequireFromString("4.5"),
		"Sara": decimal.RequireFromString("-2.345"),
	}
	if err := store.Save(ctx, core.RecordBalances, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "balances.json"))
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	want := "{\n  \"Bob\": 4.50,\n  \"Sara\": -2.35\n}\n"
	if string(data) != want {
		t.Errorf("record file = %q, want %q", data, want)
	}

	got, err := store.Load(ctx, core.RecordBalances)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got["Bob"].Equal(decimal.RequireFromString("4.50")) || !got["Sara"].Equal(decimal.RequireFromString("-2.35")) {
		t.Errorf("Load() = %v", got)
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, core.RecordPrices, core.Amounts{"Ann": decimal.NewFromInt(int64(i + 1))}); err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temporary file %q left behind", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestFileStore_FailedSaveKeepsPreviousRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	if err := store.Save(ctx, core.RecordPrices, core.Amounts{"Ann": decimal.NewFromInt(2)}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// A directory in place of the target makes the final rename fail.
	blocked := NewFileStore(dir).WithPath(core.RecordPrices, dir)
	if err := blocked.Save(ctx, core.RecordPrices, core.Amounts{"Ann": decimal.NewFromInt(9)}); err == nil {
		t.Fatal("Save() onto a directory should fail")
	}

	got, err := store.Load(ctx, core.RecordPrices)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got["Ann"].Equal(decimal.NewFromInt(2)) {
		t.Errorf("Ann = %s, want 2", got["Ann"])
	}
}

func TestFileStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.json")
	if err := os.WriteFile(path, []byte(`{"Ann": "lots"}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(dir).Load(context.Background(), core.RecordPrices)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() error = %v, want ErrCorrupt", err)
	}
	if errors.Is(err, core.ErrParse) {
		t.Errorf("Load() error = %v, should not read as a parse error", err)
	}
}

func TestFileStore_WithPath(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "custom", "p.json")
	store := NewFileStore(dir).WithPath(core.RecordPrices, custom).WithPath(core.RecordBalances, "")

	if got := store.Path(core.RecordPrices); got != custom {
		t.Errorf("Path(prices) = %q, want %q", got, custom)
	}
	if got := store.Path(core.RecordBalances); got != filepath.Join(dir, "balances.json") {
		t.Errorf("Path(balances) = %q", got)
	}

	if err := store.Save(context.Background(), core.RecordPrices, core.Amounts{"Ann": decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Errorf("custom path not written: %v", err)
	}
}
