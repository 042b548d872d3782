package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"whopays/internal/core"
)

// CSVHistory is the history log stored as a CSV file with a header row.
type CSVHistory struct {
	path string
}

var _ HistoryLog = (*CSVHistory)(nil)

func NewCSVHistory(path string) *CSVHistory {
	return &CSVHistory{path: path}
}

// Path returns the backing file.
func (h *CSVHistory) Path() string { return h.path }

// EnsureSchema creates the file with its header if it does not exist.
func (h *CSVHistory) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(h.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat history: %w", err)
	}
	return h.writeHeader()
}

// Append adds one row, creating the file first when needed.
func (h *CSVHistory) Append(ctx context.Context, entry core.HistoryEntry) error {
	if err := h.EnsureSchema(ctx); err != nil {
		return err
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		entry.Timestamp,
		entry.Payer,
		core.FormatMoney(entry.TotalCost),
		core.JoinPeople(entry.People),
	}); err != nil {
		f.Close()
		return fmt.Errorf("write history row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush history row: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	return f.Close()
}

// ReadAll returns every entry in append order. Rows with an unparseable
// total read as 0.00; missing people read as an empty list.
func (h *CSVHistory) ReadAll(ctx context.Context) ([]core.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return []core.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []core.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: history header: %v", ErrCorrupt, err)
	}
	cols := columnIndex(header)

	entries := []core.HistoryEntry{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: history row: %v", ErrCorrupt, err)
		}
		entries = append(entries, parseRow(rec, cols))
	}
	return entries, nil
}

// Clear replaces the log with the header only.
func (h *CSVHistory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.writeHeader()
}

func (h *CSVHistory) writeHeader() error {
	err := writeFileAtomic(h.path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(HistoryHeader); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("write history header %s: %w", filepath.Base(h.path), err)
	}
	return nil
}

// columnIndex maps header names to positions, falling back to the
// canonical order for any missing column.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(HistoryHeader))
	for i, name := range header {
		cols[name] = i
	}
	for i, name := range HistoryHeader {
		if _, ok := cols[name]; !ok {
			cols[name] = i
		}
	}
	return cols
}

func parseRow(rec []string, cols map[string]int) core.HistoryEntry {
	field := func(name string) string {
		i := cols[name]
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	total, err := core.Money(field("total_cost"))
	if err != nil {
		total = core.Quantize(decimal.Zero)
	}
	return core.HistoryEntry{
		Timestamp: field("timestamp"),
		Payer:     field("payer"),
		TotalCost: total,
		People:    core.SplitPeople(field("people")),
	}
}
