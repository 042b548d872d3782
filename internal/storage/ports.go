// Package storage holds the durable records behind the ledger: the
// name-to-amount records (prices, balances) and the append-only round history.
package storage

import (
	"context"
	"errors"

	"whopays/internal/core"
)

// HistoryHeader is the schema row of the history log.
var HistoryHeader = []string{"timestamp", "payer", "total_cost", "people"}

// ErrCorrupt marks a durable record that exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt record")

// Ports implemented by every backend.
type (
	// KeyValueStore loads and replaces name-to-amount records.
	KeyValueStore interface {
		// Load returns the record for key, or an empty mapping when none exists.
		Load(ctx context.Context, key string) (core.Amounts, error)
		// Save replaces the record for key. A failed save leaves the previous
		// record readable.
		Save(ctx context.Context, key string, values core.Amounts) error
	}

	// HistoryLog is the append-only sequence of completed rounds.
	HistoryLog interface {
		EnsureSchema(ctx context.Context) error
		Append(ctx context.Context, entry core.HistoryEntry) error
		ReadAll(ctx context.Context) ([]core.HistoryEntry, error)
		Clear(ctx context.Context) error
	}
)
