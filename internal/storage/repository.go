package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"whopays/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores records and history in a SQLite database. Amounts
// are kept as integer cents.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ KeyValueStore = (*SQLiteRepository)(nil)
	_ HistoryLog    = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateLedger(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Load(ctx context.Context, key string) (core.Amounts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, value_cents FROM amounts WHERE record = ? ORDER BY name`, key)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	defer rows.Close()

	out := core.Amounts{}
	for rows.Next() {
		var (
			name  string
			cents int64
		)
		if err := rows.Scan(&name, &cents); err != nil {
			return nil, fmt.Errorf("scan %s: %w", key, err)
		}
		out[name] = fromCents(cents)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", key, err)
	}
	return out, nil
}

// Save replaces the whole record inside one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, key string, values core.Amounts) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM amounts WHERE record = ?`, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO amounts (record, name, value_cents) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", key, err)
	}
	defer stmt.Close()

	for _, name := range values.Names() {
		if _, err := stmt.ExecContext(ctx, key, name, toCents(values[name])); err != nil {
			return fmt.Errorf("insert %s/%s: %w", key, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Record saved to SQLite", "record", key, "entries", len(values))
	return nil
}

// EnsureSchema is satisfied by the migrations run on open.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	return r.Ping(ctx)
}

func (r *SQLiteRepository) Append(ctx context.Context, entry core.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO history (timestamp, payer, total_cents, people) VALUES (?, ?, ?, ?)`,
		entry.Timestamp, entry.Payer, toCents(entry.TotalCost), core.JoinPeople(entry.People))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ReadAll(ctx context.Context) ([]core.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT timestamp, payer, total_cents, people FROM history ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []core.HistoryEntry{}
	for rows.Next() {
		var (
			e      core.HistoryEntry
			cents  int64
			people string
		)
		if err := rows.Scan(&e.Timestamp, &e.Payer, &cents, &people); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.TotalCost = fromCents(cents)
		e.People = core.SplitPeople(people)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	slog.InfoContext(ctx, "History cleared in SQLite")
	return nil
}

func toCents(d decimal.Decimal) int64 {
	return core.Quantize(d).Shift(core.CentPlaces).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -core.CentPlaces)
}
