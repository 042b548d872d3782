package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"whopays/internal/amqp"
	"whopays/internal/log"
	"whopays/internal/sheets"
	"whopays/internal/storage"
)

// MirrorWorker copies completed rounds to a spreadsheet.
type MirrorWorker struct {
	writer   sheets.RoundWriter
	mirrored atomic.Int64
}

func NewMirrorWorker(writer sheets.RoundWriter) *MirrorWorker {
	return &MirrorWorker{writer: writer}
}

// HandleRoundMessage mirrors a single round.completed message from AMQP.
func (w *MirrorWorker) HandleRoundMessage(ctx context.Context, msg *amqp.RoundCompletedMessage) error {
	slog.InfoContext(ctx, "Processing round message",
		log.FieldComponent, log.ComponentWorker,
		log.FieldRoundID, msg.ID,
		log.FieldPayer, msg.Payer)

	ref, err := w.writer.AppendRound(ctx, sheets.RoundRow{
		RoundID:   msg.ID,
		Timestamp: msg.Timestamp,
		Payer:     msg.Payer,
		TotalCost: msg.TotalCost,
		People:    msg.People,
		Tie:       msg.Tie,
	})
	if err != nil {
		return fmt.Errorf("mirror round %s: %w", msg.ID, err)
	}

	w.mirrored.Add(1)
	slog.InfoContext(ctx, "Round mirrored",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpMirror,
		log.FieldRoundID, msg.ID,
		log.FieldMirrorRef, ref)
	return nil
}

// Backfill mirrors every round in history. Round ids are derived from the
// entries, so rounds already mirrored are skipped by the writer.
func (w *MirrorWorker) Backfill(ctx context.Context, history storage.HistoryLog) (int, error) {
	entries, err := history.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read history: %w", err)
	}

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		row := sheets.RoundRow{
			RoundID:   amqp.RoundID(i, e),
			Timestamp: e.Timestamp,
			Payer:     e.Payer,
			TotalCost: e.TotalCost,
			People:    e.People,
		}
		if _, err := w.writer.AppendRound(ctx, row); err != nil {
			return i, fmt.Errorf("mirror history entry %d: %w", i, err)
		}
	}

	slog.InfoContext(ctx, "History backfill complete",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpMirror,
		"rounds", len(entries))
	return len(entries), nil
}

// Mirrored reports how many messages were handled successfully.
func (w *MirrorWorker) Mirrored() int64 {
	return w.mirrored.Load()
}
