package sheets

import (
	"context"

	"github.com/shopspring/decimal"
)

// RoundRow is one completed round as mirrored to a spreadsheet.
type RoundRow struct {
	RoundID   string
	Timestamp string
	Payer     string
	TotalCost decimal.Decimal
	People    []string
	Tie       string
}

// Ports for outbound adapters.
type (
	// RoundWriter appends completed rounds. Writing a round whose RoundID
	// is already present is a no-op, so redelivered events are safe.
	RoundWriter interface {
		AppendRound(ctx context.Context, row RoundRow) (rowRef string, err error)
	}
)
