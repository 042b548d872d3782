package amqp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"whopays/internal/core"
)

// RoundCompletedRoutingKey is the routing key of round.completed events.
const RoundCompletedRoutingKey = "round.completed"

// RoundCompletedMessage announces one completed round. It carries the whole
// round so consumers never read the ledger's storage.
type RoundCompletedMessage struct {
	ID        string          `json:"id"`
	Seq       int             `json:"seq"`
	Timestamp string          `json:"timestamp"`
	Payer     string          `json:"payer"`
	TotalCost decimal.Decimal `json:"total_cost"`
	People    []string        `json:"people"`
	Tie       string          `json:"tie"`
	SentAt    time.Time       `json:"sent_at"`
}

// roundNamespace scopes round ids derived with RoundID.
var roundNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:whopays:round"))

// RoundID derives a stable id for the history entry at row seq, so the
// same round gets the same id whether it arrives as an event or from a
// history backfill. The row index separates otherwise identical rounds.
func RoundID(seq int, e core.HistoryEntry) string {
	key := strings.Join([]string{strconv.Itoa(seq), e.Timestamp, e.Payer, core.FormatMoney(e.TotalCost), core.JoinPeople(e.People)}, "\n")
	return uuid.NewSHA1(roundNamespace, []byte(key)).String()
}

// NewRoundCompletedMessage builds the event for round. Its sequence is the
// round's row in the history it completed.
func NewRoundCompletedMessage(round core.RoundResult) *RoundCompletedMessage {
	people := append([]string{}, round.Included...)
	seq := max(len(round.History)-1, 0)
	id := RoundID(seq, core.HistoryEntry{
		Timestamp: round.Timestamp,
		Payer:     round.Payer,
		TotalCost: round.TotalCost,
		People:    people,
	})
	return &RoundCompletedMessage{
		ID:        id,
		Seq:       seq,
		Timestamp: round.Timestamp,
		Payer:     round.Payer,
		TotalCost: core.Quantize(round.TotalCost),
		People:    people,
		Tie:       string(round.Tie),
		SentAt:    time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RoundCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RoundCompletedMessageFromJSON decodes and checks a message body.
func RoundCompletedMessageFromJSON(data []byte) (*RoundCompletedMessage, error) {
	var msg RoundCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" || msg.Payer == "" {
		return nil, fmt.Errorf("incomplete round message: id=%q payer=%q", msg.ID, msg.Payer)
	}
	if msg.People == nil {
		msg.People = []string{}
	}
	return &msg, nil
}
