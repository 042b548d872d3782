package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "whopays/internal/sheets"
)

// Store keeps mirrored rounds in memory. It stands in for the spreadsheet
// when none is configured.
type Store struct {
	mu   sync.Mutex
	rows []ports.RoundRow
	refs map[string]string
}

var _ ports.RoundWriter = (*Store)(nil)

func New() *Store {
	return &Store{refs: make(map[string]string)}
}

// AppendRound stores the row and returns a synthetic row reference.
func (s *Store) AppendRound(_ context.Context, row ports.RoundRow) (string, error) {
	if row.RoundID == "" {
		return "", errors.New("round id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[row.RoundID]; ok {
		return ref, nil
	}
	row.People = append([]string(nil), row.People...)
	s.rows = append(s.rows, row)
	ref := fmt.Sprintf("mem:%d", len(s.rows))
	s.refs[row.RoundID] = ref
	return ref, nil
}

// Rows returns a copy of every stored row in append order.
func (s *Store) Rows() []ports.RoundRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.RoundRow(nil), s.rows...)
}
