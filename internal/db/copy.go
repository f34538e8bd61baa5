package db

import (
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/brillestotte/internal/model"
)

// TransitionSource implements pgx.CopyFromSource over a slice of payment
// transitions.
type TransitionSource struct {
	rows []model.Transition
	idx  int
}

// NewTransitionSource creates a CopyFromSource for the given transitions.
func NewTransitionSource(rows []model.Transition) *TransitionSource {
	return &TransitionSource{rows: rows, idx: -1}
}

// Next advances to the next row. Returns false after the last one.
func (s *TransitionSource) Next() bool {
	s.idx++
	return s.idx < len(s.rows)
}

// Values returns the current row's values in COPY column order.
func (s *TransitionSource) Values() ([]any, error) {
	return s.rows[s.idx].CopyValues(), nil
}

// Err always returns nil; the rows are in memory.
func (s *TransitionSource) Err() error {
	return nil
}

// TransitionTable is the COPY target for payment transitions.
var TransitionTable = pgx.Identifier{"payment_transitions"}

// Compile-time check that TransitionSource satisfies the interface.
var _ pgx.CopyFromSource = (*TransitionSource)(nil)
