// Package store persists decisions, payments and payment transitions in
// PostgreSQL. Every status change is a conditional update guarded by the
// current status, so concurrent schedulers cannot double-apply a step.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/brillestotte/internal/db"
	"github.com/gyeh/brillestotte/internal/model"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL-backed decision and payment store.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New returns a Store using pool.
func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "store").Logger()}
}

const paymentCols = `id, decision_id, org_id, amount, status, created_at, updated_at, batch_date, batch_id, paid_on`

func scanPayment(row pgx.Row) (model.Payment, error) {
	var (
		p       model.Payment
		status  string
		batchID *string
	)
	if err := row.Scan(&p.ID, &p.DecisionID, &p.OrgID, &p.Amount, &status,
		&p.CreatedAt, &p.UpdatedAt, &p.BatchDate, &batchID, &p.PaidOn); err != nil {
		return model.Payment{}, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return model.Payment{}, err
	}
	p.Status = st
	if batchID != nil {
		p.BatchID = *batchID
	}
	return p, nil
}

func collectPayments(rows pgx.Rows) ([]model.Payment, error) {
	defer rows.Close()
	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func listPayments(ctx context.Context, q queryable, query string, args ...any) ([]model.Payment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// insertTransitions bulk-loads transitions with COPY.
func insertTransitions(ctx context.Context, tx pgx.Tx, transitions []model.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	n, err := tx.CopyFrom(ctx, db.TransitionTable, model.TransitionColumns(), db.NewTransitionSource(transitions))
	if err != nil {
		return fmt.Errorf("copy transitions: %w", err)
	}
	if int(n) != len(transitions) {
		return fmt.Errorf("copy transitions: wrote %d of %d", n, len(transitions))
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func utcDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
