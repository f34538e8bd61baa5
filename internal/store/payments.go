package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/model"
	embedsql "github.com/gyeh/brillestotte/internal/sql"
)

// ListPromotable returns unbatched NY payments created before the cutoff
// whose decision has not been deleted.
func (s *Store) ListPromotable(ctx context.Context, createdBefore time.Time) ([]model.Payment, error) {
	out, err := listPayments(ctx, s.pool, embedsql.ListPromotable, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("list promotable: %w", err)
	}
	return out, nil
}

// StampBatch assigns a batch date and id to an unbatched NY payment. It
// reports false when the payment was already stamped or has moved on.
func (s *Store) StampBatch(ctx context.Context, paymentID uuid.UUID, batchDate time.Time, batchID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, embedsql.StampBatch, paymentID, utcDate(batchDate), batchID, now)
	if err != nil {
		return false, fmt.Errorf("stamp batch: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDue returns batched NY payments with a batch date on or before the
// given date.
func (s *Store) ListDue(ctx context.Context, onOrBefore time.Time) ([]model.Payment, error) {
	out, err := listPayments(ctx, s.pool, embedsql.ListDue, utcDate(onOrBefore))
	if err != nil {
		return nil, fmt.Errorf("list due: %w", err)
	}
	return out, nil
}

// ListByStatus returns every payment in the given status.
func (s *Store) ListByStatus(ctx context.Context, status model.Status) ([]model.Payment, error) {
	out, err := listPayments(ctx, s.pool, embedsql.ListByStatus, string(status))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", status, err)
	}
	return out, nil
}

// AdvanceBatch moves every member of b from one status to the next in a
// single transaction, records the transitions and then calls publish
// before committing. If any member is no longer in the from status, or
// publish fails, nothing is committed.
func (s *Store) AdvanceBatch(ctx context.Context, b *model.Batch, from, to model.Status, now time.Time, publish func(context.Context) error) error {
	if !from.CanTransition(to) {
		return apperr.Inconsistent("illegal payment transition", fmt.Sprintf("%s -> %s", from, to))
	}
	ids := b.PaymentIDs()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if from == model.StatusNew {
			// Serialise with DeleteDecision: the update below then runs on a
			// snapshot that includes any tombstone committed meanwhile.
			rows, err := tx.Query(ctx, embedsql.ShareBatchDecisions, uuidStrings(ids))
			if err != nil {
				return fmt.Errorf("lock decisions of batch %s: %w", b.ID, err)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("lock decisions of batch %s: %w", b.ID, err)
			}
		}

		tag, err := tx.Exec(ctx, embedsql.AdvancePayments, uuidStrings(ids), string(from), string(to), now)
		if err != nil {
			return fmt.Errorf("advance batch %s: %w", b.ID, err)
		}
		if int(tag.RowsAffected()) != len(ids) {
			return apperr.Inconsistent("batch members changed status concurrently",
				fmt.Sprintf("batch=%s updated=%d members=%d", b.ID, tag.RowsAffected(), len(ids)))
		}

		transitions := make([]model.Transition, len(ids))
		for i, id := range ids {
			transitions[i] = model.Transition{PaymentID: id, From: from, To: to, At: now}
		}
		if err := insertTransitions(ctx, tx, transitions); err != nil {
			return err
		}

		if publish != nil {
			if err := publish(ctx); err != nil {
				return fmt.Errorf("publish batch %s: %w", b.ID, err)
			}
		}
		return nil
	})
}

// MarkStuck moves submitted payments not updated since the cutoff to
// REKJOR and returns their ids.
func (s *Store) MarkStuck(ctx context.Context, updatedBefore, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, embedsql.MarkStuck, updatedBefore, now)
		if err != nil {
			return err
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}

		transitions := make([]model.Transition, len(ids))
		for i, id := range ids {
			transitions[i] = model.Transition{PaymentID: id, From: model.StatusSubmitted, To: model.StatusRetry, At: now}
		}
		return insertTransitions(ctx, tx, transitions)
	})
	if err != nil {
		return nil, fmt.Errorf("mark stuck: %w", err)
	}
	return ids, nil
}

// ConfirmBatch marks the submitted members of a batch as paid and returns
// how many changed. Confirming an already paid batch changes nothing; an
// unknown batch id is a not-found error.
func (s *Store) ConfirmBatch(ctx context.Context, batchID string, paidOn, now time.Time) (int, error) {
	var changed int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, embedsql.ConfirmBatch, batchID, utcDate(paidOn), now)
		if err != nil {
			return err
		}
		var transitions []model.Transition
		for rows.Next() {
			var (
				id   uuid.UUID
				prev string
			)
			if err := rows.Scan(&id, &prev); err != nil {
				rows.Close()
				return err
			}
			from, err := model.ParseStatus(prev)
			if err != nil {
				rows.Close()
				return err
			}
			transitions = append(transitions, model.Transition{PaymentID: id, From: from, To: model.StatusPaid, At: now})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(transitions) == 0 {
			var members int
			if err := tx.QueryRow(ctx, embedsql.CountBatch, batchID).Scan(&members); err != nil {
				return err
			}
			if members == 0 {
				return apperr.NotFound("batch not found", batchID)
			}
			return nil
		}
		changed = len(transitions)
		return insertTransitions(ctx, tx, transitions)
	})
	if err != nil {
		if apperr.IsNotFound(err) {
			return 0, err
		}
		return 0, fmt.Errorf("confirm batch %s: %w", batchID, err)
	}
	return changed, nil
}
