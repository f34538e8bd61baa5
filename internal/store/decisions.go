package store

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/model"
	"github.com/gyeh/brillestotte/internal/rules"
	embedsql "github.com/gyeh/brillestotte/internal/sql"
)

// SourceLocal marks prior decisions found in this store.
const SourceLocal = "local"

func approvalsInYear(ctx context.Context, q queryable, beneficiaryID string, year int, cutoff *time.Time) ([]model.PriorDecision, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	rows, err := q.Query(ctx, embedsql.ApprovalsInYear, beneficiaryID, from, to, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PriorDecision
	for rows.Next() {
		var (
			id        uuid.UUID
			orderDate time.Time
		)
		if err := rows.Scan(&id, &orderDate); err != nil {
			return nil, err
		}
		out = append(out, model.PriorDecision{ID: id.String(), OrderDate: orderDate, Source: SourceLocal})
	}
	return out, rows.Err()
}

// ApprovalsInYear returns the beneficiary's approved decisions with an order
// date in year. Deleted decisions count only when deleted after cutoff; a
// nil cutoff ignores every deleted decision.
func (s *Store) ApprovalsInYear(ctx context.Context, beneficiaryID string, year int, cutoff *time.Time) ([]model.PriorDecision, error) {
	out, err := approvalsInYear(ctx, s.pool, beneficiaryID, year, cutoff)
	if err != nil {
		return nil, fmt.Errorf("approvals in year: %w", err)
	}
	return out, nil
}

// CreateDecision stores d and, for an approval, its NY payment p in one
// transaction. The beneficiary is locked for the duration of the
// transaction and an approval is refused with a duplicate error if another
// approval for the same year was committed first.
func (s *Store) CreateDecision(ctx context.Context, d *model.Decision, p *model.Payment, cutoff *time.Time) error {
	if d.Approved() != (p != nil) {
		return apperr.Inconsistent("payment must be given exactly for approved decisions", d.ID.String())
	}

	strength, err := json.Marshal(d.Strength)
	if err != nil {
		return fmt.Errorf("encode strength: %w", err)
	}
	tree, err := d.Evaluation.MarshalTree()
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, embedsql.LockBeneficiary, d.BeneficiaryID); err != nil {
			return fmt.Errorf("lock beneficiary: %w", err)
		}

		if d.Approved() {
			prior, err := approvalsInYear(ctx, tx, d.BeneficiaryID, d.OrderDate.Year(), cutoff)
			if err != nil {
				return fmt.Errorf("recheck approvals: %w", err)
			}
			if len(prior) > 0 {
				return apperr.Duplicate("beneficiary already has an approved decision this year",
					fmt.Sprintf("year=%d existing=%s", d.OrderDate.Year(), prior[0].ID))
			}
		}

		if _, err := tx.Exec(ctx, embedsql.InsertDecision,
			d.ID, d.BeneficiaryID, d.SubmitterID, d.OrgID, utcDate(d.OrderDate), d.OrderRef,
			strength, tree, string(d.Outcome), d.Tier, d.Amount, d.CreatedAt); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}

		if p == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, embedsql.InsertPayment,
			p.ID, p.DecisionID, p.OrgID, p.Amount, string(p.Status), p.CreatedAt); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return insertTransitions(ctx, tx, []model.Transition{{PaymentID: p.ID, To: p.Status, At: p.CreatedAt}})
	})
}

// GetDecision loads a decision, including deleted ones.
func (s *Store) GetDecision(ctx context.Context, id uuid.UUID) (*model.Decision, error) {
	var (
		d        model.Decision
		strength []byte
		tree     []byte
		outcome  string
	)
	err := s.pool.QueryRow(ctx, embedsql.GetDecision, id).Scan(
		&d.ID, &d.BeneficiaryID, &d.SubmitterID, &d.OrgID, &d.OrderDate, &d.OrderRef,
		&strength, &tree, &outcome, &d.Tier, &d.Amount, &d.CreatedAt, &d.DeletedAt, &d.DeletedBy)
	if isNoRows(err) {
		return nil, apperr.NotFound("decision not found", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}

	if d.Outcome, err = model.ParseOutcome(outcome); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(strength, &d.Strength); err != nil {
		return nil, fmt.Errorf("decode strength: %w", err)
	}
	if d.Evaluation, err = rules.UnmarshalTree(tree); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &d, nil
}

// PaymentForDecision returns the payment paired with a decision.
func (s *Store) PaymentForDecision(ctx context.Context, decisionID uuid.UUID) (*model.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, embedsql.GetPaymentByDecision, decisionID))
	if isNoRows(err) {
		return nil, apperr.NotFound("payment not found", decisionID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

// DeleteDecision tombstones a decision. It is refused once the paired
// payment has left NY, and for decisions that are already deleted.
//
// The decision row is locked before the payment status is checked.
// AdvanceBatch share-locks the same rows before moving payments out of NY,
// so one of the two waits for the other and then sees its result.
func (s *Store) DeleteDecision(ctx context.Context, id uuid.UUID, deletedBy string, at time.Time) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var deletedAt *time.Time
		if err := tx.QueryRow(ctx, embedsql.LockDecision, id).Scan(&deletedAt); err != nil {
			if isNoRows(err) {
				return apperr.NotFound("decision not found", id.String())
			}
			return fmt.Errorf("lock decision: %w", err)
		}
		if deletedAt != nil {
			return apperr.Validation("decision is already deleted", id.String())
		}

		tag, err := tx.Exec(ctx, embedsql.DeleteDecision, id, at, deletedBy)
		if err != nil {
			return fmt.Errorf("delete decision: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return apperr.Validation("decision can no longer be deleted: payment has been submitted", id.String())
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("decision_id", id.String()).Str("deleted_by", deletedBy).Msg("decision deleted")
	return nil
}
