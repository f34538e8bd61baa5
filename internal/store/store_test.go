package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/batch"
	"github.com/gyeh/brillestotte/internal/db"
	"github.com/gyeh/brillestotte/internal/logging"
	"github.com/gyeh/brillestotte/internal/model"
	"github.com/gyeh/brillestotte/internal/rules"
	"github.com/gyeh/brillestotte/internal/store"
)

const (
	beneficiary = "12345678901"
	submitter   = "10987654321"
	orgA        = "111111111"
	orgB        = "222222222"
)

var created = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// ---------- helpers ----------

func newDecision(benef, org string, orderDate time.Time, outcome model.Outcome) *model.Decision {
	result := rules.ResultYes
	if outcome == model.OutcomeRejected {
		result = rules.ResultNo
	}
	return &model.Decision{
		ID:            uuid.New(),
		BeneficiaryID: benef,
		SubmitterID:   submitter,
		OrgID:         org,
		OrderDate:     orderDate,
		OrderRef:      "ref-" + uuid.NewString()[:8],
		Strength:      model.MustStrength("1.00", "1.00", "1.00", "1.00"),
		Evaluation: rules.Evaluation{Result: result, Reason: "test", Operator: rules.OpAnd, Children: []rules.Evaluation{
			{Result: result, Reason: "leaf", ID: "Leaf", Operator: rules.OpNone},
		}},
		Outcome:   outcome,
		Tier:      1,
		Amount:    750,
		CreatedAt: created,
	}
}

func paymentFor(d *model.Decision) *model.Payment {
	return &model.Payment{
		ID:         uuid.New(),
		DecisionID: d.ID,
		OrgID:      d.OrgID,
		Amount:     d.Amount,
		Status:     model.StatusNew,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.CreatedAt,
	}
}

// approve stores an approved decision with its payment.
func approve(t *testing.T, s *store.Store, benef, org string, orderDate time.Time) (*model.Decision, *model.Payment) {
	t.Helper()
	d := newDecision(benef, org, orderDate, model.OutcomeApproved)
	p := paymentFor(d)
	if err := s.CreateDecision(context.Background(), d, p, nil); err != nil {
		t.Fatalf("create decision: %v", err)
	}
	return d, p
}

func transitionCount(t *testing.T, pool *pgxpool.Pool, paymentID uuid.UUID) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM payment_transitions WHERE payment_id = $1`, paymentID).Scan(&n); err != nil {
		t.Fatalf("count transitions: %v", err)
	}
	return n
}

func promote(t *testing.T, s *store.Store, p *model.Payment, date time.Time) {
	t.Helper()
	ok, err := s.StampBatch(context.Background(), p.ID, date, batch.ID(p.OrgID, date), created)
	if err != nil || !ok {
		t.Fatalf("stamp batch: ok=%v err=%v", ok, err)
	}
}

func dueBatches(t *testing.T, s *store.Store, on time.Time) []model.Batch {
	t.Helper()
	due, err := s.ListDue(context.Background(), on)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	batches, err := batch.Group(due)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	return batches
}

// ---------- Migration tests ----------

func TestMigrations_Idempotent(t *testing.T) {
	_, pool := setupStore(t)
	ctx := context.Background()

	applied, err := db.ApplyMigrations(ctx, pool, logging.Setup("text", "error"))
	if err != nil {
		t.Fatalf("second migration run should succeed: %v", err)
	}
	if applied != 0 {
		t.Errorf("second run applied %d migrations, want 0", applied)
	}
}

// ---------- Decisions ----------

func TestCreateDecision_RoundTrip(t *testing.T) {
	s, pool := setupStore(t)
	ctx := context.Background()

	d, p := approve(t, s, beneficiary, orgA, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))

	got, err := s.GetDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if got.Outcome != model.OutcomeApproved || got.Amount != 750 || got.Tier != 1 {
		t.Errorf("decision = %+v", got)
	}
	if !got.Strength.RightSphere.Equal(d.Strength.RightSphere) {
		t.Errorf("strength = %s, want %s", got.Strength, d.Strength)
	}
	if leaf, ok := got.Evaluation.Find("Leaf"); !ok || leaf.Result != rules.ResultYes {
		t.Errorf("evaluation tree not preserved: %+v", got.Evaluation)
	}
	if !got.OrderDate.Equal(d.OrderDate) {
		t.Errorf("order date = %v, want %v", got.OrderDate, d.OrderDate)
	}

	pay, err := s.PaymentForDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if pay.ID != p.ID || pay.Status != model.StatusNew || pay.BatchID != "" || pay.BatchDate != nil {
		t.Errorf("payment = %+v", pay)
	}
	if n := transitionCount(t, pool, p.ID); n != 1 {
		t.Errorf("transitions = %d, want 1", n)
	}
}

func TestCreateDecision_RejectionHasNoPayment(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	d := newDecision(beneficiary, orgA, created, model.OutcomeRejected)
	if err := s.CreateDecision(ctx, d, nil, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.PaymentForDecision(ctx, d.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	p := paymentFor(d)
	if err := s.CreateDecision(ctx, newDecision(beneficiary, orgA, created, model.OutcomeRejected), p, nil); !apperr.IsInconsistent(err) {
		t.Errorf("rejection with payment should be inconsistent, got %v", err)
	}
}

func TestCreateDecision_OneApprovalPerYear(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	approve(t, s, beneficiary, orgA, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	second := newDecision(beneficiary, orgB, time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC), model.OutcomeApproved)
	err := s.CreateDecision(ctx, second, paymentFor(second), nil)
	if !apperr.IsDuplicate(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := s.GetDecision(ctx, second.ID); !apperr.IsNotFound(err) {
		t.Errorf("refused decision should not be stored, got %v", err)
	}

	// next year is fine
	approve(t, s, beneficiary, orgA, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	// a rejection for the same year is always recorded
	rej := newDecision(beneficiary, orgB, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), model.OutcomeRejected)
	if err := s.CreateDecision(ctx, rej, nil, nil); err != nil {
		t.Errorf("rejection should be stored: %v", err)
	}
}

func TestCreateDecision_ConcurrentApprovals(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	orderDate := time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)

	const workers = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := newDecision(beneficiary, orgA, orderDate, model.OutcomeApproved)
			err := s.CreateDecision(ctx, d, paymentFor(d), nil)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	ok, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.IsDuplicate(err):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Errorf("ok=%d dup=%d, want 1 and %d", ok, dup, workers-1)
	}
}

func TestApprovalsInYear_TombstoneCutoff(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	d, _ := approve(t, s, beneficiary, orgA, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	deletedAt := time.Date(2024, 4, 3, 12, 0, 0, 0, time.UTC)
	if err := s.DeleteDecision(ctx, d.ID, submitter, deletedAt); err != nil {
		t.Fatalf("delete: %v", err)
	}

	tests := []struct {
		name   string
		cutoff *time.Time
		want   int
	}{
		{"no cutoff ignores deleted", nil, 0},
		{"deleted after cutoff counts", ptr(deletedAt.Add(-time.Hour)), 1},
		{"deleted before cutoff ignored", ptr(deletedAt.Add(time.Hour)), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ApprovalsInYear(ctx, beneficiary, 2024, tt.cutoff)
			if err != nil {
				t.Fatalf("approvals: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d approvals, want %d", len(got), tt.want)
			}
		})
	}

	// a deleted approval does not block a new one without a cutoff
	approve(t, s, beneficiary, orgB, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))

	// but it does with a cutoff before the deletion
	third := newDecision(beneficiary, orgA, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), model.OutcomeApproved)
	cutoff := deletedAt.Add(-time.Hour)
	if err := s.CreateDecision(ctx, third, paymentFor(third), &cutoff); !apperr.IsDuplicate(err) {
		t.Errorf("expected duplicate, got %v", err)
	}
}

func TestDeleteDecision_OnlyWhilePaymentNew(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	batchDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	d, p := approve(t, s, beneficiary, orgA, batchDate)
	promote(t, s, p, batchDate)
	batches := dueBatches(t, s, batchDate)
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	if err := s.AdvanceBatch(ctx, &batches[0], model.StatusNew, model.StatusSubmitted, created, nil); err != nil {
		t.Fatalf("advance: %v", err)
	}

	err := s.DeleteDecision(ctx, d.ID, submitter, created)
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	other, _ := approve(t, s, "98765432109", orgA, batchDate)
	if err := s.DeleteDecision(ctx, other.ID, submitter, created); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDecision(ctx, other.ID, submitter, created); !apperr.IsValidation(err) {
		t.Errorf("second delete should fail, got %v", err)
	}
	if err := s.DeleteDecision(ctx, uuid.New(), submitter, created); !apperr.IsNotFound(err) {
		t.Errorf("unknown decision should be not found, got %v", err)
	}
}

func TestDeleteDecision_WaitsForSubmission(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	batchDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	d, p := approve(t, s, beneficiary, orgA, batchDate)
	promote(t, s, p, batchDate)
	batches := dueBatches(t, s, batchDate)
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}

	inside := make(chan struct{})
	release := make(chan struct{})
	advanced := make(chan error, 1)
	go func() {
		advanced <- s.AdvanceBatch(ctx, &batches[0], model.StatusNew, model.StatusSubmitted, created,
			func(context.Context) error {
				close(inside)
				<-release
				return nil
			})
	}()
	<-inside

	deleted := make(chan error, 1)
	go func() { deleted <- s.DeleteDecision(ctx, d.ID, submitter, created) }()

	select {
	case err := <-deleted:
		close(release)
		t.Fatalf("delete finished while the batch was being submitted: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	if err := <-advanced; err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := <-deleted; !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got, err := s.PaymentForDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if got.Status != model.StatusSubmitted {
		t.Errorf("status = %s, want %s", got.Status, model.StatusSubmitted)
	}
	dec, err := s.GetDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dec.DeletedAt != nil {
		t.Errorf("submitted decision was deleted at %v", dec.DeletedAt)
	}
}

func TestAdvanceBatch_WaitsForDelete(t *testing.T) {
	s, pool := setupStore(t)
	ctx := context.Background()
	batchDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	d, p := approve(t, s, beneficiary, orgA, batchDate)
	promote(t, s, p, batchDate)
	batches := dueBatches(t, s, batchDate)
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `SELECT id FROM decisions WHERE id = $1 FOR UPDATE`, d.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE decisions SET deleted_at = $2, deleted_by = $3 WHERE id = $1`, d.ID, created, submitter); err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	advanced := make(chan error, 1)
	go func() {
		advanced <- s.AdvanceBatch(ctx, &batches[0], model.StatusNew, model.StatusSubmitted, created, nil)
	}()

	select {
	case err := <-advanced:
		t.Fatalf("advance finished while the decision was being deleted: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := <-advanced; !apperr.IsInconsistent(err) {
		t.Fatalf("expected inconsistent state, got %v", err)
	}
	got, err := s.PaymentForDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if got.Status != model.StatusNew {
		t.Errorf("status = %s, want %s", got.Status, model.StatusNew)
	}
}

// ---------- Payments ----------

func TestPromote_SkipsDeletedAndRecent(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, live := approve(t, s, beneficiary, orgA, created)
	gone, _ := approve(t, s, "98765432109", orgA, created)
	if err := s.DeleteDecision(ctx, gone.ID, submitter, created); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.ListPromotable(ctx, created.Add(time.Minute))
	if err != nil {
		t.Fatalf("list promotable: %v", err)
	}
	if len(got) != 1 || got[0].ID != live.ID {
		t.Fatalf("promotable = %+v, want only %s", got, live.ID)
	}

	if got, _ := s.ListPromotable(ctx, created); len(got) != 0 {
		t.Errorf("payments created at the cutoff are not yet promotable")
	}

	promote(t, s, live, created)
	ok, err := s.StampBatch(ctx, live.ID, created, "other", created)
	if err != nil || ok {
		t.Errorf("second stamp should be a no-op: ok=%v err=%v", ok, err)
	}
}

func TestAdvanceBatch_AllOrNothing(t *testing.T) {
	s, pool := setupStore(t)
	ctx := context.Background()
	batchDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, p1 := approve(t, s, beneficiary, orgA, batchDate)
	_, p2 := approve(t, s, "98765432109", orgA, batchDate)
	promote(t, s, p1, batchDate)
	promote(t, s, p2, batchDate)

	batches := dueBatches(t, s, batchDate.AddDate(0, 0, 8))
	if len(batches) != 1 || len(batches[0].Payments) != 2 {
		t.Fatalf("batches = %+v", batches)
	}
	b := batches[0]
	if b.ID != "111111111-20240301" {
		t.Errorf("batch id = %s", b.ID)
	}

	// publish failure rolls back
	boom := errors.New("bus down")
	if err := s.AdvanceBatch(ctx, &b, model.StatusNew, model.StatusSubmitted, created, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if n := transitionCount(t, pool, p1.ID); n != 1 {
		t.Errorf("rolled back batch left %d transitions", n)
	}

	// one member moved elsewhere: nothing changes
	stale := b
	stale.Payments = append([]model.Payment(nil), b.Payments...)
	if _, err := pool.Exec(ctx, `UPDATE payments SET status = 'TIL_UTBETALING' WHERE id = $1`, p2.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.AdvanceBatch(ctx, &stale, model.StatusNew, model.StatusSubmitted, created, nil); !apperr.IsInconsistent(err) {
		t.Fatalf("expected inconsistent state, got %v", err)
	}
	pay, _ := s.PaymentForDecision(ctx, p1.DecisionID)
	if pay.Status != model.StatusNew {
		t.Errorf("p1 status = %s, want NY", pay.Status)
	}
	if _, err := pool.Exec(ctx, `UPDATE payments SET status = 'NY' WHERE id = $1`, p2.ID); err != nil {
		t.Fatal(err)
	}

	published := 0
	if err := s.AdvanceBatch(ctx, &b, model.StatusNew, model.StatusSubmitted, created, func(context.Context) error {
		published++
		return nil
	}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if published != 1 {
		t.Errorf("published %d times", published)
	}
	if n := transitionCount(t, pool, p1.ID); n != 2 {
		t.Errorf("transitions = %d, want 2", n)
	}

	// re-running is refused, not double-applied
	if err := s.AdvanceBatch(ctx, &b, model.StatusNew, model.StatusSubmitted, created, nil); !apperr.IsInconsistent(err) {
		t.Errorf("expected inconsistent state on rerun, got %v", err)
	}
	if err := s.AdvanceBatch(ctx, &b, model.StatusNew, model.StatusPaid, created, nil); !apperr.IsInconsistent(err) {
		t.Errorf("illegal transition should be refused, got %v", err)
	}
}

func TestMarkStuckAndConfirm(t *testing.T) {
	s, pool := setupStore(t)
	ctx := context.Background()
	batchDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, p := approve(t, s, beneficiary, orgA, batchDate)
	promote(t, s, p, batchDate)
	b := dueBatches(t, s, batchDate)[0]
	submittedAt := created.Add(time.Hour)
	if err := s.AdvanceBatch(ctx, &b, model.StatusNew, model.StatusSubmitted, submittedAt, nil); err != nil {
		t.Fatalf("advance: %v", err)
	}

	ids, err := s.MarkStuck(ctx, submittedAt, submittedAt.Add(time.Minute))
	if err != nil || len(ids) != 0 {
		t.Fatalf("nothing is stuck yet: ids=%v err=%v", ids, err)
	}
	ids, err = s.MarkStuck(ctx, submittedAt.Add(time.Second), submittedAt.Add(time.Hour))
	if err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("mark stuck: ids=%v err=%v", ids, err)
	}

	retry, err := s.ListByStatus(ctx, model.StatusRetry)
	if err != nil || len(retry) != 1 {
		t.Fatalf("list retry: %v %v", retry, err)
	}

	paidOn := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	n, err := s.ConfirmBatch(ctx, b.ID, paidOn, paidOn)
	if err != nil || n != 1 {
		t.Fatalf("confirm: n=%d err=%v", n, err)
	}
	n, err = s.ConfirmBatch(ctx, b.ID, paidOn, paidOn)
	if err != nil || n != 0 {
		t.Errorf("repeat confirm should be a no-op: n=%d err=%v", n, err)
	}
	if _, err := s.ConfirmBatch(ctx, "999999999-20240101", paidOn, paidOn); !apperr.IsNotFound(err) {
		t.Errorf("unknown batch should be not found, got %v", err)
	}

	pay, _ := s.PaymentForDecision(ctx, p.DecisionID)
	if pay.Status != model.StatusPaid || pay.PaidOn == nil || !pay.PaidOn.Equal(paidOn) {
		t.Errorf("payment = %+v", pay)
	}
	if n := transitionCount(t, pool, p.ID); n != 4 {
		t.Errorf("transitions = %d, want 4 (NY, submit, retry, paid)", n)
	}
}

func ptr[T any](v T) *T { return &v }
