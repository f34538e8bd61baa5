// Package payout runs the periodic payment jobs: promote new payments into
// batches, submit due batches and resubmit stuck ones. It also applies
// confirmations received from the payout side.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/brillestotte/internal/batch"
	"github.com/gyeh/brillestotte/internal/model"
)

// Job names.
const (
	JobPromote = "promote"
	JobSubmit  = "submit"
	JobRetry   = "retry"
)

// JobError wraps an error with the job where it occurred.
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Job, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Store is the payment storage the jobs need.
type Store interface {
	ListPromotable(ctx context.Context, createdBefore time.Time) ([]model.Payment, error)
	StampBatch(ctx context.Context, paymentID uuid.UUID, batchDate time.Time, batchID string, now time.Time) (bool, error)
	ListDue(ctx context.Context, onOrBefore time.Time) ([]model.Payment, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Payment, error)
	AdvanceBatch(ctx context.Context, b *model.Batch, from, to model.Status, now time.Time, publish func(context.Context) error) error
	MarkStuck(ctx context.Context, updatedBefore, now time.Time) ([]uuid.UUID, error)
	ConfirmBatch(ctx context.Context, batchID string, paidOn, now time.Time) (int, error)
}

// Submitter hands a batch to the disbursement channel.
type Submitter interface {
	Submit(ctx context.Context, b *model.Batch, resubmission bool) error
}

// Settings are the job thresholds.
type Settings struct {
	Location     *time.Location
	PromoteGrace time.Duration
	BatchDueDays int
	RetryAfter   time.Duration
	SoftLimit    int
}

// Service implements the jobs against a Store and a Submitter.
type Service struct {
	store     Store
	submitter Submitter
	settings  Settings
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the job service.
func NewService(store Store, submitter Submitter, settings Settings, log zerolog.Logger, opts ...Option) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.SoftLimit <= 0 {
		settings.SoftLimit = batch.DefaultSoftLimit
	}
	s := &Service{
		store:     store,
		submitter: submitter,
		settings:  settings,
		log:       log.With().Str("component", "payout").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Promote stamps a batch date and id on NY payments older than the grace
// window. The batch date is the payment's creation day in the business
// time zone.
func (s *Service) Promote(ctx context.Context) (*model.JobSummary, error) {
	now := s.now()
	payments, err := s.store.ListPromotable(ctx, now.Add(-s.settings.PromoteGrace))
	if err != nil {
		return nil, &JobError{Job: JobPromote, Err: err}
	}

	summary := &model.JobSummary{Job: JobPromote}
	batches := make(map[string]bool)
	for _, p := range payments {
		date := model.DateOf(p.CreatedAt, s.settings.Location)
		id := batch.ID(p.OrgID, date)
		ok, err := s.store.StampBatch(ctx, p.ID, date, id, now)
		if err != nil {
			return summary, &JobError{Job: JobPromote, Err: err}
		}
		if !ok {
			summary.Skipped++
			continue
		}
		summary.Payments++
		batches[id] = true
	}
	summary.Batches = len(batches)
	return summary, nil
}

// Submit sends every NY batch whose batch date is at least BatchDueDays
// old. Each batch moves to TIL_UTBETALING and is handed to the submitter
// in one transaction; a failed batch stays NY and the rest proceed.
func (s *Service) Submit(ctx context.Context) (*model.JobSummary, error) {
	now := s.now()
	due := model.DateOf(now, s.settings.Location).AddDate(0, 0, -s.settings.BatchDueDays)

	payments, err := s.store.ListDue(ctx, due)
	if err != nil {
		return nil, &JobError{Job: JobSubmit, Err: err}
	}
	return s.send(ctx, JobSubmit, payments, model.StatusNew, false, now)
}

// Retry moves submitted payments unconfirmed for RetryAfter to REKJOR,
// then regroups every REKJOR payment and resubmits it.
func (s *Service) Retry(ctx context.Context) (*model.JobSummary, error) {
	now := s.now()
	stuck, err := s.store.MarkStuck(ctx, now.Add(-s.settings.RetryAfter), now)
	if err != nil {
		return nil, &JobError{Job: JobRetry, Err: err}
	}
	if len(stuck) > 0 {
		s.log.Warn().Int("payments", len(stuck)).Dur("after", s.settings.RetryAfter).
			Msg("unconfirmed payments marked for resubmission")
	}

	payments, err := s.store.ListByStatus(ctx, model.StatusRetry)
	if err != nil {
		return nil, &JobError{Job: JobRetry, Err: err}
	}
	return s.send(ctx, JobRetry, payments, model.StatusRetry, true, now)
}

func (s *Service) send(ctx context.Context, job string, payments []model.Payment, from model.Status, resubmission bool, now time.Time) (*model.JobSummary, error) {
	summary := &model.JobSummary{Job: job}
	if len(payments) == 0 {
		return summary, nil
	}

	batches, err := batch.Group(payments)
	if err != nil {
		return summary, &JobError{Job: job, Err: err}
	}
	for _, b := range batch.Oversized(batches, s.settings.SoftLimit) {
		s.log.Warn().
			Str("alert", "oversized_batch").
			Str("batch_id", b.ID).
			Int("payments", len(b.Payments)).
			Int("limit", s.settings.SoftLimit).
			Msg("batch exceeds soft limit")
	}

	var errs []error
	for i := range batches {
		b := &batches[i]
		err := s.store.AdvanceBatch(ctx, b, from, model.StatusSubmitted, now, func(ctx context.Context) error {
			return s.submitter.Submit(ctx, b, resubmission)
		})
		if err != nil {
			s.log.Error().Err(err).Str("job", job).Str("batch_id", b.ID).Msg("batch not submitted")
			summary.Skipped++
			errs = append(errs, err)
			continue
		}
		summary.Batches++
		summary.Payments += len(b.Payments)
	}

	if len(errs) > 0 {
		return summary, &JobError{Job: job, Err: errors.Join(errs...)}
	}
	return summary, nil
}

// Confirm marks every submitted member of the batch as paid on paidOn.
// Repeated confirmations change nothing.
func (s *Service) Confirm(ctx context.Context, batchID string, paidOn time.Time) (int, error) {
	n, err := s.store.ConfirmBatch(ctx, batchID, paidOn, s.now())
	if err != nil {
		return 0, err
	}
	s.log.Info().
		Str("batch_id", batchID).
		Str("paid_on", paidOn.Format("2006-01-02")).
		Int("payments", n).
		Msg("batch confirmed")
	return n, nil
}
