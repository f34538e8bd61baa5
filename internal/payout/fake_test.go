package payout

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/model"
)

// memStore mirrors the conditional updates of the Postgres store.
type memStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*model.Payment
	deleted  map[uuid.UUID]bool // by decision id
	advanced int
}

func newMemStore() *memStore {
	return &memStore{payments: make(map[uuid.UUID]*model.Payment), deleted: make(map[uuid.UUID]bool)}
}

func (m *memStore) add(p model.Payment) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.DecisionID == uuid.Nil {
		p.DecisionID = uuid.New()
	}
	if p.Status == "" {
		p.Status = model.StatusNew
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	m.payments[p.ID] = &p
	return &p
}

func (m *memStore) get(id uuid.UUID) model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payments[id]
}

func (m *memStore) filter(keep func(*model.Payment) bool) []model.Payment {
	var out []model.Payment
	for _, p := range m.payments {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memStore) ListPromotable(_ context.Context, createdBefore time.Time) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(p *model.Payment) bool {
		return p.Status == model.StatusNew && p.BatchID == "" && p.CreatedAt.Before(createdBefore) && !m.deleted[p.DecisionID]
	}), nil
}

func (m *memStore) StampBatch(_ context.Context, id uuid.UUID, date time.Time, batchID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != model.StatusNew || p.BatchID != "" {
		return false, nil
	}
	d := date
	p.BatchDate, p.BatchID, p.UpdatedAt = &d, batchID, now
	return true, nil
}

func (m *memStore) ListDue(_ context.Context, onOrBefore time.Time) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(p *model.Payment) bool {
		return p.Status == model.StatusNew && p.BatchID != "" && !p.BatchDate.After(onOrBefore) && !m.deleted[p.DecisionID]
	}), nil
}

func (m *memStore) ListByStatus(_ context.Context, status model.Status) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(p *model.Payment) bool { return p.Status == status }), nil
}

func (m *memStore) AdvanceBatch(ctx context.Context, b *model.Batch, from, to model.Status, now time.Time, publish func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !from.CanTransition(to) {
		return apperr.Inconsistent("illegal payment transition")
	}
	for _, member := range b.Payments {
		if p, ok := m.payments[member.ID]; !ok || p.Status != from {
			return apperr.Inconsistent("batch members changed status concurrently")
		}
	}
	if publish != nil {
		if err := publish(ctx); err != nil {
			return err
		}
	}
	for _, member := range b.Payments {
		p := m.payments[member.ID]
		p.Status, p.UpdatedAt = to, now
	}
	m.advanced++
	return nil
}

func (m *memStore) MarkStuck(_ context.Context, updatedBefore, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, p := range m.payments {
		if p.Status == model.StatusSubmitted && p.UpdatedAt.Before(updatedBefore) {
			p.Status, p.UpdatedAt = model.StatusRetry, now
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (m *memStore) ConfirmBatch(_ context.Context, batchID string, paidOn, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found, changed := false, 0
	for _, p := range m.payments {
		if p.BatchID != batchID {
			continue
		}
		found = true
		if p.Status == model.StatusSubmitted || p.Status == model.StatusRetry {
			d := paidOn
			p.Status, p.PaidOn, p.UpdatedAt = model.StatusPaid, &d, now
			changed++
		}
	}
	if !found {
		return 0, apperr.NotFound("batch not found", batchID)
	}
	return changed, nil
}

type submission struct {
	batch        model.Batch
	resubmission bool
}

type fakeSubmitter struct {
	mu     sync.Mutex
	sent   []submission
	failOn map[string]error // by org id
}

func (f *fakeSubmitter) Submit(_ context.Context, b *model.Batch, resubmission bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[b.OrgID]; err != nil {
		return err
	}
	f.sent = append(f.sent, submission{batch: *b, resubmission: resubmission})
	return nil
}

type fakeElector struct {
	leader bool
	err    error
	calls  atomic.Int32
}

func (e *fakeElector) IsLeader(context.Context) (bool, error) {
	e.calls.Add(1)
	return e.leader, e.err
}
