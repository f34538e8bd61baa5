package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the payment state. Transitions are governed by CanTransition.
type Status string

const (
	StatusNew       Status = "NY"
	StatusSubmitted Status = "TIL_UTBETALING"
	StatusPaid      Status = "UTBETALT"
	StatusRetry     Status = "REKJOR"
)

// AllStatuses lists payment states in lifecycle order.
var AllStatuses = []Status{StatusNew, StatusSubmitted, StatusRetry, StatusPaid}

// ParseStatus returns the Status for a stored value.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// CanTransition reports whether a payment may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusNew:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusPaid || next == StatusRetry
	case StatusRetry:
		return next == StatusSubmitted || next == StatusPaid
	case StatusPaid:
		return false
	default:
		return false
	}
}

// Payment is the disbursement record paired 1:1 with an approved Decision.
// BatchDate and BatchID are empty until the payment is promoted.
type Payment struct {
	ID         uuid.UUID
	DecisionID uuid.UUID
	OrgID      string
	Amount     int64
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	BatchDate  *time.Time
	BatchID    string
	PaidOn     *time.Time
}

// Transition records one status change of a payment.
type Transition struct {
	PaymentID uuid.UUID
	From      Status
	To        Status
	At        time.Time
}

// TransitionColumns returns the ordered column names for COPY into payment_transitions.
func TransitionColumns() []string {
	return []string{"payment_id", "from_status", "to_status", "at"}
}

// CopyValues returns the transition in TransitionColumns order. The
// creation transition has no from status and is stored as NULL.
func (t *Transition) CopyValues() []any {
	var from any
	if t.From != "" {
		from = string(t.From)
	}
	return []any{t.PaymentID, from, string(t.To), t.At}
}

// Batch is a group of payments for one vendor on one batch date. It is
// derived from its payments and never stored on its own.
type Batch struct {
	ID       string
	OrgID    string
	Date     time.Time
	Payments []Payment
}

// Total is the sum of the batch's payment amounts.
func (b *Batch) Total() int64 {
	var sum int64
	for _, p := range b.Payments {
		sum += p.Amount
	}
	return sum
}

// PaymentIDs returns member ids in batch order.
func (b *Batch) PaymentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b.Payments))
	for i, p := range b.Payments {
		ids[i] = p.ID
	}
	return ids
}
