// Package disbursement hands payment batches to the payout side and
// receives its confirmations. Two channels exist: a Redis pub/sub bus and a
// directory of Parquet outbox files picked up by an external transfer job.
package disbursement

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gyeh/brillestotte/internal/model"
)

// Submitter sends one batch for disbursement. Resubmission marks a batch
// regrouped from REKJOR payments.
type Submitter interface {
	Submit(ctx context.Context, b *model.Batch, resubmission bool) error
}

// ConfirmFunc is called for every confirmation received.
type ConfirmFunc func(ctx context.Context, batchID string, paidOn time.Time) error

// Line is one payment in a batch message.
type Line struct {
	PaymentID  string `json:"payment_id"`
	DecisionID string `json:"decision_id"`
	Amount     int64  `json:"amount"`
}

// Message is the wire form of a submitted batch.
type Message struct {
	BatchID      string    `json:"batch_id"`
	OrgID        string    `json:"org_id"`
	BatchDate    string    `json:"batch_date"`
	Lines        []Line    `json:"lines"`
	Total        int64     `json:"total"`
	Resubmission bool      `json:"resubmission"`
	SentAt       time.Time `json:"sent_at"`
}

// Confirmation is the wire form of a payout confirmation.
type Confirmation struct {
	BatchID string `json:"batch_id"`
	PaidOn  string `json:"paid_on"` // YYYY-MM-DD
}

// NewMessage builds the message for b.
func NewMessage(b *model.Batch, resubmission bool, now time.Time) Message {
	lines := make([]Line, len(b.Payments))
	for i, p := range b.Payments {
		lines[i] = Line{PaymentID: p.ID.String(), DecisionID: p.DecisionID.String(), Amount: p.Amount}
	}
	return Message{
		BatchID:      b.ID,
		OrgID:        b.OrgID,
		BatchDate:    b.Date.Format("2006-01-02"),
		Lines:        lines,
		Total:        b.Total(),
		Resubmission: resubmission,
		SentAt:       now.UTC(),
	}
}

// ParseConfirmation decodes and checks a confirmation payload.
func ParseConfirmation(payload []byte) (string, time.Time, error) {
	var c Confirmation
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", time.Time{}, fmt.Errorf("decode confirmation: %w", err)
	}
	if c.BatchID == "" {
		return "", time.Time{}, fmt.Errorf("confirmation has no batch_id")
	}
	paidOn, err := time.Parse("2006-01-02", c.PaidOn)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("confirmation %s: invalid paid_on %q", c.BatchID, c.PaidOn)
	}
	return c.BatchID, paidOn, nil
}
