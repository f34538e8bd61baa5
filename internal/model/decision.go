package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gyeh/brillestotte/internal/rules"
)

// Outcome is the resolved result of a decision.
type Outcome string

const (
	OutcomeApproved Outcome = "INNVILGET"
	OutcomeRejected Outcome = "AVSLÅTT"
)

// ParseOutcome maps a stored value back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeApproved, OutcomeRejected:
		return Outcome(s), nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}

// Membership is the scheme-membership lookup result.
type Membership string

const (
	MembershipProven       Membership = "PROVEN"
	MembershipDisproven    Membership = "DISPROVEN"
	MembershipUndetermined Membership = "UNDETERMINED"
)

// Claim is a vendor's request for subsidy on one eyewear order.
type Claim struct {
	BeneficiaryID string    `json:"beneficiary_id" validate:"required,len=11,number"`
	SubmitterID   string    `json:"submitter_id" validate:"required,len=11,number"`
	OrgID         string    `json:"org_id" validate:"required,len=9,number"`
	OrderDate     time.Time `json:"order_date" validate:"required"`
	OrderRef      string    `json:"order_ref" validate:"required,max=64"`
	Strength      Strength  `json:"strength"`

	// TombstoneCutoff makes decisions deleted after this instant still count
	// toward the one-approval-per-year rule. Nil ignores deleted decisions.
	TombstoneCutoff *time.Time `json:"tombstone_cutoff,omitempty"`

	// RecordDuplicateAsRejection stores a rejected decision instead of
	// failing with a duplicate error when the beneficiary already has an
	// approval this year.
	RecordDuplicateAsRejection bool `json:"record_duplicate_as_rejection,omitempty"`
}

// PriorDecision is an approval already granted to a beneficiary.
type PriorDecision struct {
	ID        string    `json:"id"`
	OrderDate time.Time `json:"order_date"`
	Source    string    `json:"source"`
}

// Decision is the recorded outcome of one eligibility evaluation.
type Decision struct {
	ID            uuid.UUID
	BeneficiaryID string
	SubmitterID   string
	OrgID         string
	OrderDate     time.Time
	OrderRef      string
	Strength      Strength
	Evaluation    rules.Evaluation
	Outcome       Outcome
	Tier          int
	Amount        int64
	CreatedAt     time.Time
	DeletedAt     *time.Time
	DeletedBy     *string
}

// Approved reports whether the decision grants the subsidy.
func (d *Decision) Approved() bool {
	switch d.Outcome {
	case OutcomeApproved:
		return true
	case OutcomeRejected:
		return false
	default:
		panic(fmt.Sprintf("decision %s has unknown outcome %q", d.ID, d.Outcome))
	}
}

// DateOf truncates t to its calendar date in loc, returned as UTC midnight.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Identity is what the population registry knows about a beneficiary.
type Identity struct {
	// BirthDate is nil when the registry has no date of birth on file.
	BirthDate      *time.Time
	PriorApprovals []PriorDecision
}
