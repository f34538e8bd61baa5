// Package eligibility holds the subsidy criteria and the input they are
// evaluated against.
package eligibility

import (
	"time"

	"github.com/gyeh/brillestotte/internal/model"
)

// Grunnlag is everything one eligibility evaluation looks at. All dates are
// calendar dates at UTC midnight.
type Grunnlag struct {
	// BirthDate is nil when the identity registry has no date of birth.
	BirthDate *time.Time

	// PriorApprovals are approved decisions already on record for the
	// beneficiary, from the registry and from local storage.
	PriorApprovals []model.PriorDecision

	Strength     model.Strength
	OrderDate    time.Time
	Membership   model.Membership
	Today        time.Time
	ProgramStart time.Time
}

// ApprovalsInOrderYear returns the prior approvals whose order date falls in
// the same calendar year as this order.
func (g Grunnlag) ApprovalsInOrderYear() []model.PriorDecision {
	var out []model.PriorDecision
	for _, p := range g.PriorApprovals {
		if p.OrderDate.Year() == g.OrderDate.Year() {
			out = append(out, p)
		}
	}
	return out
}

// addMonths shifts a calendar date by whole months, keeping the day of
// month when the target month has it and otherwise using its last day:
// 31 August minus six months is 29 February, and 29 February plus one
// year is 28 February.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	month := time.Month(total + 1)
	last := time.Date(y, month+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return time.Date(y, month, min(d, last), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
