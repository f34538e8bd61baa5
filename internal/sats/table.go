package sats

import (
	"time"

	"github.com/gyeh/brillestotte/internal/model"
)

// Rate is the tier and amount that apply to a prescription on an order date.
type Rate struct {
	Tier          TierID
	Description   string
	Amount        int64
	EffectiveFrom *time.Time
}

// Table combines the fixed tier rules with an amount schedule.
type Table struct {
	schedule Schedule
}

// NewTable returns a table using the given schedule.
func NewTable(schedule Schedule) *Table {
	return &Table{schedule: schedule}
}

// Default returns a table backed by the embedded schedule.
func Default() *Table {
	return NewTable(DefaultSchedule())
}

// Calculate returns the first tier, in priority order, that matches the
// prescription. Exactly one tier is returned; TierNone when nothing matches.
func (t *Table) Calculate(s model.Strength) Tier {
	maxSphere := s.MaxSphere()
	maxCylinder := s.MaxCylinder()
	for _, tier := range tiers {
		if tier.Matches(maxSphere, maxCylinder) {
			return tier
		}
	}
	return noTier
}

// Lookup resolves tier and amount. The amount is zero for TierNone or when
// the order date precedes every schedule entry.
func (t *Table) Lookup(s model.Strength, orderDate time.Time) Rate {
	tier := t.Calculate(s)
	rate := Rate{Tier: tier.ID, Description: tier.Description}
	if tier.ID == TierNone {
		return rate
	}
	entry, ok := t.schedule.Entry(orderDate)
	if !ok {
		return rate
	}
	from := entry.EffectiveFrom
	rate.Amount = entry.Amounts[tier.ID]
	rate.EffectiveFrom = &from
	return rate
}
