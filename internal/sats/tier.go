// Package sats maps a prescription strength to a subsidy tier and looks up
// the tier's amount on a given date.
package sats

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TierID identifies a subsidy tier. TierNone means the prescription does not
// qualify.
type TierID int

const (
	TierNone TierID = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
)

func (id TierID) String() string {
	if id == TierNone {
		return "SATS_INGEN"
	}
	return fmt.Sprintf("SATS_%d", int(id))
}

// Combinator decides how a tier's sphere and cylinder ranges are combined.
type Combinator string

const (
	// Either matches when sphere or cylinder is in range.
	Either Combinator = "OR"
	// Both matches when sphere is in range and cylinder stays inside its
	// (ceiling) range.
	Both Combinator = "AND"
)

// Range is a half-open interval [Min, Below). A nil bound is unbounded.
// Tier tables set each Below to the next tier's Min, so a strength between
// two published steps (4.10 when the table lists 4.00 and 4.25) falls in the
// tier whose Min lies below it.
type Range struct {
	Min   *decimal.Decimal
	Below *decimal.Decimal
}

// Contains reports whether v lies in the range.
func (r Range) Contains(v decimal.Decimal) bool {
	if r.Min != nil && v.LessThan(*r.Min) {
		return false
	}
	if r.Below != nil && !v.LessThan(*r.Below) {
		return false
	}
	return true
}

func (r Range) String() string {
	switch {
	case r.Min == nil && r.Below == nil:
		return "any"
	case r.Min == nil:
		return "< " + r.Below.StringFixed(2)
	case r.Below == nil:
		return ">= " + r.Min.StringFixed(2)
	default:
		return r.Min.StringFixed(2) + " to <" + r.Below.StringFixed(2)
	}
}

// Tier is one row of the rate table.
type Tier struct {
	ID          TierID
	Description string
	Sphere      Range
	Cylinder    Range
	Combine     Combinator
}

// Matches reports whether the tier applies to the given maxima.
func (t Tier) Matches(maxSphere, maxCylinder decimal.Decimal) bool {
	switch t.Combine {
	case Either:
		return t.Sphere.Contains(maxSphere) || t.Cylinder.Contains(maxCylinder)
	case Both:
		return t.Sphere.Contains(maxSphere) && t.Cylinder.Contains(maxCylinder)
	default:
		panic(fmt.Sprintf("sats: tier %s has unknown combinator %q", t.ID, t.Combine))
	}
}

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

// tiers is ordered most severe first. Tiers 4 and 2 require the cylinder to
// stay below a ceiling as well; the others accept either measurement. The
// asymmetry follows the published rate table.
var tiers = []Tier{
	{
		ID:          Tier5,
		Description: "sphere from 10.25 D or cylinder from 6.25 D",
		Sphere:      Range{Min: d("10.25")},
		Cylinder:    Range{Min: d("6.25")},
		Combine:     Either,
	},
	{
		ID:          Tier4,
		Description: "sphere 8.25-10.00 D and cylinder up to 6.00 D",
		Sphere:      Range{Min: d("8.25"), Below: d("10.25")},
		Cylinder:    Range{Below: d("6.25")},
		Combine:     Both,
	},
	{
		ID:          Tier3,
		Description: "sphere 6.25-8.00 D or cylinder 4.25-6.00 D",
		Sphere:      Range{Min: d("6.25"), Below: d("8.25")},
		Cylinder:    Range{Min: d("4.25"), Below: d("6.25")},
		Combine:     Either,
	},
	{
		ID:          Tier2,
		Description: "sphere 4.25-6.00 D and cylinder up to 4.00 D",
		Sphere:      Range{Min: d("4.25"), Below: d("6.25")},
		Cylinder:    Range{Below: d("4.25")},
		Combine:     Both,
	},
	{
		ID:          Tier1,
		Description: "sphere 1.00-4.00 D or cylinder 1.00-4.00 D",
		Sphere:      Range{Min: d("1.00"), Below: d("4.25")},
		Cylinder:    Range{Min: d("1.00"), Below: d("4.25")},
		Combine:     Either,
	},
}

var noTier = Tier{
	ID:          TierNone,
	Description: "below 1.00 D sphere and cylinder",
	Combine:     Either,
}

// Tiers returns the rate table rows in priority order, zero tier last.
func Tiers() []Tier {
	out := make([]Tier, 0, len(tiers)+1)
	out = append(out, tiers...)
	return append(out, noTier)
}
