package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gyeh/brillestotte/internal/apperr"
)

// DiopterPlaces is the fixed precision of every prescription value.
const DiopterPlaces = 2

var (
	minDiopter = decimal.NewFromInt(-99)
	maxDiopter = decimal.NewFromInt(99)
)

// Strength is a spectacle prescription: sphere and cylinder for each eye.
// Use NewStrength or Validate; the zero value is a valid plano prescription.
type Strength struct {
	RightSphere   decimal.Decimal `json:"right_sphere"`
	RightCylinder decimal.Decimal `json:"right_cylinder"`
	LeftSphere    decimal.Decimal `json:"left_sphere"`
	LeftCylinder  decimal.Decimal `json:"left_cylinder"`
}

// NewStrength parses and validates the four prescription values.
func NewStrength(rightSphere, rightCylinder, leftSphere, leftCylinder string) (Strength, error) {
	var s Strength
	var err error
	if s.RightSphere, err = ParseDiopter("right_sphere", rightSphere); err != nil {
		return Strength{}, err
	}
	if s.RightCylinder, err = ParseDiopter("right_cylinder", rightCylinder); err != nil {
		return Strength{}, err
	}
	if s.LeftSphere, err = ParseDiopter("left_sphere", leftSphere); err != nil {
		return Strength{}, err
	}
	if s.LeftCylinder, err = ParseDiopter("left_cylinder", leftCylinder); err != nil {
		return Strength{}, err
	}
	return s, nil
}

// MustStrength is NewStrength for literals known to be valid.
func MustStrength(rightSphere, rightCylinder, leftSphere, leftCylinder string) Strength {
	s, err := NewStrength(rightSphere, rightCylinder, leftSphere, leftCylinder)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseDiopter parses a single prescription value such as "-1.25" or "+0,50".
func ParseDiopter(field, raw string) (decimal.Decimal, error) {
	v := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	v = strings.TrimPrefix(v, "+")
	if v == "" {
		return decimal.Zero, apperr.Validation("missing prescription value", field)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, apperr.Validation("prescription value is not a number", fmt.Sprintf("%s=%q", field, raw))
	}
	if err := checkDiopter(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Validate checks range and precision of all four values. Strengths decoded
// from JSON bypass NewStrength, so callers validate before use.
func (s Strength) Validate() error {
	fields := []struct {
		name string
		v    decimal.Decimal
	}{
		{"right_sphere", s.RightSphere},
		{"right_cylinder", s.RightCylinder},
		{"left_sphere", s.LeftSphere},
		{"left_cylinder", s.LeftCylinder},
	}
	for _, f := range fields {
		if err := checkDiopter(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// MaxSphere is the larger absolute sphere of the two eyes.
func (s Strength) MaxSphere() decimal.Decimal {
	return decimal.Max(s.RightSphere.Abs(), s.LeftSphere.Abs())
}

// MaxCylinder is the larger cylinder of the two eyes. Cylinder is compared
// signed, matching the published rate table.
func (s Strength) MaxCylinder() decimal.Decimal {
	return decimal.Max(s.RightCylinder, s.LeftCylinder)
}

func (s Strength) String() string {
	return fmt.Sprintf("R %s/%s L %s/%s",
		s.RightSphere.StringFixed(DiopterPlaces), s.RightCylinder.StringFixed(DiopterPlaces),
		s.LeftSphere.StringFixed(DiopterPlaces), s.LeftCylinder.StringFixed(DiopterPlaces))
}

func checkDiopter(field string, d decimal.Decimal) error {
	if d.LessThan(minDiopter) || d.GreaterThan(maxDiopter) {
		return apperr.Validation("prescription value out of range", fmt.Sprintf("%s=%s, allowed -99.00..99.00", field, d))
	}
	if !d.Equal(d.Round(DiopterPlaces)) {
		return apperr.Validation("prescription value has more than two decimals", fmt.Sprintf("%s=%s", field, d))
	}
	return nil
}
