package eligibility

import (
	"fmt"
	"strings"

	"github.com/gyeh/brillestotte/internal/model"
	"github.com/gyeh/brillestotte/internal/rules"
	"github.com/gyeh/brillestotte/internal/sats"
)

// Criterion IDs. They are stored in justification trees, so they must not
// change.
const (
	NoDecisionThisYear     = "HarIkkeVedtakIKalenderaaret"
	UnderAgeOnOrderDate    = "Under18AarPaaBestillingsdato"
	SchemeMember           = "MedlemAvFolketrygden"
	PrescriptionStrength   = "Brillestyrke"
	OrderAfterProgramStart = "BestillingsdatoEtterOrdningStart"
	OrderWithinLookBack    = "BestillingsdatoTilbakeITid"
	OrderNotInFuture       = "BestillingsdatoIkkeFremITid"
)

// Settings are the tunable limits of the criteria.
type Settings struct {
	AgeLimit       int
	LookBackMonths int
}

// DefaultSettings match the current regulation.
var DefaultSettings = Settings{AgeLimit: 18, LookBackMonths: 6}

const dateLayout = "2006-01-02"

func noDecisionThisYear() rules.Rule[Grunnlag] {
	return rules.New(NoDecisionThisYear, "no approved decision in the order's calendar year",
		func(g Grunnlag) rules.Evaluation {
			prior := g.ApprovalsInOrderYear()
			if len(prior) == 0 {
				return rules.Yes(fmt.Sprintf("no approved decision in %d", g.OrderDate.Year()))
			}
			refs := make([]string, len(prior))
			for i, p := range prior {
				refs[i] = p.ID + " (" + p.OrderDate.Format(dateLayout) + ")"
			}
			return rules.No(fmt.Sprintf("already approved in %d: %s", g.OrderDate.Year(), strings.Join(refs, ", ")))
		})
}

func underAge(limit int) rules.Rule[Grunnlag] {
	return rules.New(UnderAgeOnOrderDate, fmt.Sprintf("beneficiary under %d on the order date", limit),
		func(g Grunnlag) rules.Evaluation {
			if g.BirthDate == nil {
				return rules.Maybe("date of birth unknown")
			}
			limitDate := addMonths(*g.BirthDate, 12*limit)
			if g.OrderDate.Before(limitDate) {
				return rules.Yes(fmt.Sprintf("born %s, turns %d on %s after order date %s",
					g.BirthDate.Format(dateLayout), limit, limitDate.Format(dateLayout), g.OrderDate.Format(dateLayout)))
			}
			return rules.No(fmt.Sprintf("born %s, turned %d on %s, not after order date %s",
				g.BirthDate.Format(dateLayout), limit, limitDate.Format(dateLayout), g.OrderDate.Format(dateLayout)))
		})
}

func schemeMember() rules.Rule[Grunnlag] {
	return rules.New(SchemeMember, "beneficiary is not disproven as a scheme member",
		func(g Grunnlag) rules.Evaluation {
			switch g.Membership {
			case model.MembershipProven:
				return rules.Yes("membership confirmed")
			case model.MembershipUndetermined:
				return rules.Yes("membership could not be determined, assumed member")
			case model.MembershipDisproven:
				return rules.No("not a scheme member on the order date")
			default:
				panic(fmt.Sprintf("eligibility: unknown membership %q", g.Membership))
			}
		})
}

func prescriptionStrength(table *sats.Table) rules.Rule[Grunnlag] {
	return rules.New(PrescriptionStrength, "prescription meets the lowest subsidy tier",
		func(g Grunnlag) rules.Evaluation {
			tier := table.Calculate(g.Strength)
			if tier.ID == sats.TierNone {
				return rules.No(fmt.Sprintf("%s is %s", g.Strength, tier.Description))
			}
			return rules.Yes(fmt.Sprintf("%s qualifies for %s: %s", g.Strength, tier.ID, tier.Description))
		})
}

func orderAfterProgramStart() rules.Rule[Grunnlag] {
	return rules.New(OrderAfterProgramStart, "order placed on or after the program start",
		func(g Grunnlag) rules.Evaluation {
			if g.OrderDate.Before(g.ProgramStart) {
				return rules.No(fmt.Sprintf("order date %s is before program start %s",
					g.OrderDate.Format(dateLayout), g.ProgramStart.Format(dateLayout)))
			}
			return rules.Yes(fmt.Sprintf("order date %s is on or after program start %s",
				g.OrderDate.Format(dateLayout), g.ProgramStart.Format(dateLayout)))
		})
}

func orderWithinLookBack(months int) rules.Rule[Grunnlag] {
	return rules.New(OrderWithinLookBack, fmt.Sprintf("order placed within the last %d months", months),
		func(g Grunnlag) rules.Evaluation {
			earliest := addMonths(g.Today, -months)
			if g.OrderDate.Before(earliest) {
				return rules.No(fmt.Sprintf("order date %s is before %s", g.OrderDate.Format(dateLayout), earliest.Format(dateLayout)))
			}
			return rules.Yes(fmt.Sprintf("order date %s is on or after %s", g.OrderDate.Format(dateLayout), earliest.Format(dateLayout)))
		})
}

func orderNotInFuture() rules.Rule[Grunnlag] {
	return rules.New(OrderNotInFuture, "order date is not in the future",
		func(g Grunnlag) rules.Evaluation {
			if g.OrderDate.After(g.Today) {
				return rules.No(fmt.Sprintf("order date %s is after today %s", g.OrderDate.Format(dateLayout), g.Today.Format(dateLayout)))
			}
			return rules.Yes(fmt.Sprintf("order date %s is not after today %s", g.OrderDate.Format(dateLayout), g.Today.Format(dateLayout)))
		})
}

// RuleSet returns the program's rule: every criterion must hold.
func RuleSet(table *sats.Table, s Settings) rules.Rule[Grunnlag] {
	return rules.All(
		noDecisionThisYear(),
		underAge(s.AgeLimit),
		schemeMember(),
		prescriptionStrength(table),
		orderAfterProgramStart(),
		orderWithinLookBack(s.LookBackMonths),
		orderNotInFuture(),
	)
}

// Outcome maps an evaluation result to a decision outcome. Only a definite
// YES approves; MAYBE is rejected so an unknown fact never pays out.
func Outcome(r rules.Result) model.Outcome {
	switch r {
	case rules.ResultYes:
		return model.OutcomeApproved
	case rules.ResultNo, rules.ResultMaybe:
		return model.OutcomeRejected
	default:
		panic(fmt.Sprintf("eligibility: unknown result %q", r))
	}
}
