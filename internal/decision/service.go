// Package decision turns claims into recorded decisions: it gathers the
// evaluation input from the registries and the store, runs the eligibility
// rules and persists the outcome.
package decision

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/eligibility"
	"github.com/gyeh/brillestotte/internal/model"
	"github.com/gyeh/brillestotte/internal/rules"
	"github.com/gyeh/brillestotte/internal/sats"
)

// IdentityLookup is the population registry.
type IdentityLookup interface {
	BirthDateAndPriorDecisions(ctx context.Context, beneficiaryID string) (model.Identity, error)
}

// MembershipLookup is the scheme-membership registry.
type MembershipLookup interface {
	CheckMembership(ctx context.Context, beneficiaryID string, orderDate time.Time) (model.Membership, error)
}

// Store persists decisions.
type Store interface {
	ApprovalsInYear(ctx context.Context, beneficiaryID string, year int, cutoff *time.Time) ([]model.PriorDecision, error)
	CreateDecision(ctx context.Context, d *model.Decision, p *model.Payment, cutoff *time.Time) error
	GetDecision(ctx context.Context, id uuid.UUID) (*model.Decision, error)
	DeleteDecision(ctx context.Context, id uuid.UUID, deletedBy string, at time.Time) error
}

// Settings configure a Service.
type Settings struct {
	ProgramStart time.Time
	Location     *time.Location
	Criteria     eligibility.Settings
}

// Service decides claims.
type Service struct {
	identity   IdentityLookup
	membership MembershipLookup
	store      Store
	table      *sats.Table
	rule       rules.Rule[eligibility.Grunnlag]
	settings   Settings
	validate   *validator.Validate
	now        func() time.Time
	log        zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a Service.
func NewService(identity IdentityLookup, membership MembershipLookup, store Store, table *sats.Table, settings Settings, log zerolog.Logger, opts ...Option) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	s := &Service{
		identity:   identity,
		membership: membership,
		store:      store,
		table:      table,
		rule:       eligibility.RuleSet(table, settings.Criteria),
		settings:   settings,
		validate:   newValidator(),
		now:        time.Now,
		log:        log.With().Str("component", "decision").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Assessment is the evaluated but unpersisted result of a claim.
type Assessment struct {
	Grunnlag   eligibility.Grunnlag
	Evaluation rules.Evaluation
	Outcome    model.Outcome
	Rate       sats.Rate
	// Duplicate is set when the beneficiary already has an approval in the
	// order's calendar year.
	Duplicate bool
}

// Check evaluates a claim without persisting anything.
func (s *Service) Check(ctx context.Context, claim model.Claim) (*Assessment, error) {
	if err := validateClaim(s.validate, &claim); err != nil {
		return nil, err
	}
	return s.assess(ctx, &claim)
}

// Decide evaluates a claim and records the decision, plus its NY payment
// when approved. A rejection is returned as a decision, not an error. A
// claim that would give the beneficiary a second approval in one calendar
// year fails with a duplicate error unless the claim asks for the
// rejection to be recorded.
func (s *Service) Decide(ctx context.Context, claim model.Claim) (*model.Decision, error) {
	if err := validateClaim(s.validate, &claim); err != nil {
		return nil, err
	}
	a, err := s.assess(ctx, &claim)
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("order_ref", claim.OrderRef).Str("org_id", claim.OrgID).Logger()
	if a.Duplicate && !claim.RecordDuplicateAsRejection {
		log.Info().Int("year", a.Grunnlag.OrderDate.Year()).Msg("duplicate claim refused")
		return nil, apperr.Duplicate("beneficiary already has an approved decision this year",
			fmt.Sprintf("year=%d", a.Grunnlag.OrderDate.Year()))
	}

	now := s.now().UTC()
	d := &model.Decision{
		ID:            uuid.New(),
		BeneficiaryID: claim.BeneficiaryID,
		SubmitterID:   claim.SubmitterID,
		OrgID:         claim.OrgID,
		OrderDate:     a.Grunnlag.OrderDate,
		OrderRef:      claim.OrderRef,
		Strength:      claim.Strength,
		Evaluation:    a.Evaluation,
		Outcome:       a.Outcome,
		Tier:          int(a.Rate.Tier),
		CreatedAt:     now,
	}

	var p *model.Payment
	if d.Approved() {
		d.Amount = a.Rate.Amount
		p = &model.Payment{
			ID:         uuid.New(),
			DecisionID: d.ID,
			OrgID:      d.OrgID,
			Amount:     d.Amount,
			Status:     model.StatusNew,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	if err := s.store.CreateDecision(ctx, d, p, claim.TombstoneCutoff); err != nil {
		return nil, err
	}

	log.Info().
		Str("decision_id", d.ID.String()).
		Str("outcome", string(d.Outcome)).
		Int("tier", d.Tier).
		Int64("amount", d.Amount).
		Msg("decision recorded")
	return d, nil
}

// Delete tombstones a decision while its payment has not been submitted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	if deletedBy == "" {
		return apperr.Validation("deleted_by is required")
	}
	return s.store.DeleteDecision(ctx, id, deletedBy, s.now().UTC())
}

// Get loads a recorded decision.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Decision, error) {
	return s.store.GetDecision(ctx, id)
}

// assess gathers the grunnlag concurrently and evaluates the rule set. The
// first failing lookup cancels the others.
func (s *Service) assess(ctx context.Context, claim *model.Claim) (*Assessment, error) {
	orderDate := model.DateOf(claim.OrderDate, s.settings.Location)
	today := model.DateOf(s.now(), s.settings.Location)

	var (
		identity   model.Identity
		membership model.Membership
		local      []model.PriorDecision
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		identity, err = s.identity.BirthDateAndPriorDecisions(gctx, claim.BeneficiaryID)
		return collaboratorErr("identity-registry", err)
	})
	g.Go(func() error {
		var err error
		membership, err = s.membership.CheckMembership(gctx, claim.BeneficiaryID, orderDate)
		return collaboratorErr("membership-registry", err)
	})
	g.Go(func() error {
		var err error
		local, err = s.store.ApprovalsInYear(gctx, claim.BeneficiaryID, orderDate.Year(), claim.TombstoneCutoff)
		if err != nil {
			return fmt.Errorf("load approvals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gr := eligibility.Grunnlag{
		BirthDate:      identity.BirthDate,
		PriorApprovals: mergePrior(identity.PriorApprovals, local),
		Strength:       claim.Strength,
		OrderDate:      orderDate,
		Membership:     membership,
		Today:          today,
		ProgramStart:   s.settings.ProgramStart,
	}
	ev := rules.Evaluate(s.rule, gr)

	a := &Assessment{
		Grunnlag:   gr,
		Evaluation: ev,
		Outcome:    eligibility.Outcome(ev.Result),
		Rate:       s.table.Lookup(claim.Strength, orderDate),
	}
	if leaf, ok := ev.Find(eligibility.NoDecisionThisYear); ok && leaf.Result == rules.ResultNo {
		a.Duplicate = true
	}
	return a, nil
}

// collaboratorErr classifies a lookup failure as an unavailable
// collaborator unless it is already classified.
func collaboratorErr(name string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Unavailable(name, err)
}

// mergePrior combines registry and local approvals, dropping repeated ids.
func mergePrior(lists ...[]model.PriorDecision) []model.PriorDecision {
	seen := make(map[string]bool)
	var out []model.PriorDecision
	for _, l := range lists {
		for _, p := range l {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderDate.Before(out[j].OrderDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
