package main

import (
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/exitcode"
	"github.com/gyeh/brillestotte/internal/model"
	"github.com/gyeh/brillestotte/internal/rules"
)

var (
	claimPath string
	checkOnly bool
	deleteID  string
	deleteBy  string
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide a claim read from a JSON file",
	RunE:  runDecide,
}

var showCmd = &cobra.Command{
	Use:   "show <decision-id>",
	Short: "Print a recorded decision and its payment",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a decision whose payment has not been submitted",
	RunE:  runDelete,
}

func init() {
	f := decideCmd.Flags()
	f.StringVar(&claimPath, "claim", "", "Path to claim JSON file (required)")
	f.BoolVar(&checkOnly, "check", false, "Evaluate only; record nothing")
	_ = decideCmd.MarkFlagRequired("claim")
	rootCmd.AddCommand(decideCmd)

	f = deleteCmd.Flags()
	f.StringVar(&deleteID, "id", "", "Decision id (required)")
	f.StringVar(&deleteBy, "by", "", "Who deletes the decision (required)")
	_ = deleteCmd.MarkFlagRequired("id")
	_ = deleteCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(showCmd)
}

type decisionView struct {
	ID         string           `json:"id,omitempty"`
	Outcome    model.Outcome    `json:"outcome"`
	Tier       int              `json:"tier"`
	Amount     int64            `json:"amount"`
	Failed     []string         `json:"failed_criteria,omitempty"`
	Evaluation rules.Evaluation `json:"evaluation"`
	Recorded   bool             `json:"recorded"`
}

func failedIDs(ev rules.Evaluation) []string {
	var ids []string
	for _, leaf := range ev.Failed() {
		ids = append(ids, leaf.ID)
	}
	return ids
}

func readClaim(path string) (model.Claim, error) {
	var claim model.Claim
	data, err := os.ReadFile(path)
	if err != nil {
		return claim, fmt.Errorf("read claim: %w", err)
	}
	if err := json.Unmarshal(data, &claim); err != nil {
		return claim, apperr.Validation("claim is not valid JSON", err.Error())
	}
	return claim, nil
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	ctx := context.Background()

	if err := cfg.ValidateCollaborators(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	claim, err := readClaim(claimPath)
	if err != nil {
		fail(log, err, "invalid claim")
	}

	pool, st := openStore(ctx, cfg, log)
	defer pool.Close()

	svc, err := newDecisionService(cfg, st, log)
	if err != nil {
		log.Error().Err(err).Msg("rate schedule failed to load")
		os.Exit(exitcode.UsageError)
	}

	var view decisionView
	if checkOnly {
		a, err := svc.Check(ctx, claim)
		if err != nil {
			fail(log, err, "check failed")
		}
		view = decisionView{
			Outcome:    a.Outcome,
			Tier:       int(a.Rate.Tier),
			Amount:     a.Rate.Amount,
			Failed:     failedIDs(a.Evaluation),
			Evaluation: a.Evaluation,
		}
	} else {
		d, err := svc.Decide(ctx, claim)
		if err != nil {
			fail(log, err, "decision failed")
		}
		view = decisionView{
			ID:         d.ID.String(),
			Outcome:    d.Outcome,
			Tier:       d.Tier,
			Amount:     d.Amount,
			Failed:     failedIDs(d.Evaluation),
			Evaluation: d.Evaluation,
			Recorded:   true,
		}
	}

	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		fail(log, err, "encode result")
	}
	fmt.Println(string(out))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	ctx := context.Background()

	id, err := uuid.Parse(deleteID)
	if err != nil {
		fail(log, apperr.Validation("invalid decision id", deleteID), "delete failed")
	}

	pool, st := openStore(ctx, cfg, log)
	defer pool.Close()

	svc, err := newDecisionService(cfg, st, log)
	if err != nil {
		log.Error().Err(err).Msg("rate schedule failed to load")
		os.Exit(exitcode.UsageError)
	}
	if err := svc.Delete(ctx, id, deleteBy); err != nil {
		fail(log, err, "delete failed")
	}
	log.Info().Str("decision_id", id.String()).Str("deleted_by", deleteBy).Msg("decision deleted")
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	ctx := context.Background()

	id, err := uuid.Parse(args[0])
	if err != nil {
		fail(log, apperr.Validation("invalid decision id", args[0]), "show failed")
	}

	pool, st := openStore(ctx, cfg, log)
	defer pool.Close()

	svc, err := newDecisionService(cfg, st, log)
	if err != nil {
		log.Error().Err(err).Msg("rate schedule failed to load")
		os.Exit(exitcode.UsageError)
	}
	d, err := svc.Get(ctx, id)
	if err != nil {
		fail(log, err, "show failed")
	}

	fmt.Printf("Decision:    %s\n", d.ID)
	fmt.Printf("Beneficiary: %s\n", d.BeneficiaryID)
	fmt.Printf("Vendor:      %s (order %s)\n", d.OrgID, d.OrderRef)
	fmt.Printf("Order date:  %s\n", d.OrderDate.Format("2006-01-02"))
	fmt.Printf("Strength:    %s\n", d.Strength)
	fmt.Printf("Outcome:     %s (tier %d, %d kr)\n", d.Outcome, d.Tier, d.Amount)
	if d.DeletedAt != nil {
		by := ""
		if d.DeletedBy != nil {
			by = *d.DeletedBy
		}
		fmt.Printf("Deleted:     %s by %s\n", d.DeletedAt.Format(time.RFC3339), by)
	}
	for _, leaf := range d.Evaluation.Leaves() {
		fmt.Printf("  %-8s %-35s %s\n", leaf.Result, leaf.ID, leaf.Reason)
	}

	if !d.Approved() {
		return nil
	}
	p, err := st.PaymentForDecision(ctx, d.ID)
	if err != nil {
		fail(log, err, "load payment")
	}
	fmt.Printf("Payment:     %s %s", p.ID, p.Status)
	if p.BatchID != "" {
		fmt.Printf(" batch %s", p.BatchID)
	}
	if p.PaidOn != nil {
		fmt.Printf(" paid %s", p.PaidOn.Format("2006-01-02"))
	}
	fmt.Println()
	return nil
}
