package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/brillestotte/internal/exitcode"
	"github.com/gyeh/brillestotte/internal/model"
	"github.com/gyeh/brillestotte/internal/sats"
)

var (
	rateRightSphere   string
	rateRightCylinder string
	rateLeftSphere    string
	rateLeftCylinder  string
	rateDate          string
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Dry-run tier and amount for a prescription (no writes)",
	RunE:  runRates,
}

func init() {
	f := ratesCmd.Flags()
	f.StringVar(&rateRightSphere, "right-sphere", "0", "Right eye sphere")
	f.StringVar(&rateRightCylinder, "right-cylinder", "0", "Right eye cylinder")
	f.StringVar(&rateLeftSphere, "left-sphere", "0", "Left eye sphere")
	f.StringVar(&rateLeftCylinder, "left-cylinder", "0", "Left eye cylinder")
	f.StringVar(&rateDate, "date", "", "Order date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(ratesCmd)
}

func runRates(cmd *cobra.Command, args []string) error {
	cfg, log := setup()

	table, err := rateTable(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to load rate schedule")
		os.Exit(exitcode.UsageError)
	}

	strength, err := model.NewStrength(rateRightSphere, rateRightCylinder, rateLeftSphere, rateLeftCylinder)
	if err != nil {
		fail(log, err, "invalid prescription")
	}

	loc, _ := cfg.Location()
	orderDate := model.DateOf(time.Now(), loc)
	if rateDate != "" {
		orderDate, err = time.Parse("2006-01-02", rateDate)
		if err != nil {
			log.Error().Err(err).Msg("invalid --date")
			os.Exit(exitcode.UsageError)
		}
	}

	rate := table.Lookup(strength, orderDate)

	fmt.Println("=== brillestotte rates ===")
	fmt.Printf("Prescription: %s\n", strength)
	fmt.Printf("Max sphere:   %s\n", strength.MaxSphere().StringFixed(model.DiopterPlaces))
	fmt.Printf("Max cylinder: %s\n", strength.MaxCylinder().StringFixed(model.DiopterPlaces))
	fmt.Printf("Order date:   %s\n", orderDate.Format("2006-01-02"))
	fmt.Printf("Tier:         %s\n", rate.Tier)
	if rate.Description != "" {
		fmt.Printf("Rule:         %s\n", rate.Description)
	}
	fmt.Printf("Amount:       %d kr\n", rate.Amount)
	if rate.EffectiveFrom != nil {
		fmt.Printf("Schedule:     effective from %s\n", rate.EffectiveFrom.Format("2006-01-02"))
	} else if rate.Tier != sats.TierNone {
		fmt.Println("Schedule:     no entry covers the order date")
	}

	fmt.Println()
	fmt.Println("Tiers (checked in order):")
	for _, t := range sats.Tiers() {
		fmt.Printf("  %-7s %s\n", t.ID, t.Description)
	}
	return nil
}
