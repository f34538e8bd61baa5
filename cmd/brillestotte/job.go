package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gyeh/brillestotte/internal/exitcode"
	"github.com/gyeh/brillestotte/internal/model"
	"github.com/gyeh/brillestotte/internal/payout"
)

var (
	confirmBatch  string
	confirmPaidOn string
)

var jobCmd = &cobra.Command{
	Use:       "job <promote|submit|retry>",
	Short:     "Run one iteration of a payment job, if this instance is leader",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{payout.JobPromote, payout.JobSubmit, payout.JobRetry},
	RunE:      runJob,
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Mark a submitted batch as paid",
	RunE:  runConfirm,
}

func init() {
	rootCmd.AddCommand(jobCmd)

	f := confirmCmd.Flags()
	f.StringVar(&confirmBatch, "batch", "", "Batch id, e.g. 123456789-20230801 (required)")
	f.StringVar(&confirmPaidOn, "paid-on", "", "Payout date YYYY-MM-DD (default today)")
	_ = confirmCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(confirmCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	ctx := context.Background()

	pool, st := openStore(ctx, cfg, log)
	defer pool.Close()

	var rdb *redis.Client
	if needsRedis(cfg) {
		rdb = newRedis(cfg)
		defer rdb.Close()
	}

	elector, release := newElector(cfg, rdb, log)
	defer release(ctx)

	sub, _, err := newChannel(cfg, rdb, log)
	if err != nil {
		fail(log, err, "disbursement channel setup failed")
	}
	svc := newPayoutService(cfg, st, sub, log)

	loc, _ := cfg.Location()
	sched, err := payout.NewScheduler(elector, loc, log)
	if err != nil {
		fail(log, err, "scheduler setup failed")
	}
	if err := sched.RegisterJobs(svc, intervals(cfg)); err != nil {
		fail(log, err, "job registration failed")
	}

	summary, err := sched.RunNow(ctx, args[0])
	if err != nil {
		fail(log, err, "job failed")
	}
	if !summary.Leader {
		fmt.Printf("%s skipped: not leader\n", summary.Job)
		return nil
	}
	fmt.Printf("%s complete: %d batches, %d payments, %d skipped (%.1fs)\n",
		summary.Job, summary.Batches, summary.Payments, summary.Skipped, summary.Duration.Seconds())
	return nil
}

func runConfirm(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	ctx := context.Background()

	loc, _ := cfg.Location()
	paidOn := model.DateOf(time.Now(), loc)
	if confirmPaidOn != "" {
		var err error
		paidOn, err = time.Parse("2006-01-02", confirmPaidOn)
		if err != nil {
			log.Error().Err(err).Msg("invalid --paid-on")
			os.Exit(exitcode.UsageError)
		}
	}

	pool, st := openStore(ctx, cfg, log)
	defer pool.Close()

	svc := newPayoutService(cfg, st, nil, log)
	n, err := svc.Confirm(ctx, confirmBatch, paidOn)
	if err != nil {
		fail(log, err, "confirm failed")
	}
	fmt.Printf("Batch %s: %d payments marked paid\n", confirmBatch, n)
	return nil
}
