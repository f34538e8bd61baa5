package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/brillestotte/internal/exitcode"
	"github.com/gyeh/brillestotte/internal/payout"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the payment scheduler and apply payout confirmations",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, st := openStore(ctx, cfg, log)
	defer pool.Close()

	var rdb *redis.Client
	if needsRedis(cfg) {
		rdb = newRedis(cfg)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis connection failed")
			os.Exit(exitcode.DBConnError)
		}
	}

	elector, release := newElector(cfg, rdb, log)
	sub, bus, err := newChannel(cfg, rdb, log)
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

	g, gctx := errgroup.WithContext(ctx)
	sched.Start()

	if bus != nil {
		g.Go(func() error {
			return bus.Confirmations(gctx, func(ctx context.Context, batchID string, paidOn time.Time) error {
				_, err := svc.Confirm(ctx, batchID, paidOn)
				return err
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return sched.Stop()
	})

	log.Info().
		Str("leader_mode", cfg.Leader.Mode).
		Str("channel", cfg.Disbursement.Channel).
		Msg("serving")

	err = g.Wait()

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	release(releaseCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		fail(log, err, "serve stopped with error")
	}
	log.Info().Msg("shutdown complete")
	return nil
}
