package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/gyeh/brillestotte/internal/config"
	"github.com/gyeh/brillestotte/internal/db"
	"github.com/gyeh/brillestotte/internal/decision"
	"github.com/gyeh/brillestotte/internal/disbursement"
	"github.com/gyeh/brillestotte/internal/eligibility"
	"github.com/gyeh/brillestotte/internal/exitcode"
	"github.com/gyeh/brillestotte/internal/leader"
	"github.com/gyeh/brillestotte/internal/payout"
	"github.com/gyeh/brillestotte/internal/registry"
	"github.com/gyeh/brillestotte/internal/sats"
	"github.com/gyeh/brillestotte/internal/store"
)

// openStore connects to Postgres. Exits on failure.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, *store.Store) {
	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.Database.DSN, db.PoolOptions{
		MaxConns:         cfg.Database.MaxConns,
		StatementTimeout: cfg.Database.StatementTimeout,
	})
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	return pool, store.New(pool, log)
}

func newRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Leader.Mode == "redis" || cfg.Disbursement.Channel == "redis"
}

// rateTable loads the configured schedule, or the embedded one.
func rateTable(cfg *config.Config) (*sats.Table, error) {
	if cfg.Program.RateSchedule == "" {
		return sats.Default(), nil
	}
	schedule, err := sats.LoadSchedule(cfg.Program.RateSchedule)
	if err != nil {
		return nil, err
	}
	return sats.NewTable(schedule), nil
}

// newDecisionService wires the registries and the rate table. Registry
// URLs are only checked by commands that evaluate claims.
func newDecisionService(cfg *config.Config, st *store.Store, log zerolog.Logger) (*decision.Service, error) {
	table, err := rateTable(cfg)
	if err != nil {
		return nil, err
	}
	loc, _ := cfg.Location()
	start, _ := cfg.ProgramStart()

	hc := &fasthttp.Client{
		Name:                "brillestotte",
		MaxIdleConnDuration: time.Minute,
	}
	opts := registry.Options{
		Timeout:     cfg.Collaborators.Timeout,
		MaxAttempts: cfg.Collaborators.MaxAttempts,
	}
	identity := registry.NewIdentityClient(cfg.Collaborators.IdentityURL, hc, opts, log)
	membership := registry.NewMembershipClient(cfg.Collaborators.MembershipURL, hc, opts, log)

	return decision.NewService(identity, membership, st, table, decision.Settings{
		ProgramStart: start,
		Location:     loc,
		Criteria: eligibility.Settings{
			AgeLimit:       cfg.Program.AgeLimit,
			LookBackMonths: cfg.Program.LookBackMonths,
		},
	}, log), nil
}

// newElector returns the configured leadership oracle. release gives up a
// held lease on shutdown and is a no-op for the other modes.
func newElector(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (payout.Elector, func(context.Context)) {
	switch cfg.Leader.Mode {
	case "redis":
		e := leader.NewRedisElector(rdb, cfg.Leader.Key, leader.Identity(), cfg.Leader.TTL, log)
		return e, func(ctx context.Context) {
			if err := e.Release(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to release leadership")
			}
		}
	case "http":
		name, _ := os.Hostname()
		return leader.NewHTTPElector(cfg.Leader.ElectorURL, name, nil, cfg.Collaborators.Timeout), func(context.Context) {}
	default:
		return leader.Static(cfg.Leader.Static), func(context.Context) {}
	}
}

// newChannel returns the disbursement submitter. bus is nil for the file
// channel, which has no confirmation feed.
func newChannel(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (disbursement.Submitter, *disbursement.RedisBus, error) {
	if cfg.Disbursement.Channel == "file" {
		fc, err := disbursement.NewFileChannel(cfg.Disbursement.OutboxDir, log)
		return fc, nil, err
	}
	bus := disbursement.NewRedisBus(rdb, cfg.Disbursement.Topic, cfg.Disbursement.ConfirmTopic, log)
	return bus, bus, nil
}

func newPayoutService(cfg *config.Config, st payout.Store, sub payout.Submitter, log zerolog.Logger) *payout.Service {
	loc, _ := cfg.Location()
	return payout.NewService(st, sub, payout.Settings{
		Location:     loc,
		PromoteGrace: cfg.Payout.PromoteGrace,
		BatchDueDays: cfg.Payout.BatchDueDays,
		RetryAfter:   cfg.Payout.RetryAfter,
		SoftLimit:    cfg.Payout.BatchSoftLimit,
	}, log)
}

func intervals(cfg *config.Config) payout.Intervals {
	return payout.Intervals{
		Promote: cfg.Payout.PromoteInterval,
		Submit:  cfg.Payout.SubmitInterval,
		Retry:   cfg.Payout.RetryInterval,
	}
}
