package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/assetdao/internal/auth"
	"github.com/terminal-bench/assetdao/internal/config"
	"github.com/terminal-bench/assetdao/internal/gateway"
	"github.com/terminal-bench/assetdao/internal/leader"
	"github.com/terminal-bench/assetdao/internal/metrics"
	"github.com/terminal-bench/assetdao/internal/persistence"
	"github.com/terminal-bench/assetdao/internal/relay"
	"github.com/terminal-bench/assetdao/internal/scheduler"
	"github.com/terminal-bench/assetdao/internal/vault"
	"github.com/terminal-bench/assetdao/pkg/circuit"
	"github.com/terminal-bench/assetdao/pkg/messaging"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	authSvc, err := auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Postgres
	var repo *persistence.Repository
	var store relay.EntryStore
	if cfg.Database.URL != "" {
		db, err := persistence.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = persistence.NewRepository(db, cfg.Database.TablePrefix)
		store = repo
	}

	v, err := loadVault(ctx, cfg, repo, logger)
	if err != nil {
		return err
	}

	// NATS
	var publisher messaging.Publisher
	var broker *messaging.Client
	if cfg.NATS.URL != "" {
		broker, err = messaging.NewClient(cfg.NATS)
		if err != nil {
			return err
		}
		defer broker.Drain()
		publisher = broker
	}

	// InfluxDB
	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Influx.Enabled() {
		influx, err := metrics.NewInflux(ctx, cfg.Influx, logger)
		if err != nil {
			return err
		}
		defer influx.Close()
		recorder = influx
	}

	// Redis
	var idem gateway.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, idempotency keys may not be honoured")
		}
		idem = gateway.NewRedisIdempotency(rdb)
	}

	// etcd
	var elector leader.Elector = leader.Static(true)
	if cfg.Etcd.Enabled() {
		onGain := func() {
			if repo == nil {
				return
			}
			if err := reloadLatest(context.WithoutCancel(ctx), v, repo, logger); err != nil {
				logger.Error().Err(err).Msg("failed to reload snapshot on leadership")
			}
		}
		etcd, err := leader.NewEtcd(cfg.Etcd, onGain, logger)
		if err != nil {
			return err
		}
		elector = etcd
	}

	var rl *relay.Relay
	gw := gateway.NewGateway(gateway.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimitWindow: cfg.Server.RateLimitWindow,
		RateLimitMax:    cfg.Server.RateLimitMax,
		CORSOrigins:     cfg.Server.CORSOrigins,
		IdempotencyTTL:  cfg.Redis.IdempotencyTTL,
	}, gateway.Deps{
		Vault:       v,
		Auth:        authSvc,
		Elector:     elector,
		Idempotency: idem,
		Health: func() map[string]string {
			var nc natsStatus
			if broker != nil {
				nc = broker
			}
			return healthReport(rl.Stats(), rl.Breakers(), nc)
		},
		Logger: logger,
	})

	relayCfg := cfg.Relay
	relayCfg.BreakerConfig = circuit.Config{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.Breaker.Timeout,
		HalfOpenMax: cfg.Breaker.HalfOpenMax,
	}
	rl = relay.New(relayCfg, publisher, store, recorder, gw.Hub(), logger)

	var sched *scheduler.Scheduler
	if repo != nil {
		sched = scheduler.New(cfg.Schedule, v, repo, elector, logger)
		if err := sched.RegisterAll(ctx); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rl.Run(gctx, v.Journal()) })
	g.Go(func() error { return elector.Run(gctx) })
	g.Go(func() error { return gw.Start(gctx) })

	err = g.Wait()
	if sched != nil {
		// final snapshot so a restart replays nothing
		if serr := sched.SnapshotNow(context.WithoutCancel(ctx)); serr != nil {
			logger.Warn().Err(serr).Msg("final snapshot failed")
		}
	}
	logger.Info().Int64("seq", v.Journal().LastSeq()).Msg("assetd stopped")
	return err
}

type natsStatus interface {
	IsConnected() bool
	Reconnects() int
}

// healthReport flattens relay and broker state for /health
func healthReport(stats relay.Stats, breakers map[string]circuit.State, nc natsStatus) map[string]string {
	out := map[string]string{
		"relayed":    strconv.FormatInt(stats.Relayed, 10),
		"backfilled": strconv.FormatInt(stats.Backfilled, 10),
		"lost":       strconv.FormatInt(stats.Lost, 10),
	}
	for name, state := range breakers {
		out["breaker_"+name] = state.String()
	}
	if nc != nil {
		out["nats"] = strconv.FormatBool(nc.IsConnected())
		out["nats_reconnects"] = strconv.Itoa(nc.Reconnects())
	}
	return out
}

// loadVault restores the newest stored snapshot, falling back to genesis
func loadVault(ctx context.Context, cfg *config.Config, repo *persistence.Repository, logger zerolog.Logger) (*vault.Vault, error) {
	opts := []vault.Option{vault.WithLogger(logger)}
	if repo != nil {
		snap, err := repo.LatestSnapshot(ctx)
		switch {
		case err == nil:
			return vault.Restore(snap.Data, opts...)
		case errors.Is(err, persistence.ErrNoSnapshot):
		default:
			return nil, err
		}
	}
	gen, err := config.LoadGenesis(cfg.Genesis)
	if err != nil {
		return nil, err
	}
	return vault.New(gen, opts...)
}

func reloadLatest(ctx context.Context, v *vault.Vault, repo *persistence.Repository, logger zerolog.Logger) error {
	snap, err := repo.LatestSnapshot(ctx)
	if errors.Is(err, persistence.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	applied, err := v.Reload(snap.Data)
	if err != nil {
		return err
	}
	logger.Info().Int64("seq", snap.Seq).Bool("applied", applied).Msg("leadership snapshot check")
	return nil
}
