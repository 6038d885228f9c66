package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/db"
	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/cache"
	"github.com/gilby125/flight-offers-harvester/pkg/health"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/gilby125/flight-offers-harvester/pkg/notify"
	"github.com/gilby125/flight-offers-harvester/storage"
	"github.com/gilby125/flight-offers-harvester/worker"
	"github.com/redis/go-redis/v9"
)

const (
	writerLockTTL   = 30 * time.Second
	writerLockRenew = 10 * time.Second
)

// runtime holds everything a command needs to ingest: one session per mode,
// the optional Postgres and Redis connections, and the writer locks.
type runtime struct {
	cfg     *config.Config
	ref     config.Reference
	parser  *offers.Parser
	service *harvest.Service
	pg      *db.PostgresDB
	redis   *redis.Client
	locks   []*worker.WriterLock
	targets map[offers.Mode]string
	health  *health.HealthChecker
	notify  *notify.NTFYClient
}

// newRuntime opens sessions for modes. onLost runs if another process takes
// over a target; commands pass their cancel func.
func newRuntime(ctx context.Context, cfg *config.Config, onLost func(), modes ...offers.Mode) (rt *runtime, err error) {
	rt = &runtime{
		cfg:     cfg,
		targets: make(map[offers.Mode]string, len(modes)),
		health:  health.NewHealthChecker(versionString()),
		notify: notify.NewNTFYClient(notify.NTFYConfig{
			ServerURL: cfg.NotifyConfig.ServerURL,
			Topic:     cfg.NotifyConfig.Topic,
			Username:  cfg.NotifyConfig.Username,
			Password:  cfg.NotifyConfig.Password,
			Enabled:   cfg.NotifyConfig.Enabled,
		}),
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.parser, rt.ref, err = harvest.NewParser(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RedisConfig.Enabled {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Host + ":" + cfg.RedisConfig.Port,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		rt.health.AddChecker(&health.RedisChecker{Client: rt.redis, Name: "redis"})
	}

	if cfg.StorageConfig.Driver == "postgres" {
		rt.pg, err = db.NewPostgresDB(cfg.PostgresConfig)
		if err != nil {
			return nil, err
		}
		rt.health.AddChecker(&health.PostgresChecker{DB: rt.pg.GetDB(), Name: "postgres"})
	}

	var sessions []*harvest.Pipeline
	for _, mode := range modes {
		p, err := rt.openSession(ctx, mode, onLost)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s session: %w", mode, err)
		}
		sessions = append(sessions, p)
	}
	rt.service = harvest.NewService(sessions...)
	return rt, nil
}

func (rt *runtime) openSession(ctx context.Context, mode offers.Mode, onLost func()) (*harvest.Pipeline, error) {
	schema := offers.SchemaFor(mode, rt.parser.Slots())

	var (
		sink   harvest.Sink
		loader harvest.KeyLoader
		target string
	)
	switch rt.cfg.StorageConfig.Driver {
	case "postgres":
		target = rt.cfg.PostgresConfig.TextTable
		if mode == offers.ModeAPI {
			target = rt.cfg.PostgresConfig.APITable
		}
		table := db.NewOfferTable(rt.pg.GetDB(), target, schema, nil)
		if err := table.EnsureTable(ctx); err != nil {
			return nil, err
		}
		sink, loader = table, table
	default:
		target = rt.cfg.StorageConfig.TextPath
		if mode == offers.ModeAPI {
			target = rt.cfg.StorageConfig.APIPath
		}
		w := storage.NewCSVWriter(target, schema)
		sink, loader = w, w
		rt.health.AddChecker(&health.CSVTargetChecker{Path: target, Name: "target_" + string(mode)})
	}
	rt.targets[mode] = target

	// Hold the target before reading its history so that no other writer
	// appends between the key load and our first batch.
	if rt.redis != nil {
		lost := func() {
			if err := rt.notify.AlertTargetLost(context.Background(), target); err != nil {
				logger.Error(err, "Failed to send alert", "target", target)
			}
			if onLost != nil {
				onLost()
			}
		}
		lock := worker.NewWriterLock(rt.redis, rt.cfg.RedisConfig.Prefix, target, writerLockTTL, writerLockRenew, lost)
		if err := lock.Acquire(ctx); err != nil {
			return nil, err
		}
		rt.locks = append(rt.locks, lock)
	}

	opts := harvest.Options{
		Parser: rt.parser,
		Logger: logger.WithField("target", target),
	}
	return harvest.NewSession(ctx, mode, opts, sink, loader)
}

// cacheManager returns the idempotency cache, or nil without Redis.
func (rt *runtime) cacheManager() *cache.CacheManager {
	if rt.redis == nil {
		return nil
	}
	return cache.NewCacheManager(cache.NewRedisCache(rt.redis, rt.cfg.RedisConfig.Prefix))
}

// Close releases locks and connections. It is safe on a partly built runtime.
func (rt *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, l := range rt.locks {
		errs = append(errs, l.Release(ctx))
	}
	if rt.pg != nil {
		errs = append(errs, rt.pg.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	return errors.Join(errs...)
}
