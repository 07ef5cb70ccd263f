// Package app wires the worker's components with fx. Constructors are lazy:
// a command only dials the stores its own dependencies reach.
package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/leetsync/leetsync-stats/config"
	"github.com/leetsync/leetsync-stats/internal/application/command"
	"github.com/leetsync/leetsync-stats/internal/application/query"
	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/metrics"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/persistence/memory"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/persistence/postgres"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/persistence/redis"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/leetsync/leetsync-stats/internal/interface/http"
	"github.com/leetsync/leetsync-stats/pkg/circuitbreaker"
	"github.com/leetsync/leetsync-stats/pkg/logger"
	"github.com/leetsync/leetsync-stats/pkg/ratelimit"
	"github.com/leetsync/leetsync-stats/pkg/retry"
)

// Module provides every component. The caller supplies *config.Config.
var Module = fx.Options(
	fx.Provide(NewLogger),
	fx.Provide(metrics.New),
	// stores
	fx.Provide(NewPostgres),
	fx.Provide(NewFactRepository),
	fx.Provide(func(r *postgres.FactRepository) stats.FactSource { return r }),
	fx.Provide(NewCache),
	fx.Provide(NewRepository),
	// application
	fx.Provide(NewAggregateHandler),
	fx.Provide(NewUserStatsQuery),
	// jobs
	fx.Provide(NewDailyStatsJob),
	fx.Provide(NewScheduler),
	fx.Provide(NewHTTPServer),
)

// NewLogger builds the root logger.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(cfg.Logger()).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// NewPostgres opens the fact-source pool and closes it on stop.
func NewPostgres(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pc := cfg.Postgres()

	ctx, cancel := context.WithTimeout(context.Background(), pc.ConnectTimeout)
	defer cancel()

	conn, err := postgres.NewConnection(ctx, pc)
	if err != nil {
		return nil, err
	}
	log.Info("connected to fact source", logger.Component("postgres"))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

// NewFactRepository wraps the pool with pacing, retries and a circuit breaker whose
// state is exported as a metric.
func NewFactRepository(conn *postgres.Connection, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) *postgres.FactRepository {
	breaker := circuitbreaker.New("fact-source",
		circuitbreaker.WithFailureThreshold(cfg.Database.BreakerThreshold),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithTimeout(cfg.Database.BreakerTimeout),
		circuitbreaker.WithMaxHalfOpenRequests(1),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			m.SetBreakerState(name, int(to))
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)
	retrier := retry.FactSourceRetrier().With(retry.WithMaxAttempts(cfg.Database.MaxRetries + 1))

	return postgres.NewFactRepository(conn.Pool(), cfg.App.Location,
		postgres.WithLimiter(ratelimit.New(cfg.FactRateLimit())),
		postgres.WithBreaker(breaker),
		postgres.WithRetrier(retrier),
		postgres.WithQueryTimeout(cfg.Database.QueryTimeout),
		postgres.WithLogger(log),
	)
}

// NewCache connects to the stats cache and closes it on stop.
func NewCache(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) (*redis.Cache, error) {
	rc := cfg.RedisClient()

	ctx, cancel := context.WithTimeout(context.Background(), rc.DialTimeout)
	defer cancel()

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		return nil, err
	}
	log.Info("connected to stats cache", logger.Component("redis"), logger.String("addr", rc.Addr()))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return cache.Close()
		},
	})
	return cache, nil
}

// NewRepository returns the stats cache, or an in-memory overlay on top of
// it when dry-run is set.
func NewRepository(cache *redis.Cache, cfg *config.Config, log *logger.Logger) stats.Repository {
	store := redis.NewStatsStore(cache,
		redis.WithMarkerTTL(cfg.Stats.MarkerTTL),
		redis.WithRetrier(retry.CacheRetrier()),
	)
	if cfg.Stats.DryRun {
		log.Warn("dry run: stats are computed but not written")
		return memory.NewOverlay(store)
	}
	return store
}

// NewAggregateHandler builds the per-user pipeline.
func NewAggregateHandler(facts stats.FactSource, repo stats.Repository, log *logger.Logger) *command.AggregateUserStatsHandler {
	return command.NewAggregateUserStatsHandler(facts, repo, log)
}

// NewUserStatsQuery builds the read side.
func NewUserStatsQuery(repo stats.Repository, cfg *config.Config) *query.GetUserStatsHandler {
	return query.NewGetUserStatsHandler(repo, cfg.App.Location)
}

// NewDailyStatsJob builds the batch job.
func NewDailyStatsJob(
	facts stats.FactSource,
	handler *command.AggregateUserStatsHandler,
	repo stats.Repository,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg *config.Config,
) *jobs.DailyStatsJob {
	return jobs.NewDailyStatsJob(facts, handler, repo, m, log, cfg.DailyStatsJob())
}

// NewScheduler registers the batch job on its schedule. A disabled
// scheduler still accepts manual runs.
func NewScheduler(job *jobs.DailyStatsJob, m *metrics.Metrics, cfg *config.Config, log *logger.Logger) (*scheduler.Scheduler, error) {
	sc := scheduler.DefaultConfig()
	sc.Logger = log
	sc.Timezone = cfg.App.Location
	s := scheduler.New(sc)

	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, fmt.Errorf("app: invalid schedule: %w", err)
	}
	if err := s.Register(job, schedule); err != nil {
		return nil, err
	}
	if !cfg.Scheduler.Enabled {
		if err := s.SetEnabled(job.Name(), false); err != nil {
			return nil, err
		}
	}

	s.OnJobStart(m.JobStarted)
	s.OnJobComplete(func(result scheduler.JobResult) {
		m.RecordJob(result.JobName, result.Success)
	})
	return s, nil
}

// NewHTTPServer builds the ops server. It is started by the serve command.
func NewHTTPServer(
	cfg *config.Config,
	job *jobs.DailyStatsJob,
	sched *scheduler.Scheduler,
	users *query.GetUserStatsHandler,
	m *metrics.Metrics,
	log *logger.Logger,
) *httpapi.Server {
	return httpapi.NewServer(cfg.HTTPServer(), httpapi.Dependencies{
		Health:       job,
		Batch:        job,
		Jobs:         sched,
		UserStats:    users,
		Metrics:      m.Handler(),
		Logger:       log,
		BatchJobName: job.Name(),
		Version:      cfg.App.Version,
	})
}
