package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/noah-isme/backend-tours/internal/booking"
	"github.com/noah-isme/backend-tours/internal/cartmeta"
	"github.com/noah-isme/backend-tours/internal/config"
	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
	"github.com/noah-isme/backend-tours/internal/events"
	"github.com/noah-isme/backend-tours/internal/lock"
	"github.com/noah-isme/backend-tours/internal/obs"
	"github.com/noah-isme/backend-tours/internal/pricing"
)

// Dependencies holds the connections shared by the api and worker binaries.
type Dependencies struct {
	DB      *pgxpool.Pool
	Queries *dbgen.Queries
	Redis   *redis.Client
	Bus     *events.Bus

	closers []func()
}

// Connect opens Postgres and Redis with tracing attached and pings both.
func Connect(ctx context.Context, cfg *config.Config, appName string, instrumentMetrics bool, logger zerolog.Logger) (*Dependencies, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	deps := &Dependencies{DB: pool, Queries: dbgen.New(pool)}
	deps.closers = append(deps.closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		deps.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	deps.Redis = client
	deps.closers = append(deps.closers, func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	})
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if instrumentMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		deps.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	bus, err := newBus(cfg, deps, appName, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Bus = bus
	return deps, nil
}

// newBus attaches the AMQP notifier when AMQP_URL is set. Without it events
// are only persisted.
func newBus(cfg *config.Config, deps *Dependencies, sender string, logger zerolog.Logger) (*events.Bus, error) {
	bus := &events.Bus{Logger: logger}
	if cfg.AMQPURL == "" {
		return bus, nil
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := events.DeclareExchange(ch, cfg.AMQPExchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	deps.closers = append(deps.closers, func() {
		_ = ch.Close()
		_ = conn.Close()
	})
	bus.Notifiers = append(bus.Notifiers, events.AMQPNotifier{
		Publisher: ch,
		Exchange:  cfg.AMQPExchange,
		Sender:    sender,
		Topics:    events.DefaultTopics(),
	})
	return bus, nil
}

// Close releases connections in reverse order of acquisition.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// Engine builds the pricing engine from configured rates.
func Engine(cfg *config.Config) pricing.Engine {
	return pricing.NewEngine(pricing.Rates{ServiceFee: cfg.ServiceFeeRate, Tax: cfg.TaxRate})
}

// Codec builds the metadata codec, spilling large carts to Redis.
func (d *Dependencies) Codec(cfg *config.Config) cartmeta.Codec {
	return cartmeta.Codec{
		MaxSlots: cfg.MetadataCartSlots,
		Overflow: cartmeta.RedisOverflow{R: d.Redis, TTL: cfg.CartOverflowTTL},
	}
}

// Reconciler wires the booking reconciler over the shared connections.
func (d *Dependencies) Reconciler(cfg *config.Config, logger zerolog.Logger) *booking.Reconciler {
	return &booking.Reconciler{
		Store:   booking.PgStore{Pool: d.DB},
		Codec:   d.Codec(cfg),
		Engine:  Engine(cfg),
		Locker:  lock.Locker{R: d.Redis, Prefix: "booking:lock:", RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockTTL},
		LockTTL: cfg.LockTTL,
		Bus:     d.Bus,
		Logger:  logger.With().Str("component", "reconciler").Logger(),
	}
}

// TaskRedis returns the asynq connection options for the configured Redis.
func TaskRedis(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}

// TaskLogger adapts zerolog to asynq's logger interface.
type TaskLogger struct {
	Logger zerolog.Logger
}

func (l TaskLogger) Debug(args ...any) { l.Logger.Debug().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Info(args ...any)  { l.Logger.Info().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Warn(args ...any)  { l.Logger.Warn().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Error(args ...any) { l.Logger.Error().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Fatal(args ...any) { l.Logger.Fatal().Msg(fmt.Sprint(args...)) }
