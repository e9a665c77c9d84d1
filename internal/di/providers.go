package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	"github.com/will1980j/trading-hmm-server-sub001/internal/gaps"
	"github.com/will1980j/trading-hmm-server-sub001/internal/handler/api"
	mid "github.com/will1980j/trading-hmm-server-sub001/internal/middleware"
	internalrepo "github.com/will1980j/trading-hmm-server-sub001/internal/repository"
	"github.com/will1980j/trading-hmm-server-sub001/internal/service/barfeed"
	"github.com/will1980j/trading-hmm-server-sub001/internal/usecase"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/cache"
	pkgch "github.com/will1980j/trading-hmm-server-sub001/pkg/clickhouse"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/config"
	pkgkafka "github.com/will1980j/trading-hmm-server-sub001/pkg/kafka"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/metrics"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// database exists. Table schemas are owned by the stores' Init methods.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvidePgPool creates the Postgres connection pool for canonical state.
func ProvidePgPool(cfg *config.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pc.MaxConns = int32(cfg.Postgres.MaxConns)
	pc.MinConns = int32(cfg.Postgres.MinConns)
	pc.ConnConfig.ConnectTimeout = cfg.Postgres.ConnTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Postgres.ConnTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// ProvideCache builds the trade-state view cache: layered memory+Redis
// when Redis is enabled, memory-only otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Environment),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	// One open trade per symbol keeps the hot set tiny, the extra room
	// covers recently closed trades still being queried.
	return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(512)), nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the trade-event consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.OffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBarStream creates the WebSocket bar feed.
func ProvideBarStream(cfg *config.Config) drepo.BarStream {
	return barfeed.New(
		cfg.BarFeed.APIKey,
		cfg.BarFeed.WebSocketURL,
		cfg.BarFeed.Symbol,
		cfg.BarFeed.ReconnectDelay,
		cfg.BarFeed.PingInterval,
	)
}

// ProvideBarStore creates the ClickHouse bar store.
func ProvideBarStore(ch *pkgch.Client) drepo.BarStore {
	return internalrepo.NewCHBarStore(ch, "bars_1m")
}

// ProvideSignalSink creates the ClickHouse signal sink with Kafka
// publication keyed by symbol.
func ProvideSignalSink(ch *pkgch.Client, producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) drepo.SignalSink {
	return internalrepo.NewCHSignalSink(ch, "signals", producer, cfg.Kafka.SignalsTopic, l)
}

// ProvideEventStore creates the append-only trade event store.
func ProvideEventStore(ch *pkgch.Client) drepo.TradeEventStore {
	return internalrepo.NewCHTradeEventStore(ch, "trade_events")
}

// ProvideStateStore creates the canonical Postgres state store.
func ProvideStateStore(pool *pgxpool.Pool) drepo.TradeStateStore {
	return internalrepo.NewPGStateStore(pool)
}

// ProvideAuditStore creates the ClickHouse audit store.
func ProvideAuditStore(ch *pkgch.Client) drepo.AuditStore {
	return internalrepo.NewCHAuditStore(ch)
}

// ProvideLocation resolves the engine reference timezone.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine timezone: %w", err)
	}
	return loc, nil
}

// ProvideSignalPipeline wires stores, filters, and the enabled
// higher-timeframe set into the per-symbol signal fold.
func ProvideSignalPipeline(
	store drepo.BarStore,
	sink drepo.SignalSink,
	m drepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
	loc *time.Location,
) *usecase.SignalPipeline {
	filters := models.SignalFilters{
		HTFAlignedOnly:        cfg.Engine.HTFAlignedOnly,
		RequireEngulfing:      cfg.Engine.RequireEngulfing,
		RequireSweepEngulfing: cfg.Engine.RequireSweepEngulfing,
	}
	enabled := make(map[drepo.Timeframe]bool, len(cfg.Engine.EnabledTimeframes))
	for _, tf := range cfg.Engine.EnabledTimeframes {
		enabled[drepo.Timeframe(tf)] = true
	}
	return usecase.NewSignalPipeline(store, sink, m, l, filters, enabled, loc)
}

// ProvideBarCollector builds the feed-to-engine path with the validating
// middleware pipeline in between.
func ProvideBarCollector(stream drepo.BarStream, pipeline *usecase.SignalPipeline, m drepo.Metrics) *usecase.BarCollector {
	pipe := mid.NewRealtimePipeline(pipeline, m, mid.WithBufferSize(2000))
	return usecase.NewBarCollector(stream, pipe, m)
}

// ProvideLifecycleProcessor creates the trade-event Kafka handler.
func ProvideLifecycleProcessor(
	events drepo.TradeEventStore,
	states drepo.TradeStateStore,
	c cache.Service,
	m drepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.LifecycleProcessor {
	return usecase.NewLifecycleProcessor(cfg.Kafka.EventsTopic, events, states, c, cfg.Cache.StateTTL, m, l)
}

// ProvideReconcileCycle assembles the gap detector and tiered reconciler.
func ProvideReconcileCycle(
	states drepo.TradeStateStore,
	events drepo.TradeEventStore,
	audit drepo.AuditStore,
	m drepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.ReconcileCycle {
	detector := gaps.NewDetector(cfg.Reconcile.StaleMfeAfter, l)
	reconciler := gaps.NewReconciler(states, audit, l)
	return usecase.NewReconcileCycle(states, events, audit, detector, reconciler, m, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	m drepo.Metrics,
	collector *usecase.BarCollector,
	pipeline *usecase.SignalPipeline,
	consumer *pkgkafka.Consumer,
	kh *usecase.LifecycleProcessor,
	reconcile *usecase.ReconcileCycle,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	barStore drepo.BarStore,
	sink drepo.SignalSink,
	events drepo.TradeEventStore,
	states drepo.TradeStateStore,
	audit drepo.AuditStore,
	c cache.Service,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(consumerHooks(m, l))
	}

	stores := []server.Initializable{barStore, events, states, audit}
	if ini, ok := sink.(server.Initializable); ok {
		stores = append(stores, ini)
	}

	app := server.New(cfg, l, collector, pipeline, consumer, kh, reconcile, chClient, barStore, stores, producer)
	app.SetHTTPHandler(api.NewOpsHandler(l, states, barStore, c, collector.IsConnected))
	return app
}

// consumerHooks chains a timing/trace hook with an observation hook so
// every consumed trade event carries a start time and lands in metrics.
func consumerHooks(m drepo.Metrics, l *applogger.Logger) *pkgkafka.HookChain {
	timing := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafkago.Message, data []byte) (context.Context, kafkago.Message, []byte, error) {
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			return pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km)), km, data, nil
		},
	}
	observe := pkgkafka.HookFuncs{
		After: func(ctx context.Context, _ string, _ kafkago.Message, _ []byte, _ error) {
			if start, ok := ctx.Value(pkgkafka.CtxStartTime).(time.Time); ok {
				m.RecordLatency("event_consume", time.Since(start).Seconds())
			}
		},
		Err: func(_ context.Context, topic string, km kafkago.Message, _ []byte, err error) {
			m.RecordError("event_consume")
			l.Warn("trade event handling failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Error(err),
			)
		},
	}
	return pkgkafka.NewHookChain(timing, observe)
}
