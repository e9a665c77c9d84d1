package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	"github.com/will1980j/trading-hmm-server-sub001/internal/usecase"
	pkgch "github.com/will1980j/trading-hmm-server-sub001/pkg/clickhouse"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/config"
	xhttp "github.com/will1980j/trading-hmm-server-sub001/pkg/http"
	pkgkafka "github.com/will1980j/trading-hmm-server-sub001/pkg/kafka"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

// Initializable is implemented by stores whose schema must exist before
// any traffic flows.
type Initializable interface {
	Init(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	collector   *usecase.BarCollector
	pipeline    *usecase.SignalPipeline
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	reconcile   *usecase.ReconcileCycle
	chClient    *pkgch.Client
	barStore    drepo.BarStore
	stores      []Initializable
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	producer    *pkgkafka.Producer
	cron        *cron.Cron
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.BarCollector,
	pipeline *usecase.SignalPipeline,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	reconcile *usecase.ReconcileCycle,
	chClient *pkgch.Client,
	barStore drepo.BarStore,
	stores []Initializable,
	producer *pkgkafka.Producer,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		collector: collector,
		pipeline:  pipeline,
		consumer:  consumer,
		kh:        kh,
		reconcile: reconcile,
		chClient:  chClient,
		barStore:  barStore,
		stores:    stores,
		producer:  producer,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// logPublisher adapts the Kafka producer to the logger collector's
// Publisher interface.
type logPublisher struct {
	p *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.p.Publish(ctx, topic, nil, payload)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.producer != nil && a.cfg.Kafka.LogsTopic != "" {
		a.l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      logPublisher{p: a.producer},
			Service:        "trade-lifecycle",
		})
	}

	// Schema init before any traffic
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()
	for _, s := range a.stores {
		if err := s.Init(initCtx); err != nil {
			a.l.Error("store init failed", applogger.Error(err))
			return err
		}
	}

	a.warmup(ctx)

	srvOpts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		srvOpts = append(srvOpts, xhttp.WithRequestMetrics(a.cfg.Metrics.Path, a.l, 500*time.Millisecond))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, srvOpts...)

	// Start bar collector
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			a.l.Error("collector error", applogger.Error(err))
		}
	}()
	a.l.Info("bar collector started", applogger.String("symbol", a.cfg.BarFeed.Symbol))

	// Start lifecycle consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Schedule the reconcile cycle
	if a.reconcile != nil {
		a.cron = cron.New()
		_, err := a.cron.AddFunc(a.cfg.Reconcile.Schedule, func() {
			if err := a.reconcile.Run(ctx); err != nil {
				a.l.Error("reconcile cycle error", applogger.Error(err))
			}
		})
		if err != nil {
			a.l.Error("cron schedule invalid",
				applogger.String("schedule", a.cfg.Reconcile.Schedule), applogger.Error(err))
			return err
		}
		a.cron.Start()
		a.l.Info("reconcile cycle scheduled", applogger.String("schedule", a.cfg.Reconcile.Schedule))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// warmup replays recent bars through the engines so restart does not
// lose fold state. Failures degrade to a cold start.
func (a *App) warmup(ctx context.Context) {
	if a.barStore == nil || a.pipeline == nil {
		return
	}
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	bars, err := a.barStore.Query(ctx, a.cfg.BarFeed.Symbol, from, to)
	if err != nil {
		a.l.Warn("warmup query failed, starting cold", applogger.Error(err))
		return
	}
	a.pipeline.Warmup(bars)
	a.l.Info("engines warmed up",
		applogger.String("symbol", a.cfg.BarFeed.Symbol),
		applogger.Int("bars", len(bars)),
	)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		<-cronCtx.Done()
	}

	if err := a.collector.Shutdown(ctx); err != nil {
		a.l.Warn("collector stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.RemoveCollector()
	a.l.Info("shutdown complete")
	return nil
}
