//go:build wireinject
// +build wireinject

package di

import (
	"github.com/will1980j/trading-hmm-server-sub001/pkg/config"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePgPool,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideBarStream,
		ProvideBarStore,
		ProvideSignalSink,
		ProvideEventStore,
		ProvideStateStore,
		ProvideAuditStore,

		// Use cases
		ProvideLocation,
		ProvideSignalPipeline,
		ProvideBarCollector,
		ProvideLifecycleProcessor,
		ProvideReconcileCycle,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
