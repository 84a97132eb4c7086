//go:build wireinject
// +build wireinject

package di

import (
	"StagAlgo/pkg/config"
	"StagAlgo/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideScheduler,
		ProvideBus,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideClickHouseMirror,
		ProvideMirror,
		ProvidePublisher,
		ProvideKafkaConsumer,
		ProvideRedis,
		ProvideSearchCache,

		// Domain services
		ProvideStore,
		ProvideValidator,
		ProvideOverseer,
		ProvideSearch,
		ProvideCleaner,
		ProvideRelay,

		// Use cases
		ProvideExecutor,
		ProvideCandleFetcher,
		ProvideCandles,
		ProvideQueue,
		ProvideTradeGate,
		ProvideSubmitLimiter,
		ProvideIngestHandler,
		ProvideFeedCollector,

		// Application server
		ProvideHTTPHandler,
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return &server.App{}, nil
}
