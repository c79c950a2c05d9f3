//go:build wireinject
// +build wireinject

package di

import (
	"StreamCast/pkg/config"
	"StreamCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideSnapshotStore,

		// Repositories
		ProvideResultStorage,
		ProvideResultPublisher,

		// Model
		ProvidePredictor,
		ProvideResultProcessor,
		ProvideResultPipeline,
		ProvideModelRunner,

		// Use cases
		ProvideMetricHandler,
		ProvideMetricCollector,

		// HTTP
		ProvideRateLimiter,
		ProvideResultsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
