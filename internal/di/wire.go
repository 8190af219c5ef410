//go:build wireinject
// +build wireinject

package di

import (
	"Frisk/pkg/config"
	"Frisk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories (with business logic)
		ProvideTxnStorage,
		ProvideTxnPublisher,
		ProvideArtifactStore,
		ProvideFeedStream,

		// Use cases
		ProvideScoringEngine,
		ProvideTxnProcessor,
		ProvideTxnCollector,
		ProvideKafkaTxnHandler,

		// Transport
		ProvideScoreHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
