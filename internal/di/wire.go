//go:build wireinject
// +build wireinject

package di

import (
	"OptionPulse/pkg/config"
	"OptionPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideCredentialStore,
		ProvideBaselineStore,
		ProvideSettingsStore,
		ProvideSignalStore,
		ProvideSignalQueuePublisher,
		ProvideSignalLog,
		ProvideSignalConsumer,
		ProvideSnapshotLog,
		ProvideSnapshotPublisher,

		// Services
		ProvideMarketFeed,
		ProvideHub,
		ProvidePersistPipeline,

		// Use cases
		ProvideOrchestrator,
		ProvideScheduler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
