package di

import (
	"context"
	"fmt"
	"time"

	"OptionPulse/internal/domain/repository"
	mid "OptionPulse/internal/middleware"
	internalrepo "OptionPulse/internal/repository"
	"OptionPulse/internal/service/upstox"
	"OptionPulse/internal/service/ws"
	"OptionPulse/internal/services/analytics"
	"OptionPulse/internal/usecase"
	"OptionPulse/pkg/cache"
	pkgch "OptionPulse/pkg/clickhouse"
	"OptionPulse/pkg/config"
	pkgkafka "OptionPulse/pkg/kafka"
	applogger "OptionPulse/pkg/logger"
	"OptionPulse/pkg/metrics"
	"OptionPulse/pkg/queue"
	"OptionPulse/pkg/server"
)

// ProvideLogger creates the application logger; development gets readable
// console output, everything else ships JSON.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects the shared redis client used for credentials,
// baselines, settings and the signal queue.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("optionpulse"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideClickHouseClient connects ClickHouse and initializes the schema.
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

	stmts := append(
		[]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database},
		internalrepo.Schema()...,
	)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the Kafka producer, or nil when the snapshot
// stream is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
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

// ProvideSnapshotPublisher creates the Kafka snapshot publisher; nil when
// Kafka is disabled.
func ProvideSnapshotPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.Topic)
}

// ProvideCredentialStore creates the redis-backed credential store.
func ProvideCredentialStore(rc *cache.RedisCache) repository.CredentialStore {
	return internalrepo.NewRedisCredentialStore(rc)
}

// ProvideBaselineStore creates the redis-backed baseline store.
func ProvideBaselineStore(rc *cache.RedisCache) repository.BaselineStore {
	return internalrepo.NewRedisBaselineStore(rc)
}

// ProvideSettingsStore creates the settings store. Settings are read on
// every poll cycle, so reads go through a small in-memory layer on top of
// redis.
func ProvideSettingsStore(rc *cache.RedisCache) repository.SettingsStore {
	return internalrepo.NewRedisSettingsStore(cache.NewLayeredCache(rc, 256))
}

// ProvideSignalStore creates the durable ClickHouse signal log.
func ProvideSignalStore(ch *pkgch.Client) *internalrepo.ClickHouseSignalLog {
	return internalrepo.NewClickHouseSignalLog(ch.DB())
}

// ProvideSignalQueuePublisher creates the redis queue producer used to
// decouple signal writes from the poll cycle.
func ProvideSignalQueuePublisher(log *applogger.Logger, rc *cache.RedisCache) queue.QueueService {
	return queue.NewRedisPublisher(log, rc.Client(), queue.WithKeyPrefix("optionpulse"))
}

// ProvideSignalLog wraps the durable store with the queue so Append never
// blocks the cycle on a ClickHouse insert.
func ProvideSignalLog(q queue.QueueService, store *internalrepo.ClickHouseSignalLog) repository.SignalLog {
	return internalrepo.NewQueuedSignalLog(q, store)
}

// ProvideSignalConsumer creates the queue consumer that lands fired signals
// in ClickHouse with retry and dead-lettering.
func ProvideSignalConsumer(log *applogger.Logger, rc *cache.RedisCache, store *internalrepo.ClickHouseSignalLog) *queue.RedisQueue {
	return queue.NewRedisConsumer(log,
		&queue.QueueConfig{
			Workers:    2,
			QueueSize:  256,
			RetryLimit: 3,
			RetryDelay: 5 * time.Second,
		},
		rc.Client(),
		[]queue.Job{internalrepo.NewSignalEventJob(store)},
		queue.WithKeyPrefix("optionpulse"),
	)
}

// ProvideSnapshotLog creates the per-cycle market-data log, or nil when
// snapshot history is turned off.
func ProvideSnapshotLog(cfg *config.Config, ch *pkgch.Client) repository.SnapshotLog {
	if !cfg.ClickHouse.SnapshotHistory {
		return nil
	}
	return internalrepo.NewClickHouseSnapshotLog(ch.DB())
}

// ProvideMarketFeed creates the Upstox REST client.
func ProvideMarketFeed(cfg *config.Config, log *applogger.Logger) repository.MarketFeed {
	return upstox.New(upstox.Config{
		BaseURL:           cfg.Upstox.BaseURL,
		InstrumentKey:     cfg.Upstox.InstrumentKey,
		Timeout:           cfg.Upstox.Timeout,
		RequestsPerSecond: cfg.Upstox.RateLimit.RequestsPerSecond,
		Burst:             cfg.Upstox.RateLimit.Burst,
	}, log)
}

// ProvideHub creates the websocket broadcast hub.
func ProvideHub(log *applogger.Logger) *ws.Hub {
	return ws.NewHub(log)
}

// ProvidePersistPipeline creates the write-behind persistence pipeline
// between the orchestrator and ClickHouse/Kafka.
func ProvidePersistPipeline(
	log *applogger.Logger,
	snapLog repository.SnapshotLog,
	pub repository.Publisher,
	m repository.Metrics,
	cfg *config.Config,
) *mid.PersistPipeline {
	return mid.NewPersistPipeline(log, snapLog, pub, m,
		mid.WithBatchSize(cfg.Pipeline.PersistBatch),
		mid.WithFlushInterval(cfg.Pipeline.PersistFlush),
	)
}

// ProvideOrchestrator assembles the poll-cycle pipeline with its analytics
// engines.
func ProvideOrchestrator(
	log *applogger.Logger,
	feed repository.MarketFeed,
	creds repository.CredentialStore,
	baselines repository.BaselineStore,
	settings repository.SettingsStore,
	signalLog repository.SignalLog,
	hub *ws.Hub,
	pipeline *mid.PersistPipeline,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.Orchestrator {
	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Logger:      log,
		Feed:        feed,
		Creds:       creds,
		Baselines:   baselines,
		Settings:    settings,
		SignalLog:   signalLog,
		Broadcast:   hub,
		Sink:        pipeline,
		Metrics:     m,
		Aggregator:  analytics.NewAggregator(),
		Volatility:  analytics.NewVolEngine(),
		Direction:   analytics.NewDirEngine(),
		Signals:     analytics.NewSignalEngine(),
		LockTimeout: cfg.Pipeline.LockTimeout,
	})
}

// ProvideScheduler creates the poll-loop driver.
func ProvideScheduler(
	log *applogger.Logger,
	orch *usecase.Orchestrator,
	creds repository.CredentialStore,
	hub *ws.Hub,
	cfg *config.Config,
) *usecase.Scheduler {
	return usecase.NewScheduler(usecase.SchedulerDeps{
		Logger:         log,
		Orch:           orch,
		Creds:          creds,
		Broadcast:      hub,
		PollInterval:   cfg.Pipeline.PollInterval,
		StallWarnAfter: cfg.Pipeline.StallWarnAfter,
		AllowedUsers:   cfg.Pipeline.Users,
	})
}

// ProvideApp creates the application server. With Kafka enabled, aggregated
// error logs are shipped to the ops topic so a flapping upstream shows up
// once, with a count.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	producer *pkgkafka.Producer,
	scheduler *usecase.Scheduler,
	orch *usecase.Orchestrator,
	pipeline *mid.PersistPipeline,
	consumer *queue.RedisQueue,
	hub *ws.Hub,
	creds repository.CredentialStore,
	settings repository.SettingsStore,
	signalLog repository.SignalLog,
	snapLog repository.SnapshotLog,
	pub repository.Publisher,
	rc *cache.RedisCache,
	ch *pkgch.Client,
) *server.App {
	if producer != nil && cfg.Kafka.OpsTopic != "" {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   time.Minute,
			CountThreshold: 100,
			Topic:          cfg.Kafka.OpsTopic,
			Publisher:      internalrepo.NewKafkaLogSink(producer),
		})
	}
	return server.New(server.Deps{
		Cfg:       cfg,
		Log:       log,
		Scheduler: scheduler,
		Orch:      orch,
		Pipeline:  pipeline,
		Consumer:  consumer,
		Hub:       hub,
		Creds:     creds,
		Settings:  settings,
		SignalLog: signalLog,
		SnapLog:   snapLog,
		Publisher: pub,
		Redis:     rc,
		ClickHse:  ch,
	})
}
