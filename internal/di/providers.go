package di

import (
	"context"
	"fmt"
	"time"

	"Frisk/internal/domain/repository"
	"Frisk/internal/handler/api"
	mid "Frisk/internal/middleware"
	internalrepo "Frisk/internal/repository"
	"Frisk/internal/service/feed"
	"Frisk/internal/usecase"
	pkgcache "Frisk/pkg/cache"
	pkgch "Frisk/pkg/clickhouse"
	"Frisk/pkg/config"
	xhttp "Frisk/pkg/http"
	pkgkafka "Frisk/pkg/kafka"
	"Frisk/pkg/logger"
	"Frisk/pkg/metrics"
	"Frisk/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger() (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: "info", Format: "json", Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
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

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (txn_id String, ingested_at DateTime, time_s Float64, amount Float64, merchant_id Nullable(Int64), device_type Nullable(String), geo_bucket Nullable(Int64), account_id Nullable(Int64), account_age_days Nullable(Float64)) ENGINE=MergeTree ORDER BY (ingested_at, txn_id)", db, cfg.ClickHouse.TxnTable),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (txn_id String, ts DateTime, probability Float64, label String, clf_proba Float64, anomaly_score Float64, recon_error Float64, cluster_id Int32, model_version String) ENGINE=MergeTree ORDER BY (ts, txn_id)", db, cfg.ClickHouse.DecisionTable),
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
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

// ProvideCache creates the Redis cache when enabled, falling back to the
// in-process cache for explanations otherwise.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideArtifactStore selects the bundle source per config.
func ProvideArtifactStore(cfg *config.Config, c pkgcache.Service) (repository.ArtifactStore, error) {
	switch cfg.Artifacts.Source {
	case "redis":
		if !cfg.Redis.Enabled {
			return nil, fmt.Errorf("artifacts.source is redis but redis is disabled")
		}
		return internalrepo.NewRedisArtifactStore(c), nil
	case "file":
		return internalrepo.NewFileArtifactStore(cfg.Artifacts.ModelDir), nil
	}
	return nil, fmt.Errorf("unknown artifact source: %s", cfg.Artifacts.Source)
}

// ProvideScoringEngine loads the frozen bundle and assembles the engine with
// its decision log and event publisher.
func ProvideScoringEngine(
	cfg *config.Config,
	store repository.ArtifactStore,
	c pkgcache.Service,
	l *logger.Logger,
	m repository.Metrics,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) (*usecase.ScoringEngine, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	arts, set, err := usecase.LoadBundle(ctx, store, cfg.Artifacts.Version)
	if err != nil {
		return nil, err
	}

	// Explanations cached by older bundles are keyed by version; drop them so
	// the cache only serves the live bundle.
	_ = c.DeleteByPattern(ctx, pkgcache.BuildPattern("explain:"))

	var decisions repository.DecisionLog
	if chClient != nil {
		table := cfg.ClickHouse.Database + "." + cfg.ClickHouse.DecisionTable
		decisions = internalrepo.NewClickHouseDecisionLog(chClient.DB(), table, arts.Version)
	}
	var events repository.DecisionPublisher
	if cfg.Kafka.DecisionTopic != "" {
		events = internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionTopic, arts.Version)
	}

	return usecase.NewScoringEngine(arts, set, c, l, m, decisions, events)
}

// ProvideTxnStorage creates ClickHouse storage repository.
func ProvideTxnStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.TxnTable)
}

// ProvideTxnPublisher creates Kafka publisher repository.
func ProvideTxnPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
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

// ProvideKafkaTxnHandler registers the scoring handler for the ingest topic.
func ProvideKafkaTxnHandler(engine *usecase.ScoringEngine, store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaTxnHandler {
	return usecase.NewKafkaTxnHandler(cfg.Kafka.Topic, engine, store, m)
}

// ProvideFeedStream creates the gateway WebSocket stream when enabled.
func ProvideFeedStream(cfg *config.Config) repository.TransactionStream {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Channels,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideTxnProcessor creates the ingest processor use case.
func ProvideTxnProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TxnProcessor {
	return usecase.NewTxnProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvideTxnCollector creates the feed collector use case.
func ProvideTxnCollector(
	stream repository.TransactionStream,
	processor *usecase.TxnProcessor,
	m repository.Metrics,
) *usecase.TxnCollector {
	if stream == nil {
		return nil
	}
	// Build middleware pipeline between WebSocket and the ingest backend
	pipe := mid.NewIngestPipeline(processor, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTxnCollector(stream, processor, m, pipe)
}

// ProvideScoreHandler creates the Echo scoring handler.
func ProvideScoreHandler(l *logger.Logger, engine *usecase.ScoringEngine, store repository.Storage) xhttp.Handler {
	return api.NewScoreEchoHandler(l, engine, store)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	engine *usecase.ScoringEngine,
	collector *usecase.TxnCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTxnHandler,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, engine, collector, consumer, kh, chClient)
	app.SetHTTPHandler(handler)
	if collector != nil {
		app.TxnProc = collector.Processor()
	}
	return app
}
