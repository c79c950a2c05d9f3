package di

import (
	"context"
	"fmt"
	"time"

	"StreamCast/internal/domain/repository"
	domsvc "StreamCast/internal/domain/service"
	"StreamCast/internal/handler/api"
	mid "StreamCast/internal/middleware"
	internalrepo "StreamCast/internal/repository"
	"StreamCast/internal/service/feed"
	"StreamCast/internal/service/ratelimit"
	"StreamCast/internal/services/predictor"
	"StreamCast/internal/tracker"
	"StreamCast/internal/usecase"
	pkgch "StreamCast/pkg/clickhouse"
	"StreamCast/pkg/config"
	pkgkafka "StreamCast/pkg/kafka"
	applogger "StreamCast/pkg/logger"
	"StreamCast/pkg/metrics"
	"StreamCast/pkg/server"
)

// ProvideLogger builds the zerolog-backed application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse when results are stored there.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.UsesClickHouse() {
		return nil, nil
	}
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
	return client, nil
}

// ProvideResultStorage creates the tick_results table and returns its repository.
func ProvideResultStorage(client *pkgch.Client) (repository.ResultStorage, error) {
	if client == nil {
		return nil, nil
	}
	s := internalrepo.NewClickHouseResultStorage(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return s, nil
}

// ProvideKafkaProducer creates a Kafka producer when anything publishes.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.UsesKafkaResults() && !cfg.Feed.Enabled && !cfg.Logger.Collector.Enabled {
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

// ProvideResultPublisher republishes results onto the results topic.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ResultPublisher {
	if producer == nil || !cfg.UsesKafkaResults() {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideResultProcessor routes results to the configured backend.
func ProvideResultProcessor(
	pub repository.ResultPublisher,
	store repository.ResultStorage,
	metrics repository.Metrics,
	cfg *config.Config,
) (*usecase.ResultProcessor, error) {
	return usecase.NewResultProcessor(pub, store, metrics, cfg.Backend.Type)
}

// ProvideResultPipeline buffers and batches results between the model and the backend.
func ProvideResultPipeline(proc *usecase.ResultProcessor, metrics repository.Metrics, cfg *config.Config) *mid.ResultPipeline {
	return mid.NewResultPipeline(proc, metrics,
		mid.WithBufferSize(cfg.Backend.BufferSize),
		mid.WithBatch(cfg.Backend.BatchSize, cfg.Backend.BatchTimeout),
	)
}

// ProvidePredictor builds the local or remote forecaster.
func ProvidePredictor(cfg *config.Config) (domsvc.Predictor, error) {
	p, err := predictor.New(predictor.Settings{
		Kind:            cfg.Model.Predictor,
		Horizons:        cfg.Model.Horizons,
		DisableTraining: cfg.Model.DisableTraining,
		URL:             cfg.Model.URL,
		Timeout:         cfg.Model.Timeout,
		Attempts:        cfg.Model.Attempts,
		Alpha:           cfg.Model.Alpha,
		Beta:            cfg.Model.Beta,
		AnomalyWindow:   cfg.Model.AnomalyWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("predictor: %w", err)
	}
	return p, nil
}

// ProvideSnapshotStore opens the configured snapshot backend.
func ProvideSnapshotStore(cfg *config.Config) (repository.SnapshotStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return internalrepo.NewSnapshotStore(ctx, internalrepo.SnapshotOptions{
		Kind:          cfg.Snapshot.Backend,
		SQLitePath:    cfg.Snapshot.SQLitePath,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   cfg.Redis.Prefix,
	})
}

// ProvideModelRunner couples the predictor with the prediction tracker.
func ProvideModelRunner(
	pred domsvc.Predictor,
	snaps repository.SnapshotStore,
	pipe *mid.ResultPipeline,
	metrics repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) (*usecase.ModelRunner, error) {
	policy, err := tracker.ParseErrorPolicy(cfg.Model.ErrorPolicy)
	if err != nil {
		return nil, err
	}
	return usecase.NewModelRunner(pred, snaps, pipe, metrics, log, usecase.RunnerConfig{
		Key:             cfg.Snapshot.Key,
		RingSize:        cfg.Model.RingSize,
		ErrorPolicy:     policy,
		SaveFrequency:   cfg.Model.SaveFrequency,
		DisableTraining: cfg.Model.DisableTraining,
		Testing:         cfg.Model.Testing,
	})
}

// ProvideKafkaConsumer creates the ingest consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.NonEmptyHook{},
		pkgkafka.LogHook{Logger: log},
	))
	return consumer, nil
}

// ProvideMetricHandler feeds the ingest topic into the model runner.
func ProvideMetricHandler(runner *usecase.ModelRunner, metrics repository.Metrics, cfg *config.Config) *usecase.MetricHandler {
	return usecase.NewMetricHandler(cfg.Kafka.Topic, runner, metrics)
}

// ProvideMetricCollector relays the websocket feed onto the ingest topic.
func ProvideMetricCollector(
	producer *pkgkafka.Producer,
	metrics repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.MetricCollector {
	if !cfg.Feed.Enabled || producer == nil {
		return nil
	}
	stream := feed.New(cfg.Feed.URL, cfg.Feed.Source, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
	pub := internalrepo.NewKafkaRecordPublisher(producer, cfg.Kafka.Topic)
	return usecase.NewMetricCollector(stream, pub, metrics, log)
}

// ProvideRateLimiter creates the per-client token buckets for the HTTP API.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideResultsHandler exposes the model state and stored history over HTTP.
func ProvideResultsHandler(
	log *applogger.Logger,
	runner *usecase.ModelRunner,
	store repository.ResultStorage,
	consumer *pkgkafka.Consumer,
) *api.ResultsEchoHandler {
	// a nil *Consumer must stay a nil interface
	var live api.Liveness
	if consumer != nil {
		live = consumer
	}
	return api.NewResultsEchoHandler(log, runner, store, live)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	runner *usecase.ModelRunner,
	pipe *mid.ResultPipeline,
	proc *usecase.ResultProcessor,
	snaps repository.SnapshotStore,
	consumer *pkgkafka.Consumer,
	handler *usecase.MetricHandler,
	collector *usecase.MetricCollector,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	limiter *ratelimit.Limiter,
	results *api.ResultsEchoHandler,
) *server.App {
	return server.New(cfg, server.Deps{
		Logger:    log,
		Runner:    runner,
		Pipeline:  pipe,
		Processor: proc,
		Snapshots: snaps,
		Consumer:  consumer,
		Handler:   handler,
		Collector: collector,
		Producer:  producer,
		CHClient:  chClient,
		Limiter:   limiter,
		HTTP:      results,
	})
}
