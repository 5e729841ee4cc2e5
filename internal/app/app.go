package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/idempotency"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/outbox"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

// Run запускает фоновую часть приложения: хранилище, воркер публикации
// outbox, чистку идемпотентных ключей и HTTP-сервер метрик. Доменные
// сервисы собираются отдельно через NewServices. Блокируется до отмены
// контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	rt, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	// Kafka опционален: без брокеров события остаются в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	logger.WithFields(log.Fields{
		"storage": cfg.StorageDriver,
		"kafka":   kafkaProducer != nil,
	}).Info("runtime dependencies initialized")

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	outboxDone := startOutboxWorker(workerCtx, cfg, rt, kafkaProducer)
	cleanupDone := startIdempotencyCleanup(workerCtx, cfg, rt)

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.RegisterChecker("storage", rt.storageChecker)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем воркеры")

	cancelWorkers()
	waitWorker(outboxDone, "outbox worker", logger)
	waitWorker(cleanupDone, "idempotency cleanup worker", logger)
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// startOutboxWorker поднимает воркер публикации outbox. Без Kafka producer
// воркер не стартует: публиковать некуда, сообщения копятся в outbox.
func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	rt *runtimeDependencies,
	producer *kafka.Producer,
) <-chan struct{} {
	if producer == nil {
		return nil
	}

	worker := outbox.NewWorker(
		rt.outboxRepo,
		kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// startIdempotencyCleanup поднимает периодическую чистку протухших ключей.
func startIdempotencyCleanup(ctx context.Context, cfg Config, rt *runtimeDependencies) <-chan struct{} {
	worker := idempotency.NewCleanupWorker(
		rt.idempotencyRepo,
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// waitWorker дожидается остановки воркера, но не дольше 5 секунд.
func waitWorker(done <-chan struct{}, name string, logger *log.Entry) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warnf("%s не остановился за отведённое время", name)
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
