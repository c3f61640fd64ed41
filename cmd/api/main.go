package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/coldroom-service/internal/application"
	"github.com/wms-platform/coldroom-service/internal/config"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/events"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/lock"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/storage"
	"github.com/wms-platform/coldroom-service/pkg/cloudevents"
	"github.com/wms-platform/coldroom-service/pkg/kafka"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	"github.com/wms-platform/coldroom-service/pkg/middleware"
	"github.com/wms-platform/coldroom-service/pkg/outbox"
	"github.com/wms-platform/coldroom-service/pkg/tracing"
)

const serviceName = "coldroom-service"

func main() {
	// Setup logger before config so load failures are structured
	logConfig := logging.DefaultConfig(serviceName)
	logger := logging.New(logConfig)
	logger.SetDefault()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logger = logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting coldroom-service API", "environment", cfg.Environment)
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = cfg.OTLPEndpoint
	tracingConfig.Environment = cfg.Environment
	tracingConfig.Enabled = cfg.TracingEnabled

	var serviceOpts []application.Option
	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		serviceOpts = append(serviceOpts, application.WithTracer(tracerProvider.Tracer()))
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	eventFactory := cloudevents.NewEventFactory(events.Source)

	backend, err := storage.Open(ctx, cfg, eventFactory, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to open store", "driver", cfg.StoreDriver)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := backend.Close(closeCtx); err != nil {
			logger.WithError(err).Error("Failed to close store")
		}
	}()
	if err := backend.Migrate(ctx); err != nil {
		logger.WithError(err).Error("Failed to migrate store", "driver", backend.Driver)
		os.Exit(1)
	}
	store := backend.Store
	logger.Info("Store ready", "driver", backend.Driver)

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize group locks", "backend", cfg.LockBackend)
		os.Exit(1)
	}
	defer closeLocker()
	logger.Info("Group locks ready", "backend", cfg.LockBackend)

	// Outbox publisher delivers committed events to Kafka
	if cfg.KafkaEnabled {
		kafkaProducer := kafka.NewProducer(cfg.Kafka)
		defer kafkaProducer.Close()
		instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
		logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

		outboxPublisher := outbox.NewPublisher(backend.Outbox, instrumentedProducer, logger, m, outbox.DefaultPublisherConfig())
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
		logger.Info("Outbox publisher started")
	} else {
		logger.Warn("Kafka disabled, events stay in the outbox until a publisher runs")
	}

	serviceConfig := application.DefaultConfig()
	serviceConfig.OperationTimeout = cfg.OperationTimeout
	serviceConfig.DefaultBoxesPerPallet = cfg.DefaultBoxesPerPallet

	commands := application.NewColdRoomService(store, locker, cfg.Catalog, m, logger, serviceConfig, serviceOpts...)
	queries := application.NewColdRoomQueryService(store, cfg.Catalog, m, logger, serviceConfig, serviceOpts...)

	if err := RegisterEnums(cfg.Catalog); err != nil {
		logger.WithError(err).Error("Failed to register request validators")
		os.Exit(1)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	readiness := map[string]func(context.Context) error{"store": queries.Ping}
	if pinger, ok := locker.(interface{ Ping(context.Context) error }); ok {
		readiness["locks"] = pinger.Ping
	}
	router := newRouter(cfg, m, logger, readiness)
	NewColdRoomHandler(commands, queries, logger).Register(router)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.OperationTimeout + 5*time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr, "coldRooms", cfg.Catalog.IDs())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

func newRouter(cfg *config.Config, m *metrics.Metrics, logger *logging.Logger, readiness map[string]func(context.Context) error) *gin.Engine {
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middlewareConfig.AllowedOrigins = cfg.AllowedOrigins
	middleware.Setup(router, middlewareConfig)

	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, 2*time.Second, readiness))
	router.GET("/metrics", middleware.MetricsEndpoint(m))
	return router
}

func openLocker(ctx context.Context, cfg *config.Config) (application.GroupLocker, func(), error) {
	if cfg.LockBackend != config.LockRedis {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddress)
	if err != nil {
		return nil, nil, err
	}
	redisConfig := lock.DefaultRedisConfig(cfg.RedisAddress)
	redisConfig.TTL = cfg.LockTTL
	return lock.NewRedisLocker(rdb, redisConfig), func() { _ = rdb.Close() }, nil
}
