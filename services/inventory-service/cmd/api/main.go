package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/api"
	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/application"
	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/infrastructure/memory"
	mongoRepo "github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/infrastructure/mongodb"
	pgRepo "github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/infrastructure/postgres"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/kafka"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/postgres"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/tracing"
)

const serviceName = "inventory-service"

// Config holds application configuration
type Config struct {
	ServerAddr     string
	StorageBackend string
	MongoDB        *mongodb.Config
	Postgres       *postgres.Config
	Kafka          *kafka.Config
	HoldTTL        time.Duration
	SweepInterval  time.Duration
	OutboxInterval time.Duration
}

func loadConfig() *Config {
	pgConfig := postgres.DefaultConfig()
	pgConfig.DSN = getEnv("POSTGRES_DSN", pgConfig.DSN)

	mongoConfig := mongodb.DefaultConfig(getEnv("MONGODB_DATABASE", "inventory_db"))
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0")

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = kafka.ParseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ClientID = serviceName

	return &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8081"),
		StorageBackend: getEnv("STORAGE_BACKEND", "mongodb"),
		MongoDB:        mongoConfig,
		Postgres:       pgConfig,
		Kafka:          kafkaConfig,
		HoldTTL:        getDuration("HOLD_TTL", domain.DefaultHoldTTL),
		SweepInterval:  getDuration("SWEEP_INTERVAL", application.DefaultSweepInterval),
		OutboxInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),
	}
}

func main() {
	// Optional local overrides.
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting inventory-service API")

	config := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceInventory)

	repo, outboxRepo, closeStore, err := openStore(ctx, config, eventFactory, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to open storage", "backend", config.StorageBackend)
		os.Exit(1)
	}
	defer closeStore()

	if outboxRepo != nil {
		producer := kafka.NewProductionProducer(config.Kafka, m, logger)
		defer producer.Close()

		outboxPublisher := outbox.NewPublisher(outboxRepo, producer, logger, m, &outbox.PublisherConfig{
			PollInterval: config.OutboxInterval,
			BatchSize:    100,
			Retention:    7 * 24 * time.Hour,
		})
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
	}

	inventoryService := application.NewInventoryApplicationService(
		repo,
		clock.NewSystem(),
		logger,
		application.WithHoldTTL(config.HoldTTL),
		application.WithMetrics(m),
	)
	sweeper := application.NewExpirySweeper(inventoryService, config.SweepInterval, logger)

	router := api.NewRouter(serviceName, inventoryService, m, logger, func() error {
		return inventoryService.Ping(ctx)
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started", "addr", config.ServerAddr, "backend", config.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
	}
	logger.Info("Server stopped")
}

// openStore connects the configured backend and returns the ledger
// repository together with the outbox it writes to. The memory backend has
// no outbox.
func openStore(ctx context.Context, config *Config, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger) (domain.InventoryRepository, outbox.Repository, func(), error) {
	switch config.StorageBackend {
	case "memory":
		logger.Warn("Using in-memory storage, state is lost on restart")
		return memory.NewInventoryRepository(), nil, func() {}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, config.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pgRepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info("Connected to Postgres")

		repo := pgRepo.NewInventoryRepository(pool, eventFactory, m, logger)
		return repo, repo.OutboxRepository(), pool.Close, nil

	default:
		client, err := mongodb.NewProductionClient(ctx, config.MongoDB, m, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

		repo := mongoRepo.NewInventoryRepository(client, eventFactory)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create indexes")
		}
		closeFn := func() { _ = client.Close(context.Background()) }
		return repo, repo.OutboxRepository(), closeFn, nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
