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
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/api"
	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/clients"
	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/infrastructure/memory"
	mongoStore "github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/infrastructure/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/idempotency"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/kafka"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/tracing"
)

const serviceName = "orchestrator"

// Config holds application configuration
type Config struct {
	ServerAddr          string
	InventoryServiceURL string
	PaymentServiceURL   string
	StepTimeout         time.Duration
	SaveTimeout         time.Duration
	RecoveryAfter       time.Duration
	RecoveryInterval    time.Duration
	RedisAddr           string
	StorageBackend      string
	MongoDB             *mongodb.Config
	Kafka               *kafka.Config
	OutboxInterval      time.Duration
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig(getEnv("MONGODB_DATABASE", "orchestrator_db"))
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0")

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = kafka.ParseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ClientID = serviceName

	return &Config{
		ServerAddr:          getEnv("SERVER_ADDR", ":8080"),
		InventoryServiceURL: getEnv("INVENTORY_SERVICE_URL", "http://localhost:8081"),
		PaymentServiceURL:   getEnv("PAYMENT_SERVICE_URL", "http://localhost:8082"),
		StepTimeout:         getDuration("STEP_TIMEOUT", saga.DefaultStepTimeout),
		SaveTimeout:         getDuration("SAVE_TIMEOUT", saga.DefaultSaveTimeout),
		RecoveryAfter:       getDuration("RECOVERY_AFTER", saga.DefaultRecoveryAfter),
		RecoveryInterval:    getDuration("RECOVERY_INTERVAL", saga.DefaultRecoveryInterval),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		StorageBackend:      getEnv("STORAGE_BACKEND", "mongodb"),
		MongoDB:             mongoConfig,
		Kafka:               kafkaConfig,
		OutboxInterval:      getDuration("OUTBOX_POLL_INTERVAL", time.Second),
	}
}

var initTracing = tracing.Initialize

var startHTTPServer = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

func main() {
	// Optional local overrides.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting orchestrator API")

	config := loadConfig()

	tracerProvider, err := initTracing(ctx, tracing.DefaultConfig(serviceName))
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

	store, outboxRepo, db, closeStore, err := openStore(ctx, config, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to open storage", "backend", config.StorageBackend)
		return err
	}
	defer closeStore()

	if outboxRepo != nil {
		producer := kafka.NewProductionProducer(config.Kafka, m, logger)
		defer producer.Close()

		publisher := outbox.NewPublisher(outboxRepo, producer, logger, m, &outbox.PublisherConfig{
			PollInterval: config.OutboxInterval,
			BatchSize:    100,
			Retention:    7 * 24 * time.Hour,
		})
		if err := publisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			return err
		}
		defer func() {
			if err := publisher.Stop(); err != nil {
				logger.WithError(err).Warn("Failed to stop outbox publisher")
			}
		}()
	}

	serviceClients := clients.NewServiceClients(&clients.Config{
		InventoryServiceURL: config.InventoryServiceURL,
		PaymentServiceURL:   config.PaymentServiceURL,
		Timeout:             config.StepTimeout + time.Second,
	}, logger, m)

	orchestrator := saga.NewPurchaseOrchestrator(
		serviceClients,
		serviceClients,
		store,
		clock.NewSystem(),
		logger,
		saga.WithStepTimeout(config.StepTimeout),
		saga.WithSaveTimeout(config.SaveTimeout),
		saga.WithMetrics(m),
	)
	recoverer := saga.NewRecoverer(orchestrator, config.RecoveryAfter, config.RecoveryInterval, logger)

	idem, closeIdem := openIdempotency(ctx, config, db, m, logger)
	defer closeIdem()

	router := api.NewRouter(serviceName, orchestrator, idem, m, logger, func() error {
		return orchestrator.Ping(ctx)
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		// a run plus the in-line finalize retries
		WriteTimeout: orchestrator.RunBudget() + (saga.DefaultFinalizeAttempts-1)*config.StepTimeout + 10*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started",
			"addr", config.ServerAddr,
			"backend", config.StorageBackend,
			"inventory", config.InventoryServiceURL,
			"payment", config.PaymentServiceURL,
		)
		if err := startHTTPServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return recoverer.Run(gctx)
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
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// openStore connects the configured backend. The memory backend has no
// outbox and no database.
func openStore(ctx context.Context, config *Config, m *metrics.Metrics, logger *logging.Logger) (saga.ExecutionStore, outbox.Repository, *mongo.Database, func(), error) {
	if config.StorageBackend == "memory" {
		logger.Warn("Using in-memory storage, saga history is lost on restart")
		return memory.NewExecutionStore(), nil, nil, func() {}, nil
	}

	client, err := mongodb.NewProductionClient(ctx, config.MongoDB, m, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	store := mongoStore.NewExecutionStore(client, cloudevents.NewEventFactory(cloudevents.SourceOrchestrator))
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to create indexes")
	}
	closeFn := func() { _ = client.Close(context.Background()) }
	return store, store.OutboxRepository(), client.Database(), closeFn, nil
}

// openIdempotency returns the Idempotency-Key configuration backed by Redis
// when REDIS_ADDR is set, otherwise by the saga database. Without either,
// keys are ignored and nil is returned.
func openIdempotency(ctx context.Context, config *Config, db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) (*idempotency.Config, func()) {
	var (
		repo    idempotency.KeyRepository
		closeFn = func() {}
	)

	switch {
	case config.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis is unreachable, keyed requests will fail until it recovers", "addr", config.RedisAddr)
		} else {
			logger.Info("Connected to Redis", "addr", config.RedisAddr)
		}
		repo = idempotency.NewRedisRepository(rdb, idempotency.DefaultLockTimeout, idempotency.DefaultRetentionPeriod)
		closeFn = func() { _ = rdb.Close() }
	case db != nil:
		mongoRepo := idempotency.NewMongoKeyRepository(db, idempotency.DefaultLockTimeout, idempotency.DefaultRetentionPeriod)
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create idempotency indexes")
		}
		logger.Info("Idempotency keys stored in MongoDB", "collection", idempotency.KeysCollection)
		repo = mongoRepo
	default:
		logger.Info("No Redis or MongoDB configured, Idempotency-Key headers are ignored")
		return nil, closeFn
	}

	idem := idempotency.DefaultConfig(serviceName, repo)
	idem.Logger = logger
	idem.Metrics = m
	return idem, closeFn
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
