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

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/api"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/application"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/gateway"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/memory"
	mongoRepo "github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/kafka"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/tracing"
)

const serviceName = "payment-service"

// Config holds application configuration
type Config struct {
	ServerAddr     string
	StorageBackend string
	MongoDB        *mongodb.Config
	Kafka          *kafka.Config
	DeclineRate    float64
	OutboxInterval time.Duration
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig(getEnv("MONGODB_DATABASE", "payment_db"))
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0")

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = kafka.ParseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ClientID = serviceName

	declineRate := gateway.DefaultDeclineRate
	if v, err := strconv.ParseFloat(getEnv("PAYMENT_DECLINE_RATE", ""), 64); err == nil && v >= 0 && v <= 1 {
		declineRate = v
	}

	outboxInterval := time.Second
	if d, err := time.ParseDuration(getEnv("OUTBOX_POLL_INTERVAL", "")); err == nil && d > 0 {
		outboxInterval = d
	}

	return &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8082"),
		StorageBackend: getEnv("STORAGE_BACKEND", "mongodb"),
		MongoDB:        mongoConfig,
		Kafka:          kafkaConfig,
		DeclineRate:    declineRate,
		OutboxInterval: outboxInterval,
	}
}

var initTracing = tracing.Initialize

var startHTTPServer = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

func main() {
	// Optional local overrides.
	_ = godotenv.Load()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := run(context.Background(), signalCh); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, signalCh <-chan os.Signal) error {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting payment-service API")

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

	repo, outboxRepo, closeStore, err := openStore(ctx, config, m, logger)
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
		logger.Info("Outbox publisher started")
	}

	paymentService := application.NewPaymentService(
		repo,
		gateway.NewSimulatedGateway(config.DeclineRate, uint64(time.Now().UnixNano())),
		clock.NewSystem(),
		logger,
		m,
	)

	router := api.NewRouter(serviceName, paymentService, m, logger, func() error {
		return paymentService.Ping(ctx)
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "addr", config.ServerAddr, "backend", config.StorageBackend)
		if err := startHTTPServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
		return err
	case <-signalCh:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return err
	}

	logger.Info("Server stopped")
	return nil
}

// openStore connects the configured backend. The memory backend has no outbox.
func openStore(ctx context.Context, config *Config, m *metrics.Metrics, logger *logging.Logger) (domain.PaymentRepository, outbox.Repository, func(), error) {
	if config.StorageBackend == "memory" {
		logger.Warn("Using in-memory storage, state is lost on restart")
		return memory.NewPaymentRepository(), nil, func() {}, nil
	}

	client, err := mongodb.NewProductionClient(ctx, config.MongoDB, m, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	repo := mongoRepo.NewPaymentRepository(client, cloudevents.NewEventFactory(cloudevents.SourcePayment))
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to create indexes")
	}
	closeFn := func() { _ = client.Close(context.Background()) }
	return repo, repo.OutboxRepository(), closeFn, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
