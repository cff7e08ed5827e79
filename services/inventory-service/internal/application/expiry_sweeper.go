package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/tracing"
)

const (
	// DefaultSweepInterval is how often the background sweep runs
	DefaultSweepInterval = time.Minute
	// DefaultSweepBatchSize caps how many items one pass visits
	DefaultSweepBatchSize = 100
)

// ExpirySweeper periodically purges holds whose TTL has passed. Reads never
// depend on it: expired holds already carry no weight before they are purged.
type ExpirySweeper struct {
	service   *InventoryApplicationService
	repo      domain.InventoryRepository
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewExpirySweeper creates a sweeper that purges through service
func NewExpirySweeper(service *InventoryApplicationService, interval time.Duration, logger *logging.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ExpirySweeper{
		service:   service,
		repo:      service.repo,
		clock:     service.clock,
		interval:  interval,
		batchSize: DefaultSweepBatchSize,
		logger:    logger.WithComponent("expiry-sweeper"),
		metrics:   service.metrics,
	}
}

// Run sweeps every interval until ctx is cancelled
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Expiry sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Expiry sweep failed")
			}
		}
	}
}

// SweepOnce purges every item that has expired holds at the current time
// and returns the number of holds dropped
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	total, err := tracing.TracedOperation(ctx, otel.Tracer("expiry-sweeper"), "inventory.sweep_expired_holds", s.sweep,
		attribute.Int("sweep.batch_size", s.batchSize))
	if total > 0 || err != nil {
		s.logger.Performance(ctx, "sweep_expired_holds", time.Since(start), err == nil, map[string]any{"holds": total})
	}
	return total, err
}

func (s *ExpirySweeper) sweep(ctx context.Context) (int, error) {
	ids, err := s.repo.FindIDsWithExpiredHolds(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		s.metrics.RecordExpirySweep(0, false)
		return 0, err
	}

	total := 0
	var firstErr error
	for _, id := range ids {
		purged, err := s.service.PurgeExpiredHolds(ctx, id)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to purge expired holds", "itemId", id)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += purged
	}

	s.metrics.RecordExpirySweep(total, firstErr == nil)
	return total, firstErr
}
