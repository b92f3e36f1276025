package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ValuationService answers valuation and expiry questions from current batch
// state. Results are read models computed on demand; an optional cache keeps
// hot snapshots
type ValuationService struct {
	batchRepo   inventory.BatchRepository
	cache       inventory.ValuationCache
	cacheConfig inventory.CacheConfig
	logger      *zap.Logger
}

// ValuationServiceOption is a functional option for configuring the service
type ValuationServiceOption func(*ValuationService)

// WithValuationCache attaches a snapshot cache
func WithValuationCache(cache inventory.ValuationCache) ValuationServiceOption {
	return func(s *ValuationService) {
		s.cache = cache
	}
}

// WithValuationCacheConfig overrides the cache TTLs
func WithValuationCacheConfig(config inventory.CacheConfig) ValuationServiceOption {
	return func(s *ValuationService) {
		s.cacheConfig = config
	}
}

// WithValuationLogger sets the logger
func WithValuationLogger(logger *zap.Logger) ValuationServiceOption {
	return func(s *ValuationService) {
		s.logger = logger
	}
}

// NewValuationService creates a new ValuationService
func NewValuationService(batchRepo inventory.BatchRepository, opts ...ValuationServiceOption) *ValuationService {
	s := &ValuationService{
		batchRepo:   batchRepo,
		cacheConfig: inventory.DefaultCacheConfig(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValuateProduct computes the quantity weighted valuation of a product's
// remaining stock. Cache failures degrade to a fresh computation.
func (s *ValuationService) ValuateProduct(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID is required")
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, productID)
		if err != nil {
			s.logger.Warn("Valuation cache read failed",
				zap.String("product_id", productID.String()),
				zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	batches, err := s.batchRepo.ListActiveOrdered(ctx, productID)
	if err != nil {
		return nil, err
	}
	snapshot := inventory.ComputeValuation(productID, batches)

	if s.cache != nil {
		if err := s.cache.Set(ctx, &snapshot, s.cacheConfig.SnapshotTTL); err != nil {
			s.logger.Warn("Valuation cache write failed",
				zap.String("product_id", productID.String()),
				zap.Error(err))
		}
	}
	return &snapshot, nil
}

// ValuateStore computes the store wide valuation rollup across every batch
// still holding stock
func (s *ValuationService) ValuateStore(ctx context.Context) (*inventory.StoreValuation, error) {
	if s.cache != nil {
		cached, err := s.cache.GetStore(ctx)
		if err != nil {
			s.logger.Warn("Store valuation cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	// The rollup reads every batch with stock, which makes it the widest
	// query in the read path and worth its own profile region.
	var (
		valuation inventory.StoreValuation
		loadErr   error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.RegionLabels("store_valuation", nil), func(c context.Context) {
		batches, err := s.batchRepo.ListAllWithStock(c)
		if err != nil {
			loadErr = err
			return
		}
		valuation = inventory.ComputeStoreValuation(batches)
	})
	if loadErr != nil {
		return nil, loadErr
	}

	if s.cache != nil {
		if err := s.cache.SetStore(ctx, &valuation, s.cacheConfig.StoreTTL); err != nil {
			s.logger.Warn("Store valuation cache write failed", zap.Error(err))
		}
	}
	return &valuation, nil
}

// ExpiringBatches reports batches whose expiry falls within the next
// daysWindow days, grouped per product with the most urgent first. Batches
// already past expiry are included with negative day counts.
func (s *ValuationService) ExpiringBatches(ctx context.Context, daysWindow int) ([]inventory.ProductExpiryGroup, error) {
	if daysWindow < 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Expiry window must not be negative")
	}

	batches, err := s.batchRepo.FindExpiringWithin(ctx, daysWindow)
	if err != nil {
		return nil, err
	}
	return inventory.GroupExpiringBatches(batches, time.Now()), nil
}
