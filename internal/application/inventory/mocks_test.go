package inventory

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{
		events: make([]shared.DomainEvent, 0),
	}
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEvents() []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, len(m.events))
	copy(result, m.events)
	return result
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// MockBatchRepository is a mock implementation of inventory.BatchRepository
type MockBatchRepository struct {
	mock.Mock
}

func (m *MockBatchRepository) Create(ctx context.Context, batch *inventory.Batch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Batch), args.Error(1)
}

func (m *MockBatchRepository) FindByBatchNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*inventory.Batch, error) {
	args := m.Called(ctx, productID, batchNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Batch), args.Error(1)
}

func (m *MockBatchRepository) FindByProduct(ctx context.Context, productID uuid.UUID, filter shared.Filter) ([]*inventory.Batch, int64, error) {
	args := m.Called(ctx, productID, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*inventory.Batch), args.Get(1).(int64), args.Error(2)
}

func (m *MockBatchRepository) ListActiveOrdered(ctx context.Context, productID uuid.UUID) ([]*inventory.Batch, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inventory.Batch), args.Error(1)
}

func (m *MockBatchRepository) ListAllWithStock(ctx context.Context) ([]*inventory.Batch, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inventory.Batch), args.Error(1)
}

func (m *MockBatchRepository) FindExpiringWithin(ctx context.Context, days int) ([]*inventory.Batch, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inventory.Batch), args.Error(1)
}

func (m *MockBatchRepository) SaveWithLock(ctx context.Context, batch *inventory.Batch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockBatchRepository) ApplyDelta(ctx context.Context, batchID uuid.UUID, delta, expectedCurrent decimal.Decimal) error {
	args := m.Called(ctx, batchID, delta, expectedCurrent)
	return args.Error(0)
}

// MockMovementRepository is a mock implementation of inventory.MovementRepository
type MockMovementRepository struct {
	mock.Mock
}

func (m *MockMovementRepository) Append(ctx context.Context, record *inventory.MovementRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockMovementRepository) HistoryByProduct(ctx context.Context, productID uuid.UUID, dateRange inventory.DateRange) iter.Seq2[*inventory.MovementRecord, error] {
	args := m.Called(ctx, productID, dateRange)
	return args.Get(0).(iter.Seq2[*inventory.MovementRecord, error])
}

func (m *MockMovementRepository) SummarizeDay(ctx context.Context, productID uuid.UUID, day time.Time) ([]inventory.DailyMovementSummary, error) {
	args := m.Called(ctx, productID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inventory.DailyMovementSummary), args.Error(1)
}

func (m *MockMovementRepository) ProductIDsWithMovements(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockProductRepository is a mock implementation of inventory.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Product), args.Error(1)
}

func (m *MockProductRepository) GetOrCreate(ctx context.Context, productID uuid.UUID, name, sku, unit string) (*inventory.Product, error) {
	args := m.Called(ctx, productID, name, sku, unit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Product), args.Error(1)
}

func (m *MockProductRepository) SaveWithLock(ctx context.Context, product *inventory.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

// MockValuationCache is a mock implementation of inventory.ValuationCache
type MockValuationCache struct {
	mock.Mock
}

func (m *MockValuationCache) Get(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.ValuationSnapshot), args.Error(1)
}

func (m *MockValuationCache) Set(ctx context.Context, snapshot *inventory.ValuationSnapshot, ttl time.Duration) error {
	args := m.Called(ctx, snapshot, ttl)
	return args.Error(0)
}

func (m *MockValuationCache) Delete(ctx context.Context, productID uuid.UUID) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *MockValuationCache) GetStore(ctx context.Context) (*inventory.StoreValuation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.StoreValuation), args.Error(1)
}

func (m *MockValuationCache) SetStore(ctx context.Context, valuation *inventory.StoreValuation, ttl time.Duration) error {
	args := m.Called(ctx, valuation, ttl)
	return args.Error(0)
}

func (m *MockValuationCache) DeleteStore(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockValuationCache) InvalidateAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockValuationCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Test helper functions
func newTestProductID() uuid.UUID {
	return uuid.MustParse("11111111-1111-1111-1111-111111111111")
}

func newTestProduct(productID uuid.UUID, stock float64) *inventory.Product {
	product := &inventory.Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               "SKU-001",
		Name:              "Paracetamol 500mg",
		Unit:              "pcs",
		CurrentStock:      decimal.NewFromFloat(stock),
	}
	product.ID = productID
	return product
}

func newTestBatch(productID uuid.UUID, batchNumber string, quantity, costPrice float64, purchaseDate time.Time) *inventory.Batch {
	return &inventory.Batch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		BatchNumber:       batchNumber,
		CostPrice:         decimal.NewFromFloat(costPrice),
		SellingPrice:      decimal.NewFromFloat(costPrice * 1.5),
		MRP:               decimal.NewFromFloat(costPrice * 2),
		InitialQuantity:   decimal.NewFromFloat(quantity),
		CurrentQuantity:   decimal.NewFromFloat(quantity),
		ReservedQuantity:  decimal.Zero,
		PurchaseDate:      purchaseDate,
		Status:            inventory.BatchStatusActive,
	}
}

// decEq matches a decimal argument by numeric value rather than internal
// representation
func decEq(value string) interface{} {
	want := decimal.RequireFromString(value)
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(want)
	})
}
