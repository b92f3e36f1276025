package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/infrastructure/telemetry"
)

// BatchService handles stock receipts and batch queries
type BatchService struct {
	txScope        TransactionScope
	batchRepo      inventory.BatchRepository
	eventPublisher shared.EventPublisher
	stockMetrics   *telemetry.StockMetrics
}

// NewBatchService creates a new BatchService
func NewBatchService(txScope TransactionScope, batchRepo inventory.BatchRepository) *BatchService {
	return &BatchService{
		txScope:   txScope,
		batchRepo: batchRepo,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *BatchService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetStockMetrics sets the stock metrics collector
func (s *BatchService) SetStockMetrics(sm *telemetry.StockMetrics) {
	s.stockMetrics = sm
}

// publishEvents publishes collected domain events after a successful commit
func (s *BatchService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	// Errors are logged by the event bus, not propagated
	_ = s.eventPublisher.Publish(ctx, events...)
}

// CreateBatch receives one batch of stock. In a single commit it creates the
// batch, appends the purchase ledger entry, and moves the product stock
// total. The product row itself is created on first receipt.
func (s *BatchService) CreateBatch(ctx context.Context, cmd CreateBatchCommand) (*BatchResponse, error) {
	var (
		batch  *inventory.Batch
		events []shared.DomainEvent
	)

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.ProductRepo().GetOrCreate(ctx, cmd.ProductID, cmd.ProductName, cmd.ProductSKU, cmd.ProductUnit)
		if err != nil {
			return err
		}

		existing, err := repos.BatchRepo().FindByBatchNumber(ctx, cmd.ProductID, cmd.BatchNumber)
		if err != nil && !errors.Is(err, shared.ErrBatchNotFound) {
			return err
		}
		if existing != nil {
			return shared.NewDomainError("DUPLICATE_BATCH_NUMBER",
				fmt.Sprintf("Batch number %s already exists for this product", existing.BatchNumber))
		}

		batch, err = inventory.NewBatch(
			cmd.ProductID,
			cmd.BatchNumber,
			cmd.CostPrice,
			cmd.SellingPrice,
			cmd.MRP,
			cmd.Quantity,
			cmd.PurchaseDate,
		)
		if err != nil {
			return err
		}
		if cmd.ExpiryDate != nil {
			batch.WithExpiryDate(*cmd.ExpiryDate)
		}
		if cmd.ManufactureDate != nil {
			batch.WithManufactureDate(*cmd.ManufactureDate)
		}
		if cmd.SupplierID != nil {
			batch.WithSupplier(*cmd.SupplierID)
		}
		if cmd.PurchaseOrderID != nil {
			batch.WithPurchaseOrder(*cmd.PurchaseOrderID)
		}
		batch.WithLocation(cmd.Location).WithNotes(cmd.Notes)

		if err := repos.BatchRepo().Create(ctx, batch); err != nil {
			return err
		}

		movement, err := inventory.NewMovementRecord(
			product.ID,
			inventory.MovementTypePurchase,
			cmd.Quantity,
			product.CurrentStock,
			product.CurrentStock.Add(cmd.Quantity),
		)
		if err != nil {
			return err
		}
		movement.WithBatch(batch.ID).WithReference(cmd.ReferenceType, cmd.ReferenceID)
		if cmd.OperatorID != nil {
			movement.WithActor(*cmd.OperatorID)
		}
		if err := repos.MovementRepo().Append(ctx, movement); err != nil {
			return err
		}

		if err := product.ApplyStockDelta(cmd.Quantity); err != nil {
			return err
		}
		if err := repos.ProductRepo().SaveWithLock(ctx, product); err != nil {
			return err
		}

		events = shared.DrainEvents(batch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.stockMetrics != nil {
		s.stockMetrics.RecordBatchReceived(ctx)
		s.stockMetrics.RecordMovement(ctx, inventory.MovementTypePurchase.String())
	}

	s.publishEvents(ctx, events)
	response := ToBatchResponse(batch)
	return &response, nil
}

// GetBatch retrieves a single batch by ID
func (s *BatchService) GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	response := ToBatchResponse(batch)
	return &response, nil
}

// ListBatches retrieves a page of a product's batches. The default order is
// purchase date ascending, the order they would be consumed in.
func (s *BatchService) ListBatches(ctx context.Context, productID uuid.UUID, filter BatchListFilter) (*shared.Paginated[BatchResponse], error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "purchase_date"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "asc"
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Filters:  make(map[string]interface{}),
	}
	if filter.Status != "" {
		status := inventory.BatchStatus(filter.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainError("VALIDATION_ERROR",
				fmt.Sprintf("Unknown batch status %q", filter.Status))
		}
		domainFilter.Filters["status"] = status.String()
	}

	batches, total, err := s.batchRepo.FindByProduct(ctx, productID, domainFilter)
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToBatchResponses(batches), total, filter.Page, filter.PageSize)
	return &page, nil
}

// ListActiveOrderedBatches returns a product's open batches in consumption
// order, oldest purchase first.
func (s *BatchService) ListActiveOrderedBatches(ctx context.Context, productID uuid.UUID) ([]BatchResponse, error) {
	batches, err := s.batchRepo.ListActiveOrdered(ctx, productID)
	if err != nil {
		return nil, err
	}
	return ToBatchResponses(batches), nil
}
