package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries is the default number of times an allocation is
	// retried from fresh state after a concurrency conflict
	DefaultMaxRetries = 3
)

// AllocationService consumes stock for sales, walking a product's batches
// oldest purchase first. Each allocation attempt runs in one transaction:
// every batch deduction is guarded by a quantity compare-and-swap, one sale
// ledger entry is appended per consumed batch, and the product total moves
// under its version guard. A conflicting writer aborts the whole attempt,
// which is retried from fresh reads a bounded number of times.
type AllocationService struct {
	txScope        TransactionScope
	maxRetries     int
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	stockMetrics   *telemetry.StockMetrics
}

// AllocationServiceOption is a functional option for configuring AllocationService
type AllocationServiceOption func(*AllocationService)

// WithMaxRetries sets how many times a conflicted allocation is retried
func WithMaxRetries(retries int) AllocationServiceOption {
	return func(s *AllocationService) {
		if retries >= 0 {
			s.maxRetries = retries
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) AllocationServiceOption {
	return func(s *AllocationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(txScope TransactionScope, opts ...AllocationServiceOption) *AllocationService {
	s := &AllocationService{
		txScope:    txScope,
		maxRetries: DefaultMaxRetries,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *AllocationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetStockMetrics sets the stock metrics collector
func (s *AllocationService) SetStockMetrics(sm *telemetry.StockMetrics) {
	s.stockMetrics = sm
}

func (s *AllocationService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
}

// recordAllocation records one allocation outcome with its latency
func (s *AllocationService) recordAllocation(ctx context.Context, outcome telemetry.AllocationResult, start time.Time) {
	if s.stockMetrics == nil {
		return
	}
	s.stockMetrics.RecordAllocation(ctx, outcome, time.Since(start))
}

// allocationOutcome maps a failed allocation error to its metric label
func allocationOutcome(err error) telemetry.AllocationResult {
	if errors.Is(err, shared.ErrInsufficientStock) {
		return telemetry.AllocationResultInsufficient
	}
	return telemetry.AllocationResultError
}

// AllocateForSale consumes the requested quantity from a product's batches,
// oldest purchase first. The allocation is all-or-nothing: when the open
// batches cannot cover the request nothing is written and InsufficientStock
// is returned. Batches drained to zero transition to depleted in the same
// commit. Expired batches still open are consumed like any other.
func (s *AllocationService) AllocateForSale(ctx context.Context, cmd AllocateStockCommand) (*AllocationResult, error) {
	if cmd.ProductID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID cannot be empty")
	}
	if !cmd.Quantity.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Requested quantity must be positive")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, cmd.ProductID.String(),
		telemetry.SpanAttrQuantity, cmd.Quantity.String(),
	)

	start := time.Now()
	var (
		result *AllocationResult
		events []shared.DomainEvent
		opErr  error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("allocate", nil), func(c context.Context) {
		for attempt := 0; ; attempt++ {
			var err error
			result, events, err = s.tryAllocate(c, cmd)
			if err == nil {
				return
			}
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				s.recordAllocation(c, allocationOutcome(err), start)
				telemetry.RecordError(span, err)
				opErr = err
				return
			}
			if attempt >= s.maxRetries {
				s.logger.Warn("allocation retries exhausted",
					zap.String("product_id", cmd.ProductID.String()),
					zap.String("quantity", cmd.Quantity.String()),
					zap.Int("attempts", attempt+1),
				)
				s.recordAllocation(c, telemetry.AllocationResultConflict, start)
				opErr = shared.NewDomainError("CONCURRENCY_CONFLICT",
					"Allocation kept conflicting with concurrent stock writers")
				telemetry.RecordError(span, opErr)
				return
			}
			if s.stockMetrics != nil {
				s.stockMetrics.RecordAllocationRetry(c)
			}
			telemetry.SetAttribute(span, telemetry.SpanAttrAttempt, attempt+1)
			s.logger.Debug("allocation conflicted, retrying from fresh state",
				zap.String("product_id", cmd.ProductID.String()),
				zap.Int("attempt", attempt+1),
			)
		}
	})
	if opErr != nil {
		return nil, opErr
	}

	s.recordAllocation(ctx, telemetry.AllocationResultAllocated, start)
	if s.stockMetrics != nil {
		for range result.ConsumedBatches {
			s.stockMetrics.RecordMovement(ctx, inventory.MovementTypeSale.String())
		}
		for _, event := range events {
			if _, ok := event.(*inventory.BatchDepletedEvent); ok {
				s.stockMetrics.RecordBatchDepleted(ctx)
			}
		}
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrDeductionCount, len(result.ConsumedBatches))
	telemetry.AddEvent(span, "stock_allocated",
		"allocation_id", result.AllocationID.String(),
		"total_cost", result.TotalCost.String(),
	)

	s.publishEvents(ctx, events)
	return result, nil
}

// tryAllocate runs one allocation attempt in a single transaction. A
// concurrency conflict anywhere rolls the attempt back untouched.
func (s *AllocationService) tryAllocate(ctx context.Context, cmd AllocateStockCommand) (*AllocationResult, []shared.DomainEvent, error) {
	var (
		result *AllocationResult
		events []shared.DomainEvent
	)

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.ProductRepo().FindByID(ctx, cmd.ProductID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Nothing was ever received for this product
				return shared.NewDomainError("INSUFFICIENT_STOCK",
					fmt.Sprintf("Insufficient stock: requested %s, available 0", cmd.Quantity.String()))
			}
			return err
		}

		batches, err := repos.BatchRepo().ListActiveOrdered(ctx, cmd.ProductID)
		if err != nil {
			return err
		}

		plan, err := inventory.PlanFIFO(batches, cmd.Quantity)
		if err != nil {
			return err
		}

		byID := make(map[uuid.UUID]*inventory.Batch, len(batches))
		for _, b := range batches {
			byID[b.ID] = b
		}

		allocationID := uuid.New()
		consumed := make([]ConsumedBatch, 0, len(plan.Deductions))
		runningStock := product.CurrentStock

		for _, d := range plan.Deductions {
			batch := byID[d.BatchID]
			expected := batch.CurrentQuantity

			if err := repos.BatchRepo().ApplyDelta(ctx, d.BatchID, d.Quantity.Neg(), expected); err != nil {
				return err
			}

			newStock := runningStock.Sub(d.Quantity)
			movement, err := inventory.NewMovementRecord(
				product.ID,
				inventory.MovementTypeSale,
				d.Quantity.Neg(),
				runningStock,
				newStock,
			)
			if err != nil {
				return err
			}
			movement.WithBatch(d.BatchID).WithReference(cmd.ReferenceType, cmd.ReferenceID)
			if cmd.OperatorID != nil {
				movement.WithActor(*cmd.OperatorID)
			}
			if err := repos.MovementRepo().Append(ctx, movement); err != nil {
				return err
			}

			runningStock = newStock
			consumed = append(consumed, ConsumedBatch{
				BatchID:      d.BatchID,
				BatchNumber:  d.BatchNumber,
				Quantity:     d.Quantity,
				CostPrice:    d.CostPrice,
				SellingPrice: d.SellingPrice,
				MovementID:   movement.ID,
			})

			if expected.Equal(d.Quantity) {
				events = append(events, inventory.NewBatchDepletedEvent(batch))
			}
		}

		if err := product.ApplyStockDelta(cmd.Quantity.Neg()); err != nil {
			return err
		}
		if err := repos.ProductRepo().SaveWithLock(ctx, product); err != nil {
			return err
		}

		result = &AllocationResult{
			AllocationID:      allocationID,
			ProductID:         cmd.ProductID,
			RequestedQuantity: cmd.Quantity,
			ConsumedBatches:   consumed,
			TotalCost:         plan.TotalCost,
			AverageCostPrice:  plan.AverageUnitCost(cmd.Quantity),
		}
		events = append(events, inventory.NewStockAllocatedEvent(
			cmd.ProductID, allocationID, cmd.Quantity, plan.TotalCost, len(consumed)))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, events, nil
}

// ReverseAllocation undoes a committed allocation after the caller aborted,
// for example when payment failed after the stock was already taken. The
// ledger is never rewritten: each consumed batch gets a compensating return
// entry and its quantity back, and batches the allocation depleted become
// active again. A batch that was manually closed in the meantime fails the
// whole reversal before anything is written.
func (s *AllocationService) ReverseAllocation(ctx context.Context, allocation *AllocationResult, reason string, operatorID *uuid.UUID) (*ReversalResult, error) {
	if allocation == nil || len(allocation.ConsumedBatches) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Allocation to reverse has no consumed batches")
	}
	if reason == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "A reason is required to reverse an allocation")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "reverse")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, allocation.ProductID.String(),
		telemetry.SpanAttrDeductionCount, len(allocation.ConsumedBatches),
	)

	var (
		result *ReversalResult
		events []shared.DomainEvent
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, events, err = s.tryReverse(ctx, allocation, reason, operatorID)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if attempt >= s.maxRetries {
			s.logger.Warn("reversal retries exhausted",
				zap.String("allocation_id", allocation.AllocationID.String()),
				zap.Int("attempts", attempt+1),
			)
			err = shared.NewDomainError("CONCURRENCY_CONFLICT",
				"Reversal kept conflicting with concurrent stock writers")
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	if s.stockMetrics != nil {
		for range result.MovementIDs {
			s.stockMetrics.RecordMovement(ctx, inventory.MovementTypeReturn.String())
			s.stockMetrics.RecordReversal(ctx, inventory.MovementTypeSale.String())
		}
	}

	s.publishEvents(ctx, events)
	return result, nil
}

func (s *AllocationService) tryReverse(ctx context.Context, allocation *AllocationResult, reason string, operatorID *uuid.UUID) (*ReversalResult, []shared.DomainEvent, error) {
	var (
		result *ReversalResult
		events []shared.DomainEvent
	)

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.ProductRepo().FindByID(ctx, allocation.ProductID)
		if err != nil {
			return err
		}

		// Check every batch before touching any of them
		batches := make([]*inventory.Batch, len(allocation.ConsumedBatches))
		for i, c := range allocation.ConsumedBatches {
			batch, err := repos.BatchRepo().FindByID(ctx, c.BatchID)
			if err != nil {
				return err
			}
			if batch.Status.IsManualTarget() {
				return shared.NewDomainError("INVALID_TRANSITION",
					fmt.Sprintf("Cannot reverse onto batch %s with status %s",
						batch.BatchNumber, batch.Status.String()))
			}
			batches[i] = batch
		}

		restored := decimal.Zero
		runningStock := product.CurrentStock
		movementIDs := make([]uuid.UUID, 0, len(allocation.ConsumedBatches))

		for i, c := range allocation.ConsumedBatches {
			batch := batches[i]
			if err := repos.BatchRepo().ApplyDelta(ctx, c.BatchID, c.Quantity, batch.CurrentQuantity); err != nil {
				return err
			}

			newStock := runningStock.Add(c.Quantity)
			movement, err := inventory.NewMovementRecord(
				product.ID,
				inventory.MovementTypeReturn,
				c.Quantity,
				runningStock,
				newStock,
			)
			if err != nil {
				return err
			}
			movement.WithBatch(c.BatchID).
				WithReference("stock_allocation", allocation.AllocationID.String()).
				WithReason(reason).
				AsReversalOf(c.MovementID)
			if operatorID != nil {
				movement.WithActor(*operatorID)
			}
			if err := repos.MovementRepo().Append(ctx, movement); err != nil {
				return err
			}

			runningStock = newStock
			restored = restored.Add(c.Quantity)
			movementIDs = append(movementIDs, movement.ID)
		}

		if err := product.ApplyStockDelta(restored); err != nil {
			return err
		}
		if err := repos.ProductRepo().SaveWithLock(ctx, product); err != nil {
			return err
		}

		result = &ReversalResult{
			AllocationID:     allocation.AllocationID,
			ProductID:        allocation.ProductID,
			RestoredQuantity: restored,
			MovementIDs:      movementIDs,
		}
		events = []shared.DomainEvent{inventory.NewAllocationReversedEvent(
			allocation.ProductID, allocation.AllocationID, restored)}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, events, nil
}
