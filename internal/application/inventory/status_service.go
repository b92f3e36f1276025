package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/infrastructure/telemetry"
)

// BatchStatusService drives the batch lifecycle: the automatic depleted
// transition and the manual terminal transitions that write off remaining
// stock, plus manual quantity corrections. Every mutation commits the batch
// change, its ledger entry, and the product total together.
type BatchStatusService struct {
	txScope        TransactionScope
	eventPublisher shared.EventPublisher
	stockMetrics   *telemetry.StockMetrics
}

// NewBatchStatusService creates a new BatchStatusService
func NewBatchStatusService(txScope TransactionScope) *BatchStatusService {
	return &BatchStatusService{txScope: txScope}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *BatchStatusService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetStockMetrics sets the stock metrics collector
func (s *BatchStatusService) SetStockMetrics(sm *telemetry.StockMetrics) {
	s.stockMetrics = sm
}

func (s *BatchStatusService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
}

// MarkDepleted applies the automatic transition for a batch whose quantity
// reached zero. Calling it again on a depleted batch is a no-op.
func (s *BatchStatusService) MarkDepleted(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error) {
	var (
		batch  *inventory.Batch
		events []shared.DomainEvent
	)

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByID(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status == inventory.BatchStatusDepleted {
			return nil
		}

		if err := batch.MarkDepleted(); err != nil {
			return err
		}
		if err := repos.BatchRepo().SaveWithLock(ctx, batch); err != nil {
			return err
		}
		events = shared.DrainEvents(batch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, events)
	response := ToBatchResponse(batch)
	return &response, nil
}

// TransitionManual closes an active batch as expired, damaged or returned.
// In one commit the remaining quantity is written off, a ledger entry of the
// matching movement type records the write-off, and the product total moves
// by the same delta. The written ledger entry is returned.
func (s *BatchStatusService) TransitionManual(ctx context.Context, cmd TransitionBatchCommand) (*MovementResponse, error) {
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "A reason is required to close a batch")
	}

	var (
		movement *inventory.MovementRecord
		events   []shared.DomainEvent
	)

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		batch, err := repos.BatchRepo().FindByID(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		product, err := repos.ProductRepo().FindByID(ctx, batch.ProductID)
		if err != nil {
			return err
		}

		previousQuantity, err := batch.MarkTerminal(cmd.Target, cmd.Reason)
		if err != nil {
			return err
		}
		if err := repos.BatchRepo().SaveWithLock(ctx, batch); err != nil {
			return err
		}

		movementType, ok := cmd.Target.TerminalMovementType()
		if !ok {
			return shared.NewDomainError("VALIDATION_ERROR",
				"Status "+cmd.Target.String()+" has no movement type")
		}

		delta := previousQuantity.Neg()
		movement, err = inventory.NewMovementRecord(
			product.ID,
			movementType,
			delta,
			product.CurrentStock,
			product.CurrentStock.Add(delta),
		)
		if err != nil {
			return err
		}
		movement.WithBatch(batch.ID).WithReason(cmd.Reason)
		if cmd.OperatorID != nil {
			movement.WithActor(*cmd.OperatorID)
		}
		if err := repos.MovementRepo().Append(ctx, movement); err != nil {
			return err
		}

		if err := product.ApplyStockDelta(delta); err != nil {
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
		s.stockMetrics.RecordMovement(ctx, movement.MovementType.String())
	}

	s.publishEvents(ctx, events)
	response := ToMovementResponse(movement)
	return &response, nil
}

// AdjustQuantity applies a signed count correction to an active batch, for
// example after a physical recount. The adjustment, its ledger entry, and
// the product total move in one commit. Corrections can touch zero but a
// zero quantity from adjustment leaves the batch active; only consumption
// depletes it.
func (s *BatchStatusService) AdjustQuantity(ctx context.Context, cmd AdjustQuantityCommand) (*BatchResponse, error) {
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "A reason is required to adjust a batch")
	}

	var (
		batch  *inventory.Batch
		events []shared.DomainEvent
	)

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByID(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		product, err := repos.ProductRepo().FindByID(ctx, batch.ProductID)
		if err != nil {
			return err
		}

		if err := batch.AdjustBy(cmd.Delta); err != nil {
			return err
		}
		if err := repos.BatchRepo().SaveWithLock(ctx, batch); err != nil {
			return err
		}

		movement, err := inventory.NewMovementRecord(
			product.ID,
			inventory.MovementTypeAdjustment,
			cmd.Delta,
			product.CurrentStock,
			product.CurrentStock.Add(cmd.Delta),
		)
		if err != nil {
			return err
		}
		movement.WithBatch(batch.ID).WithReason(cmd.Reason)
		if cmd.OperatorID != nil {
			movement.WithActor(*cmd.OperatorID)
		}
		if err := repos.MovementRepo().Append(ctx, movement); err != nil {
			return err
		}

		if err := product.ApplyStockDelta(cmd.Delta); err != nil {
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
		s.stockMetrics.RecordMovement(ctx, inventory.MovementTypeAdjustment.String())
	}

	s.publishEvents(ctx, events)
	response := ToBatchResponse(batch)
	return &response, nil
}
