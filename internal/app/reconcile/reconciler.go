package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/metrics"
	"checkout/internal/repository/order_repo"
)

type Reconciler interface {
	Reconcile(ctx context.Context, orderID string, lines []domain.SessionLine) (*domain.ReconcileResult, error)
}

type InventoryRepository interface {
	DecrementTx(ctx context.Context, querier domain.Querier, id string, qty int) (domain.Amount, error)
}

type ListingEvictor interface {
	Evict(ctx context.Context, ids ...string) error
}

type reconciler struct {
	db        *sql.DB
	orderRepo order_repo.OrderRepository
	inventory InventoryRepository
	evictor   ListingEvictor
	logger    *zap.Logger
}

func NewReconciler(
	db *sql.DB,
	orderRepo order_repo.OrderRepository,
	inventory InventoryRepository,
	evictor ListingEvictor,
	logger *zap.Logger,
) Reconciler {
	return &reconciler{
		db:        db,
		orderRepo: orderRepo,
		inventory: inventory,
		evictor:   evictor,
		logger:    logger,
	}
}

// Reconcile records the order lines and takes the stock for a paid order in one transaction.
// The order becomes confirmed only when every line succeeds; otherwise nothing is applied, the
// order is marked failed and a *domain.ReconciliationError lists what went wrong per line.
func (r *reconciler) Reconcile(ctx context.Context, orderID string, lines []domain.SessionLine) (result *domain.ReconcileResult, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin reconciliation transaction", zap.String("order_id", orderID), zap.Error(err))
		return nil, r.fail(ctx, orderID, nil, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during reconciliation, rolling back", zap.String("order_id", orderID), zap.Any("panic", p))
			_ = tx.Rollback()
			panic(p)
		}
	}()

	result, lineErrs, err := r.reconcileTx(ctx, tx, orderID, lines)
	if errors.Is(err, errAlreadyConfirmed) {
		_ = tx.Rollback()
		r.logger.Info("Order already confirmed, returning recorded lines", zap.String("order_id", orderID))
		metrics.RecordReconciliation("already_confirmed")
		return result, nil
	}
	if err != nil || len(lineErrs) > 0 {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to roll back reconciliation", zap.String("order_id", orderID), zap.Error(rbErr))
		}
		return nil, r.fail(ctx, orderID, lineErrs, err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit reconciliation", zap.String("order_id", orderID), zap.Error(err))
		return nil, r.fail(ctx, orderID, nil, fmt.Errorf("failed to commit transaction: %w", err))
	}

	if r.evictor != nil {
		ids := make([]string, len(result.Lines))
		for i, l := range result.Lines {
			ids[i] = l.ItemID
		}
		if err := r.evictor.Evict(ctx, ids...); err != nil {
			r.logger.Warn("Failed to evict reconciled listings from cache", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	metrics.RecordReconciliation("confirmed")
	r.logger.Info("Order reconciled", zap.String("order_id", orderID), zap.Int("lines", len(result.Lines)))
	return result, nil
}

var errAlreadyConfirmed = errors.New("order already confirmed")

func (r *reconciler) reconcileTx(ctx context.Context, tx *sql.Tx, orderID string, lines []domain.SessionLine) (*domain.ReconcileResult, []domain.LineError, error) {
	order, err := r.orderRepo.GetByID(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	switch order.Status {
	case domain.OrderStatusPending:
	case domain.OrderStatusConfirmed:
		recorded, err := r.orderRepo.GetLines(ctx, tx, orderID)
		if err != nil {
			return nil, nil, err
		}
		return &domain.ReconcileResult{OrderID: orderID, Lines: recorded}, nil, errAlreadyConfirmed
	default:
		return nil, nil, fmt.Errorf("%w: status is %s", domain.ErrOrderNotPending, order.Status)
	}
	if len(lines) == 0 {
		return nil, nil, domain.ErrEmptyCart
	}

	result := &domain.ReconcileResult{OrderID: orderID}
	var lineErrs []domain.LineError
	for _, line := range lines {
		if line.Quantity < 1 {
			lineErrs = append(lineErrs, domain.LineError{ItemID: line.ItemID, Quantity: line.Quantity, Err: fmt.Errorf("invalid quantity")})
			continue
		}

		price, err := r.inventory.DecrementTx(ctx, tx, line.ItemID, line.Quantity)
		if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrListingNotFound) {
			r.logger.Warn("Order line could not take stock",
				zap.String("order_id", orderID),
				zap.String("item_id", line.ItemID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
			lineErrs = append(lineErrs, domain.LineError{ItemID: line.ItemID, Quantity: line.Quantity, Err: err})
			continue
		}
		if err != nil {
			lineErrs = append(lineErrs, domain.LineError{ItemID: line.ItemID, Quantity: line.Quantity, Err: err})
			return nil, lineErrs, err
		}

		orderLine := domain.OrderLine{
			OrderID:   orderID,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: price,
		}
		if err := r.orderRepo.InsertLineTx(ctx, tx, orderLine); err != nil {
			lineErrs = append(lineErrs, domain.LineError{ItemID: line.ItemID, Quantity: line.Quantity, Err: err})
			return nil, lineErrs, err
		}
		result.Lines = append(result.Lines, orderLine)
	}
	if len(lineErrs) > 0 {
		return nil, lineErrs, nil
	}
	if listed := result.LinesTotal(); listed != order.TotalAmount {
		// The buyer was charged the cart total; lines keep the current listing prices.
		r.logger.Warn("Order total differs from listing prices at reconciliation",
			zap.String("order_id", orderID),
			zap.Int64("charged", int64(order.TotalAmount)),
			zap.Int64("listed", int64(listed)))
		metrics.RecordReconciliation("price_mismatch")
	}

	if err := r.orderRepo.UpdateStatusTx(ctx, tx, orderID, domain.OrderStatusPending, domain.OrderStatusConfirmed); err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// fail marks the order failed outside the rolled-back transaction and builds the error returned to callers.
func (r *reconciler) fail(ctx context.Context, orderID string, lineErrs []domain.LineError, cause error) error {
	metrics.RecordReconciliation("failed")
	if err := r.orderRepo.UpdateStatusTx(ctx, r.db, orderID, domain.OrderStatusPending, domain.OrderStatusFailed); err != nil {
		r.logger.Error("Failed to mark order as failed after reconciliation error", zap.String("order_id", orderID), zap.Error(err))
	}

	recErr := &domain.ReconciliationError{OrderID: orderID, Lines: lineErrs, Err: cause}
	r.logger.Error("Order reconciliation failed", zap.String("order_id", orderID), zap.Error(recErr))
	return recErr
}
