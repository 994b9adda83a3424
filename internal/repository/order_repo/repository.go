package order_repo

import (
	"context"
	"time"

	"checkout/internal/domain"
)

type OrderRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error)
	ListByBuyer(ctx context.Context, querier domain.Querier, buyerID string) ([]*domain.Order, error)
	ListStalePending(ctx context.Context, querier domain.Querier, before time.Time, limit int) ([]*domain.Order, error)
	// UpdateStatusTx moves an order from one status to another and fails with
	// domain.ErrOrderNotPending when the order is no longer in from.
	UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, from, to domain.OrderStatus) error
	InsertLineTx(ctx context.Context, querier domain.Querier, line domain.OrderLine) error
	GetLines(ctx context.Context, querier domain.Querier, orderID string) ([]domain.OrderLine, error)
}
