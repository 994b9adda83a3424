package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"checkout/internal/domain"
)

const pgUniqueViolation = "23505"

type pgOrderRepository struct{}

func NewOrderRepository() *pgOrderRepository {
	return &pgOrderRepository{}
}

func (r *pgOrderRepository) CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error {
	lines := order.CartLines
	if lines == nil {
		lines = []domain.SessionLine{}
	}
	cartLines, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart lines for order %s: %w", order.ID, err)
	}

	query := `
		INSERT INTO orders (id, buyer_id, total_amount, status, payment_method, payment_phone, cart_lines, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = querier.ExecContext(ctx, query,
		order.ID, order.BuyerID, int64(order.TotalAmount), order.Status,
		order.PaymentMethod, order.PaymentPhone, cartLines, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("failed to create order %s: %w", order.ID, err)
	}
	return nil
}

func (r *pgOrderRepository) GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error) {
	query := `
		SELECT id, buyer_id, total_amount, status, payment_method, payment_phone, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	order := &domain.Order{}
	var total int64
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.BuyerID,
		&total,
		&order.Status,
		&order.PaymentMethod,
		&order.PaymentPhone,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	order.TotalAmount = domain.Amount(total)
	return order, nil
}

func (r *pgOrderRepository) ListByBuyer(ctx context.Context, querier domain.Querier, buyerID string) ([]*domain.Order, error) {
	query := `
		SELECT id, buyer_id, total_amount, status, payment_method, payment_phone, created_at, updated_at
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC
	`
	rows, err := querier.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for buyer %s: %w", buyerID, err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order := &domain.Order{}
		var total int64
		if err := rows.Scan(&order.ID, &order.BuyerID, &total, &order.Status, &order.PaymentMethod,
			&order.PaymentPhone, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		order.TotalAmount = domain.Amount(total)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

// ListStalePending returns up to limit pending orders created before before, oldest first.
func (r *pgOrderRepository) ListStalePending(ctx context.Context, querier domain.Querier, before time.Time, limit int) ([]*domain.Order, error) {
	query := `
		SELECT id, buyer_id, total_amount, status, payment_method, payment_phone, cart_lines, created_at, updated_at
		FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := querier.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order := &domain.Order{}
		var total int64
		var cartLines []byte
		if err := rows.Scan(&order.ID, &order.BuyerID, &total, &order.Status, &order.PaymentMethod,
			&order.PaymentPhone, &cartLines, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		if err := json.Unmarshal(cartLines, &order.CartLines); err != nil {
			return nil, fmt.Errorf("failed to decode cart lines for order %s: %w", order.ID, err)
		}
		order.TotalAmount = domain.Amount(total)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

func (r *pgOrderRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, from, to domain.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := querier.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update order %s to %s: %w", id, to, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, querier, id); err != nil {
			return err
		}
		return domain.ErrOrderNotPending
	}
	return nil
}

func (r *pgOrderRepository) InsertLineTx(ctx context.Context, querier domain.Querier, line domain.OrderLine) error {
	query := `INSERT INTO order_lines (order_id, item_id, quantity, unit_price) VALUES ($1, $2, $3, $4)`
	if _, err := querier.ExecContext(ctx, query, line.OrderID, line.ItemID, line.Quantity, int64(line.UnitPrice)); err != nil {
		return fmt.Errorf("failed to insert order line %s/%s: %w", line.OrderID, line.ItemID, err)
	}
	return nil
}

func (r *pgOrderRepository) GetLines(ctx context.Context, querier domain.Querier, orderID string) ([]domain.OrderLine, error) {
	query := `SELECT order_id, item_id, quantity, unit_price FROM order_lines WHERE order_id = $1 ORDER BY item_id`
	rows, err := querier.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lines for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		var price int64
		if err := rows.Scan(&l.OrderID, &l.ItemID, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		l.UnitPrice = domain.Amount(price)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return lines, nil
}
