package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"checkout/internal/domain"
)

const pgCheckViolation = "23514"

type pgListingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewListingRepository(db *sql.DB, l *zap.Logger) *pgListingRepository {
	return &pgListingRepository{db: db, logger: l}
}

const listingWithVendorColumns = `
	l.id, l.vendor_id, l.title, l.quantity_available, l.price, l.expiry_timestamp, l.is_active,
	p.verification_status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListingWithVendor(row rowScanner) (*domain.ListingWithVendor, error) {
	var (
		l      domain.ListingWithVendor
		price  int64
		status string
	)
	if err := row.Scan(&l.ID, &l.VendorID, &l.Title, &l.QuantityAvailable, &price,
		&l.ExpiryTimestamp, &l.IsActive, &status); err != nil {
		return nil, err
	}
	vs, err := domain.ParseVerificationStatus(status)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", l.ID, err)
	}
	l.Price = domain.Amount(price)
	l.VendorStatus = vs
	return &l, nil
}

func (r *pgListingRepository) GetWithVendor(ctx context.Context, id string) (*domain.ListingWithVendor, error) {
	query := `SELECT` + listingWithVendorColumns + `
		FROM food_listings l
		JOIN profiles p ON p.id = l.vendor_id
		WHERE l.id = $1`
	l, err := scanListingWithVendor(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing %s: %w", id, err)
	}
	return l, nil
}

// ListPurchasable returns active, unexpired listings with stock whose vendor may sell.
func (r *pgListingRepository) ListPurchasable(ctx context.Context, now time.Time) ([]domain.ListingWithVendor, error) {
	query := `SELECT` + listingWithVendorColumns + `
		FROM food_listings l
		JOIN profiles p ON p.id = l.vendor_id
		WHERE l.is_active = TRUE AND l.expiry_timestamp > $1 AND l.quantity_available > 0
		ORDER BY l.expiry_timestamp ASC`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.ListingWithVendor
	for rows.Next() {
		l, err := scanListingWithVendor(rows)
		if err != nil {
			r.logger.Warn("Skipping listing with unreadable row", zap.Error(err))
			continue
		}
		if !l.VendorStatus.CanSell() {
			continue
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *pgListingRepository) DecrementTx(ctx context.Context, querier domain.Querier, id string, qty int) (domain.Amount, error) {
	if qty < 1 {
		return 0, fmt.Errorf("invalid quantity %d for listing %s", qty, id)
	}
	query := `
		UPDATE food_listings
		SET quantity_available = quantity_available - $1
		WHERE id = $2 AND quantity_available >= $1
		RETURNING price
	`
	var price int64
	err := querier.QueryRowContext(ctx, query, qty, id).Scan(&price)
	if err == nil {
		return domain.Amount(price), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return 0, domain.ErrInsufficientStock
		}
		return 0, fmt.Errorf("failed to decrement listing %s: %w", id, err)
	}

	var exists bool
	if err := querier.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM food_listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check listing %s: %w", id, err)
	}
	if !exists {
		return 0, domain.ErrListingNotFound
	}
	return 0, domain.ErrInsufficientStock
}

func (r *pgListingRepository) DeactivateExpired(ctx context.Context, querier domain.Querier, now time.Time) ([]string, error) {
	query := `
		UPDATE food_listings
		SET is_active = FALSE
		WHERE is_active = TRUE AND expiry_timestamp < $1
		RETURNING id
	`
	rows, err := querier.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate expired listings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired listing id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}
