package listing_repo

import (
	"context"
	"time"

	"checkout/internal/domain"
)

type ListingReader interface {
	GetWithVendor(ctx context.Context, id string) (*domain.ListingWithVendor, error)
	ListPurchasable(ctx context.Context, now time.Time) ([]domain.ListingWithVendor, error)
}

type ListingRepository interface {
	ListingReader
	// DecrementTx takes qty off the listing only if that much is available and returns the
	// listing's current price. domain.ErrInsufficientStock is returned otherwise.
	DecrementTx(ctx context.Context, querier domain.Querier, id string, qty int) (domain.Amount, error)
	DeactivateExpired(ctx context.Context, querier domain.Querier, now time.Time) ([]string, error)
}
