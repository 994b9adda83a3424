package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"checkout/internal/domain"
)

type stubSweeper struct {
	runs int
	err  error
}

func (s *stubSweeper) Sweep(context.Context) (int, error) {
	s.runs++
	return 0, s.err
}

type stubReader struct {
	listings []domain.ListingWithVendor
}

func (r stubReader) GetWithVendor(context.Context, string) (*domain.ListingWithVendor, error) {
	return nil, domain.ErrListingNotFound
}

func (r stubReader) ListPurchasable(context.Context, time.Time) ([]domain.ListingWithVendor, error) {
	return r.listings, nil
}

func listing(id string, vendor domain.VerificationStatus, expiresIn time.Duration) domain.ListingWithVendor {
	return domain.ListingWithVendor{
		FoodListing: domain.FoodListing{
			ID: id, QuantityAvailable: 1, Price: 1000, IsActive: true,
			ExpiryTimestamp: time.Now().Add(expiresIn),
		},
		VendorStatus: vendor,
	}
}

func TestList_SweepsThenFilters(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("db busy")}
	reader := stubReader{listings: []domain.ListingWithVendor{
		listing("fresh", domain.VerificationVerified, time.Hour),
		listing("suspended-vendor", domain.VerificationSuspended, time.Hour),
		listing("expired", domain.VerificationVerified, -time.Minute),
	}}
	s := NewService(reader, sweeper, zaptest.NewLogger(t))

	out, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sweeper.runs)
	require.Len(t, out, 1)
	assert.Equal(t, "fresh", out[0].ID)
}
