package listings

import (
	"context"
	"time"

	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/repository/listing_repo"
)

type ExpirySweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Service struct {
	reader  listing_repo.ListingReader
	sweeper ExpirySweeper
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(reader listing_repo.ListingReader, sweeper ExpirySweeper, logger *zap.Logger) *Service {
	return &Service{reader: reader, sweeper: sweeper, now: time.Now, logger: logger}
}

// List returns listings a buyer can put in a cart right now. Expired listings are swept first
// so the page never shows stale food; a failed sweep is logged and the read still happens.
func (s *Service) List(ctx context.Context) ([]domain.ListingWithVendor, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Warn("Eager expiry sweep failed", zap.Error(err))
	}

	now := s.now()
	all, err := s.reader.ListPurchasable(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ListingWithVendor, 0, len(all))
	for i := range all {
		if all[i].Purchasable(now) == nil {
			out = append(out, all[i])
		}
	}
	return out, nil
}
