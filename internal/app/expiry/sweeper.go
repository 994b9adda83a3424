package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/metrics"
)

type ListingExpirer interface {
	DeactivateExpired(ctx context.Context, querier domain.Querier, now time.Time) ([]string, error)
}

type ListingEvictor interface {
	Evict(ctx context.Context, ids ...string) error
}

// Sweeper deactivates listings whose expiry has passed. Running it twice for the same instant is a no-op.
type Sweeper struct {
	db       domain.Querier
	listings ListingExpirer
	evictor  ListingEvictor
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewSweeper(db domain.Querier, listings ListingExpirer, evictor ListingEvictor, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		db:       db,
		listings: listings,
		evictor:  evictor,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Sweep deactivates every active listing that expired before now and returns how many changed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.listings.DeactivateExpired(ctx, s.db, s.now())
	if err != nil {
		s.logger.Error("Failed to deactivate expired listings", zap.Error(err))
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if s.evictor != nil {
		if err := s.evictor.Evict(ctx, ids...); err != nil {
			s.logger.Warn("Failed to evict expired listings from cache", zap.Error(err))
		}
	}
	metrics.AddListingsExpired(int64(len(ids)))
	s.logger.Info("Deactivated expired listings", zap.Int("count", len(ids)), zap.Strings("listing_ids", ids))
	return len(ids), nil
}

// Start sweeps once immediately and then on every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting expiry sweeper", zap.Duration("interval", s.interval))
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping expiry sweeper")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
