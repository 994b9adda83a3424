package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/repository/listing_repo"
)

const listingKeyPrefix = "listing:"

// CachedListingReader reads single listings through Redis. Cache failures fall back to the store.
type CachedListingReader struct {
	next   listing_repo.ListingReader
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedListingReader(next listing_repo.ListingReader, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedListingReader {
	return &CachedListingReader{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func listingKey(id string) string {
	return listingKeyPrefix + id
}

func (c *CachedListingReader) GetWithVendor(ctx context.Context, id string) (*domain.ListingWithVendor, error) {
	data, err := c.rdb.Get(ctx, listingKey(id)).Bytes()
	if err == nil {
		var l domain.ListingWithVendor
		if err := json.Unmarshal(data, &l); err == nil {
			return &l, nil
		}
		c.logger.Warn("Discarding unreadable cached listing", zap.String("listing_id", id))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Listing cache read failed", zap.String("listing_id", id), zap.Error(err))
	}

	l, err := c.next.GetWithVendor(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(l); err == nil {
		if err := c.rdb.Set(ctx, listingKey(id), data, c.ttl).Err(); err != nil {
			c.logger.Warn("Listing cache write failed", zap.String("listing_id", id), zap.Error(err))
		}
	}
	return l, nil
}

func (c *CachedListingReader) ListPurchasable(ctx context.Context, now time.Time) ([]domain.ListingWithVendor, error) {
	return c.next.ListPurchasable(ctx, now)
}

// Evict drops cached entries for ids after their stock or status changed.
func (c *CachedListingReader) Evict(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = listingKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to evict %d cached listings: %w", len(ids), err)
	}
	return nil
}
