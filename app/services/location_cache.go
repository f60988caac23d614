package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LocationCache serves pickup locations from redis, falling back to the
// repository. A nil client disables caching. Missing locations are not cached.
type LocationCache struct {
	repo   repository.PickupLocationRepository
	rc     *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewLocationCache(repo repository.PickupLocationRepository, rc *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *LocationCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LocationCache{
		repo:   repo,
		rc:     rc,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "location_cache").Logger(),
	}
}

func (c *LocationCache) key(id uuid.UUID) string {
	return c.prefix + "pickup_location:" + id.String()
}

func (c *LocationCache) ByID(ctx context.Context, id uuid.UUID) (*models.PickupLocation, error) {
	if c.rc == nil {
		return c.repo.ByID(ctx, id)
	}

	bs, err := c.rc.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var loc models.PickupLocation
		if uerr := json.Unmarshal(bs, &loc); uerr == nil {
			return &loc, nil
		}
		c.logger.Warn().Str("location_id", id.String()).Msg("discarding undecodable cached location")
	case !errors.Is(err, redis.Nil):
		// cache outage must not block validation
		c.logger.Warn().Err(err).Str("location_id", id.String()).Msg("location cache read failed")
	}

	loc, err := c.repo.ByID(ctx, id)
	if err != nil || loc == nil {
		return loc, err
	}
	if bs, merr := json.Marshal(loc); merr == nil {
		if serr := c.rc.Set(ctx, c.key(id), bs, c.ttl).Err(); serr != nil {
			c.logger.Warn().Err(serr).Str("location_id", id.String()).Msg("location cache write failed")
		}
	}
	return loc, nil
}

// Invalidate drops a cached location after it changes
func (c *LocationCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c.rc == nil {
		return nil
	}
	return c.rc.Del(ctx, c.key(id)).Err()
}
