package services

import (
	"context"
	"testing"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLocationRepo struct {
	repository.PickupLocationRepository
	rows  map[uuid.UUID]*models.PickupLocation
	reads int
}

func (r *countingLocationRepo) ByID(ctx context.Context, id uuid.UUID) (*models.PickupLocation, error) {
	r.reads++
	return r.rows[id], nil
}

func TestLocationCacheWithoutRedisReadsThrough(t *testing.T) {
	id := uuid.New()
	repo := &countingLocationRepo{rows: map[uuid.UUID]*models.PickupLocation{id: {ID: id, Name: "Central"}}}
	cache := NewLocationCache(repo, nil, "test:", 0, zerolog.Nop())

	loc, err := cache.ByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Central", loc.Name)

	_, err = cache.ByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.reads)

	missing, err := cache.ByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.NoError(t, cache.Invalidate(context.Background(), id))
	assert.Equal(t, "test:pickup_location:"+id.String(), cache.key(id))
}
