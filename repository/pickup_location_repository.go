package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/food-parcel/models"
	"gorm.io/gorm"
)

// PickupLocationRepositoryImpl implements PickupLocationRepository
type PickupLocationRepositoryImpl struct {
	*BaseRepository[models.PickupLocation, models.PickupLocationFilter]
}

func NewPickupLocationRepository(db *gorm.DB) PickupLocationRepository {
	return &PickupLocationRepositoryImpl{BaseRepository: NewBaseRepository[models.PickupLocation, models.PickupLocationFilter](db)}
}

func (r *PickupLocationRepositoryImpl) applyFilter(db *gorm.DB, f models.PickupLocationFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	return db
}

func (r *PickupLocationRepositoryImpl) ByFilter(ctx context.Context, filter models.PickupLocationFilter, orderBy string, limit, offset int) ([]*models.PickupLocation, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.PickupLocation{}), filter), orderBy, limit, offset)
	var rows []*models.PickupLocation
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find pickup locations by filter: %w", err)
	}
	return rows, nil
}

func (r *PickupLocationRepositoryImpl) Count(ctx context.Context, filter models.PickupLocationFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.PickupLocation{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pickup locations: %w", err)
	}
	return count, nil
}

func (r *PickupLocationRepositoryImpl) Exists(ctx context.Context, filter models.PickupLocationFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
