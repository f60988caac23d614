package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ParcelRepositoryImpl implements ParcelRepository
type ParcelRepositoryImpl struct {
	*BaseRepository[models.Parcel, models.ParcelFilter]
}

func NewParcelRepository(db *gorm.DB) ParcelRepository {
	return &ParcelRepositoryImpl{BaseRepository: NewBaseRepository[models.Parcel, models.ParcelFilter](db)}
}

func (r *ParcelRepositoryImpl) FindOverlapping(ctx context.Context, locationID uuid.UUID, w models.TimeWindow, excludeID *uuid.UUID) ([]*models.Parcel, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Parcel{}).
		Where("pickup_location_id = ?", locationID).
		Where("deleted_at IS NULL").
		Where("pickup_date_time_earliest < ? AND pickup_date_time_latest > ?", w.End, w.Start)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	var rows []*models.Parcel
	if err := query.Order("pickup_date_time_earliest ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find overlapping parcels: %w", err)
	}
	return rows, nil
}

func (r *ParcelRepositoryImpl) ListReminderCandidates(ctx context.Context, now, horizonEnd time.Time, intent string, limit int) ([]*models.ReminderCandidate, error) {
	db := r.getDB(ctx)
	query := db.Table("parcels AS p").
		Select("p.*, h.phone_number AS household_phone, h.locale AS household_locale, l.name AS location_name").
		Joins("JOIN households h ON h.id = p.household_id").
		Joins("JOIN pickup_locations l ON l.id = p.pickup_location_id").
		Where("p.pickup_date_time_earliest <= ?", horizonEnd).
		Where("p.pickup_date_time_latest > ?", now).
		Where("p.is_picked_up = ?", false).
		Where("p.deleted_at IS NULL").
		Where("h.anonymized_at IS NULL").
		Where("NOT EXISTS (SELECT 1 FROM outgoing_sms s WHERE s.parcel_id = p.id AND s.intent = ?)", intent).
		Order("p.pickup_date_time_earliest ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []*models.ReminderCandidate
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list reminder candidates: %w", err)
	}
	return rows, nil
}

func (r *ParcelRepositoryImpl) applyFilter(db *gorm.DB, f models.ParcelFilter) *gorm.DB {
	if !f.IncludeDeleted {
		db = db.Where("deleted_at IS NULL")
	}
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.HouseholdID != nil {
		db = db.Where("household_id = ?", *f.HouseholdID)
	}
	if f.PickupLocationID != nil {
		db = db.Where("pickup_location_id = ?", *f.PickupLocationID)
	}
	if f.ExcludeID != nil {
		db = db.Where("id <> ?", *f.ExcludeID)
	}
	if f.StartsAtOrAfter != nil {
		db = db.Where("pickup_date_time_earliest >= ?", *f.StartsAtOrAfter)
	}
	if f.StartsBefore != nil {
		db = db.Where("pickup_date_time_earliest < ?", *f.StartsBefore)
	}
	if f.WindowEndsAfter != nil {
		db = db.Where("pickup_date_time_latest > ?", *f.WindowEndsAfter)
	}
	if f.IsPickedUp != nil {
		db = db.Where("is_picked_up = ?", *f.IsPickedUp)
	}
	return db
}

func (r *ParcelRepositoryImpl) ByFilter(ctx context.Context, filter models.ParcelFilter, orderBy string, limit, offset int) ([]*models.Parcel, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Parcel{}), filter), orderBy, limit, offset)
	var rows []*models.Parcel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find parcels by filter: %w", err)
	}
	return rows, nil
}

func (r *ParcelRepositoryImpl) Count(ctx context.Context, filter models.ParcelFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Parcel{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count parcels: %w", err)
	}
	return count, nil
}

func (r *ParcelRepositoryImpl) Exists(ctx context.Context, filter models.ParcelFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
