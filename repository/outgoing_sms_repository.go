package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutgoingSMSRepositoryImpl implements OutgoingSMSRepository
type OutgoingSMSRepositoryImpl struct {
	*BaseRepository[models.OutgoingSMS, models.OutgoingSMSFilter]
}

func NewOutgoingSMSRepository(db *gorm.DB) OutgoingSMSRepository {
	return &OutgoingSMSRepositoryImpl{BaseRepository: NewBaseRepository[models.OutgoingSMS, models.OutgoingSMSFilter](db)}
}

// Save inserts the record. A unique violation on the idempotency key is
// reported as ErrDuplicateIdempotencyKey. The database must be opened with
// gorm.Config.TranslateError.
func (r *OutgoingSMSRepositoryImpl) Save(ctx context.Context, entity *models.OutgoingSMS) error {
	db := r.getDB(ctx)
	if err := db.Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to save outgoing sms: %w", err)
	}
	return nil
}

func (r *OutgoingSMSRepositoryImpl) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID *string, at time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.OutgoingSMS{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              models.SMSStatusSent,
			"provider_message_id": providerMessageID,
			"sent_at":             at,
			"attempts":            gorm.Expr("attempts + 1"),
			"updated_at":          at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark sms %s sent: %w", id, err)
	}
	return nil
}

func (r *OutgoingSMSRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	db := r.getDB(ctx)
	err := db.Model(&models.OutgoingSMS{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.SMSStatusFailed,
			"last_error": reason,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark sms %s failed: %w", id, err)
	}
	return nil
}

func (r *OutgoingSMSRepositoryImpl) RecoverStale(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.OutgoingSMS{}).
		Where("status = ? AND created_at < ?", models.SMSStatusSending, olderThan).
		Updates(map[string]any{
			"status":     models.SMSStatusFailed,
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover stale sms records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *OutgoingSMSRepositoryImpl) DeleteByHousehold(ctx context.Context, householdID uuid.UUID) (int64, error) {
	db := r.getDB(ctx)
	res := db.Where("household_id = ?", householdID).Delete(&models.OutgoingSMS{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete sms records of household %s: %w", householdID, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *OutgoingSMSRepositoryImpl) CountByStatus(ctx context.Context, since *time.Time) ([]*models.SMSStatusCount, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.OutgoingSMS{}).Select("status, COUNT(*) AS count")
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	var rows []*models.SMSStatusCount
	if err := query.Group("status").Order("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count sms by status: %w", err)
	}
	return rows, nil
}

func (r *OutgoingSMSRepositoryImpl) applyFilter(db *gorm.DB, f models.OutgoingSMSFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ParcelID != nil {
		db = db.Where("parcel_id = ?", *f.ParcelID)
	}
	if f.HouseholdID != nil {
		db = db.Where("household_id = ?", *f.HouseholdID)
	}
	if f.Intent != nil {
		db = db.Where("intent = ?", *f.Intent)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.IdempotencyKey != nil {
		db = db.Where("idempotency_key = ?", *f.IdempotencyKey)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *OutgoingSMSRepositoryImpl) ByFilter(ctx context.Context, filter models.OutgoingSMSFilter, orderBy string, limit, offset int) ([]*models.OutgoingSMS, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.OutgoingSMS{}), filter), orderBy, limit, offset)
	var rows []*models.OutgoingSMS
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find sms records by filter: %w", err)
	}
	return rows, nil
}

func (r *OutgoingSMSRepositoryImpl) Count(ctx context.Context, filter models.OutgoingSMSFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.OutgoingSMS{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sms records: %w", err)
	}
	return count, nil
}

func (r *OutgoingSMSRepositoryImpl) Exists(ctx context.Context, filter models.OutgoingSMSFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
