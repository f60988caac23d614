package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HouseholdRepositoryImpl implements HouseholdRepository
type HouseholdRepositoryImpl struct {
	*BaseRepository[models.Household, models.HouseholdFilter]
}

func NewHouseholdRepository(db *gorm.DB) HouseholdRepository {
	return &HouseholdRepositoryImpl{BaseRepository: NewBaseRepository[models.Household, models.HouseholdFilter](db)}
}

func (r *HouseholdRepositoryImpl) ByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Household, error) {
	db := r.getDB(ctx)
	var row models.Household
	err := db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock household %s: %w", id, err)
	}
	return &row, nil
}

func (r *HouseholdRepositoryImpl) HardDelete(ctx context.Context, id uuid.UUID) error {
	return WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		db := r.getDB(txCtx)
		owned := []any{
			&models.HouseholdComment{},
			&models.HouseholdMember{},
			&models.HouseholdPet{},
			&models.HouseholdDietaryRestriction{},
			&models.OutgoingSMS{},
			&models.Parcel{},
		}
		for _, m := range owned {
			if err := db.Where("household_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("failed to delete owned rows of household %s: %w", id, err)
			}
		}
		res := db.Where("id = ?", id).Delete(&models.Household{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete household %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *HouseholdRepositoryImpl) Anonymize(ctx context.Context, id uuid.UUID, phonePlaceholder, performedBy string, at time.Time) error {
	db := r.getDB(ctx)
	res := db.Model(&models.Household{}).
		Where("id = ? AND anonymized_at IS NULL", id).
		Updates(map[string]any{
			"first_name":    utils.AnonymizedFirstName,
			"last_name":     utils.AnonymizedLastName,
			"phone_number":  phonePlaceholder,
			"anonymized_at": at,
			"anonymized_by": performedBy,
			"updated_at":    at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to anonymize household %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *HouseholdRepositoryImpl) DeleteComments(ctx context.Context, householdID uuid.UUID) (int64, error) {
	db := r.getDB(ctx)
	res := db.Where("household_id = ?", householdID).Delete(&models.HouseholdComment{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete comments of household %s: %w", householdID, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *HouseholdRepositoryImpl) LockPhoneSequence(ctx context.Context) error {
	id, err := LockAnonymizedPhoneSerial.ID()
	if err != nil {
		return err
	}
	if err := r.getDB(ctx).Exec("SELECT pg_advisory_xact_lock(?)", id).Error; err != nil {
		return fmt.Errorf("failed to lock anonymized phone sequence: %w", err)
	}
	return nil
}

func (r *HouseholdRepositoryImpl) MaxAnonymizedPhoneSequence(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)
	prefixLen := len(utils.AnonymizedPhonePrefix)
	var max int64
	err := db.Model(&models.Household{}).
		Select("COALESCE(MAX(CAST(SUBSTRING(phone_number FROM ?) AS BIGINT)), 0)", prefixLen+1).
		Where("anonymized_at IS NOT NULL AND phone_number ~ ?", "^\\"+utils.AnonymizedPhonePrefix+"[0-9]+$").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read anonymized phone sequence: %w", err)
	}
	return max, nil
}

func (r *HouseholdRepositoryImpl) ListInactiveSince(ctx context.Context, cutoff time.Time) ([]*models.InactiveHousehold, error) {
	db := r.getDB(ctx)
	var rows []*models.InactiveHousehold
	err := db.Table("households AS h").
		Select("h.*, COALESCE(MAX(p.pickup_date_time_earliest), h.created_at) AS last_parcel_at").
		Joins("LEFT JOIN parcels p ON p.household_id = h.id").
		Where("h.anonymized_at IS NULL").
		Group("h.id").
		Having("COALESCE(MAX(p.pickup_date_time_earliest), h.created_at) < ?", cutoff).
		Order("last_parcel_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list inactive households: %w", err)
	}
	return rows, nil
}

func (r *HouseholdRepositoryImpl) SaveComment(ctx context.Context, comment *models.HouseholdComment) error {
	db := r.getDB(ctx)
	if err := db.Create(comment).Error; err != nil {
		return fmt.Errorf("failed to save household comment: %w", err)
	}
	return nil
}

func (r *HouseholdRepositoryImpl) applyFilter(db *gorm.DB, f models.HouseholdFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.PhoneNumber != nil {
		db = db.Where("phone_number = ?", *f.PhoneNumber)
	}
	if f.IsAnonymized != nil {
		if *f.IsAnonymized {
			db = db.Where("anonymized_at IS NOT NULL")
		} else {
			db = db.Where("anonymized_at IS NULL")
		}
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *HouseholdRepositoryImpl) ByFilter(ctx context.Context, filter models.HouseholdFilter, orderBy string, limit, offset int) ([]*models.Household, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Household{}), filter), orderBy, limit, offset)
	var rows []*models.Household
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find households by filter: %w", err)
	}
	return rows, nil
}

func (r *HouseholdRepositoryImpl) Count(ctx context.Context, filter models.HouseholdFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Household{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count households: %w", err)
	}
	return count, nil
}

func (r *HouseholdRepositoryImpl) Exists(ctx context.Context, filter models.HouseholdFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
