// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrDuplicateIdempotencyKey is returned when an outgoing SMS with the same
// idempotency key already exists.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uuid.UUID) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// Transactor runs work atomically or under a cross-process advisory lock
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
	// WithAdvisoryLock runs fn only if the lock could be acquired without
	// waiting. acquired is false when another session holds it.
	WithAdvisoryLock(ctx context.Context, lock AdvisoryLock, fn func(context.Context) error) (acquired bool, err error)
}

// HouseholdRepository defines operations for households and the rows they own
type HouseholdRepository interface {
	Repository[models.Household, models.HouseholdFilter]
	// ByIDForUpdate reads the row with SELECT ... FOR UPDATE; only meaningful inside a transaction.
	ByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Household, error)
	// HardDelete removes the household and every row it owns.
	HardDelete(ctx context.Context, id uuid.UUID) error
	Anonymize(ctx context.Context, id uuid.UUID, phonePlaceholder, performedBy string, at time.Time) error
	DeleteComments(ctx context.Context, householdID uuid.UUID) (int64, error)
	// LockPhoneSequence takes a transaction-scoped lock serializing placeholder allocation.
	LockPhoneSequence(ctx context.Context) error
	// MaxAnonymizedPhoneSequence returns the highest sequence already used in placeholder phone numbers, or 0.
	MaxAnonymizedPhoneSequence(ctx context.Context) (int64, error)
	// ListInactiveSince returns non-anonymized households whose last parcel
	// (or enrollment, when they never had one) started before cutoff.
	ListInactiveSince(ctx context.Context, cutoff time.Time) ([]*models.InactiveHousehold, error)
	SaveComment(ctx context.Context, comment *models.HouseholdComment) error
}

// ParcelRepository defines operations for parcels
type ParcelRepository interface {
	Repository[models.Parcel, models.ParcelFilter]
	// FindOverlapping returns non-deleted parcels at the location whose window overlaps w.
	FindOverlapping(ctx context.Context, locationID uuid.UUID, w models.TimeWindow, excludeID *uuid.UUID) ([]*models.Parcel, error)
	// ListReminderCandidates returns parcels starting before horizonEnd whose window has not closed at now,
	// not picked up, not deleted, whose household is not anonymized and that have no SMS of intent yet.
	ListReminderCandidates(ctx context.Context, now, horizonEnd time.Time, intent string, limit int) ([]*models.ReminderCandidate, error)
}

// PickupLocationRepository defines operations for pickup locations
type PickupLocationRepository interface {
	Repository[models.PickupLocation, models.PickupLocationFilter]
}

// OutgoingSMSRepository defines operations for outgoing SMS records
type OutgoingSMSRepository interface {
	Repository[models.OutgoingSMS, models.OutgoingSMSFilter]
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID *string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// RecoverStale moves sending records created before olderThan to failed.
	RecoverStale(ctx context.Context, olderThan time.Time, reason string) (int64, error)
	DeleteByHousehold(ctx context.Context, householdID uuid.UUID) (int64, error)
	CountByStatus(ctx context.Context, since *time.Time) ([]*models.SMSStatusCount, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}
