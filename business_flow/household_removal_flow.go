package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/amirphl/food-parcel/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Removal result codes
const (
	CodeHasUpcomingParcels = "HAS_UPCOMING_PARCELS"
	CodeAlreadyAnonymized  = "ALREADY_ANONYMIZED"
	CodeHouseholdNotFound  = "HOUSEHOLD_NOT_FOUND"
)

// RemovalMethod is how a household was removed
type RemovalMethod string

const (
	RemovalMethodDeleted    RemovalMethod = "deleted"
	RemovalMethodAnonymized RemovalMethod = "anonymized"
)

// RemovalCheck reports whether a household may be removed now
type RemovalCheck struct {
	Allowed             bool  `json:"allowed"`
	UpcomingParcelCount int64 `json:"upcoming_parcel_count"`
	AlreadyAnonymized   bool  `json:"already_anonymized"`
}

type RemovalResult struct {
	HouseholdID uuid.UUID     `json:"household_id"`
	Method      RemovalMethod `json:"method"`
}

// AnonymizationBatchResult summarizes one automatic anonymization run
type AnonymizationBatchResult struct {
	Anonymized int      `json:"anonymized"`
	Deleted    int      `json:"deleted"`
	Eligible   int      `json:"eligible"`
	Errors     []string `json:"errors"`
}

// HouseholdRemovalFlow decides between hard delete and anonymization and runs it atomically
type HouseholdRemovalFlow interface {
	CanRemoveHousehold(ctx context.Context, householdID uuid.UUID) (*RemovalCheck, error)
	RemoveHousehold(ctx context.Context, householdID uuid.UUID, performedBy string) (*RemovalResult, error)
	FindHouseholdsForAutomaticAnonymization(ctx context.Context, inactive time.Duration) ([]*models.Household, error)
	// AnonymizeInactiveHouseholds uses utils.DefaultInactivityDuration when inactive is zero.
	AnonymizeInactiveHouseholds(ctx context.Context, inactive time.Duration) (*AnonymizationBatchResult, error)
}

type HouseholdRemovalFlowImpl struct {
	householdRepo repository.HouseholdRepository
	parcelRepo    repository.ParcelRepository
	smsRepo       repository.OutgoingSMSRepository
	auditRepo     repository.AuditLogRepository
	transactor    repository.Transactor
	timeProvider  *utils.TimeProvider
	logger        zerolog.Logger
}

func NewHouseholdRemovalFlow(
	householdRepo repository.HouseholdRepository,
	parcelRepo repository.ParcelRepository,
	smsRepo repository.OutgoingSMSRepository,
	auditRepo repository.AuditLogRepository,
	transactor repository.Transactor,
	timeProvider *utils.TimeProvider,
	logger zerolog.Logger,
) HouseholdRemovalFlow {
	return &HouseholdRemovalFlowImpl{
		householdRepo: householdRepo,
		parcelRepo:    parcelRepo,
		smsRepo:       smsRepo,
		auditRepo:     auditRepo,
		transactor:    transactor,
		timeProvider:  timeProvider,
		logger:        logger.With().Str("component", "household_removal").Logger(),
	}
}

func (f *HouseholdRemovalFlowImpl) CanRemoveHousehold(ctx context.Context, householdID uuid.UUID) (*RemovalCheck, error) {
	household, err := f.householdRepo.ByID(ctx, householdID)
	if err != nil {
		return nil, NewBusinessError("HOUSEHOLD_LOOKUP_FAILED", "Failed to load household", err)
	}
	if household == nil {
		return nil, NewBusinessError(CodeHouseholdNotFound, "Household not found", ErrHouseholdNotFound)
	}

	upcoming, err := f.countUpcoming(ctx, householdID)
	if err != nil {
		return nil, NewBusinessError("UPCOMING_PARCEL_CHECK_FAILED", "Failed to check upcoming parcels", err)
	}

	return &RemovalCheck{
		Allowed:             upcoming == 0,
		UpcomingParcelCount: upcoming,
		AlreadyAnonymized:   household.IsAnonymized(),
	}, nil
}

// countUpcoming counts non-deleted parcels starting on or after local midnight
// today. A parcel earlier today still counts even if its window has closed.
func (f *HouseholdRemovalFlowImpl) countUpcoming(ctx context.Context, householdID uuid.UUID) (int64, error) {
	return f.countBlocking(ctx, householdID, startingFrom(f.timeProvider.StartOfDay(f.timeProvider.Now())))
}

// startingFrom blocks on parcels whose window starts at or after t
func startingFrom(t time.Time) models.ParcelFilter {
	return models.ParcelFilter{StartsAtOrAfter: &t}
}

// openAfter blocks on parcels whose window has not closed by t, including one in progress
func openAfter(t time.Time) models.ParcelFilter {
	return models.ParcelFilter{WindowEndsAfter: &t}
}

func (f *HouseholdRemovalFlowImpl) countBlocking(ctx context.Context, householdID uuid.UUID, blocking models.ParcelFilter) (int64, error) {
	blocking.HouseholdID = &householdID
	return f.parcelRepo.Count(ctx, blocking)
}

func (f *HouseholdRemovalFlowImpl) RemoveHousehold(ctx context.Context, householdID uuid.UUID, performedBy string) (*RemovalResult, error) {
	return f.remove(ctx, householdID, performedBy, startingFrom(f.timeProvider.StartOfDay(f.timeProvider.Now())))
}

// remove refuses while any non-deleted parcel matches blocking.
func (f *HouseholdRemovalFlowImpl) remove(ctx context.Context, householdID uuid.UUID, performedBy string, blocking models.ParcelFilter) (*RemovalResult, error) {
	performedBy = strings.TrimSpace(performedBy)
	if performedBy == "" {
		return nil, NewBusinessError("PERFORMED_BY_REQUIRED", "Acting user is required", ErrPerformedByRequired)
	}

	result := &RemovalResult{HouseholdID: householdID}
	err := f.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		// the row lock makes a concurrent second removal wait and then observe anonymized_at
		household, err := f.householdRepo.ByIDForUpdate(txCtx, householdID)
		if err != nil {
			return err
		}
		if household == nil {
			return NewBusinessError(CodeHouseholdNotFound, "Household not found", ErrHouseholdNotFound)
		}
		if household.IsAnonymized() {
			return NewBusinessError(CodeAlreadyAnonymized, "Household is already anonymized", ErrAlreadyAnonymized)
		}

		upcoming, err := f.countBlocking(txCtx, householdID, blocking)
		if err != nil {
			return err
		}
		if upcoming > 0 {
			return NewBusinessErrorf(CodeHasUpcomingParcels, "Household has %d upcoming parcel(s)", ErrHasUpcomingParcels, upcoming)
		}

		total, err := f.parcelRepo.Count(txCtx, models.ParcelFilter{HouseholdID: &householdID, IncludeDeleted: true})
		if err != nil {
			return err
		}
		if total == 0 {
			result.Method = RemovalMethodDeleted
			return f.householdRepo.HardDelete(txCtx, householdID)
		}

		result.Method = RemovalMethodAnonymized
		return f.anonymize(txCtx, householdID, performedBy)
	})
	if err != nil {
		if BusinessErrorCode(err) == "" {
			err = NewBusinessError("HOUSEHOLD_REMOVAL_FAILED", "Failed to remove household", err)
		}
		return nil, err
	}

	action := models.AuditActionHouseholdAnonymized
	if result.Method == RemovalMethodDeleted {
		action = models.AuditActionHouseholdDeleted
	}
	writeAudit(ctx, f.auditRepo, f.logger, &models.AuditLog{
		Action:    action,
		Actor:     performedBy,
		SubjectID: &householdID,
	}, map[string]any{"method": string(result.Method)})

	f.logger.Info().
		Str("household_id", householdID.String()).
		Str("method", string(result.Method)).
		Str("performed_by", performedBy).
		Msg("household removed")

	return result, nil
}

// anonymize overwrites PII and drops comments and SMS history. Parcels,
// members, pets, dietary restrictions, postal code and locale are kept.
func (f *HouseholdRemovalFlowImpl) anonymize(ctx context.Context, householdID uuid.UUID, performedBy string) error {
	if err := f.householdRepo.LockPhoneSequence(ctx); err != nil {
		return err
	}
	seq, err := f.householdRepo.MaxAnonymizedPhoneSequence(ctx)
	if err != nil {
		return err
	}
	if _, err := f.householdRepo.DeleteComments(ctx, householdID); err != nil {
		return err
	}
	if _, err := f.smsRepo.DeleteByHousehold(ctx, householdID); err != nil {
		return err
	}
	return f.householdRepo.Anonymize(ctx, householdID, AnonymizedPhoneNumber(seq+1), performedBy, utils.UTCNow())
}

// AnonymizedPhoneNumber renders the placeholder phone for sequence n
func AnonymizedPhoneNumber(n int64) string {
	return fmt.Sprintf("%s%0*d", utils.AnonymizedPhonePrefix, utils.AnonymizedPhoneDigits, n)
}

func (f *HouseholdRemovalFlowImpl) FindHouseholdsForAutomaticAnonymization(ctx context.Context, inactive time.Duration) ([]*models.Household, error) {
	if inactive <= 0 {
		return nil, NewBusinessError("INVALID_INACTIVE_DURATION", "Inactive duration must be positive", ErrInvalidInactiveWindow)
	}

	now := f.timeProvider.Now()
	// plain duration subtraction; no calendar month arithmetic
	cutoff := now.Add(-inactive)
	candidates, err := f.householdRepo.ListInactiveSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	eligible := make([]*models.Household, 0, len(candidates))
	// inactive households are re-checked against parcels whose window is still open or ahead
	for _, c := range candidates {
		upcoming, err := f.countBlocking(ctx, c.ID, openAfter(now))
		if err != nil {
			return nil, err
		}
		if upcoming > 0 {
			f.logger.Debug().Str("household_id", c.ID.String()).Msg("skipping inactive household with upcoming parcels")
			continue
		}
		h := c.Household
		eligible = append(eligible, &h)
	}
	return eligible, nil
}

func (f *HouseholdRemovalFlowImpl) AnonymizeInactiveHouseholds(ctx context.Context, inactive time.Duration) (*AnonymizationBatchResult, error) {
	if inactive == 0 {
		inactive = utils.DefaultInactivityDuration
	}

	result := &AnonymizationBatchResult{Errors: []string{}}
	acquired, err := f.transactor.WithAdvisoryLock(ctx, repository.LockAnonymizationBatch, func(lockCtx context.Context) error {
		households, err := f.FindHouseholdsForAutomaticAnonymization(lockCtx, inactive)
		if err != nil {
			return err
		}
		result.Eligible = len(households)

		for _, h := range households {
			removed, err := f.remove(lockCtx, h.ID, SystemActor, openAfter(f.timeProvider.Now()))
			if err != nil {
				f.logger.Warn().Err(err).Str("household_id", h.ID.String()).Msg("automatic anonymization failed for household")
				result.Errors = append(result.Errors, fmt.Sprintf("household %s: %v", h.ID, err))
				continue
			}
			switch removed.Method {
			case RemovalMethodAnonymized:
				result.Anonymized++
			case RemovalMethodDeleted:
				result.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	if !acquired {
		f.logger.Info().Msg("anonymization batch already running elsewhere, skipping")
		return result, NewBusinessError("ANONYMIZATION_LOCKED", "Anonymization batch is already running", ErrAnonymizationLocked)
	}

	writeAudit(ctx, f.auditRepo, f.logger, &models.AuditLog{
		Action:  models.AuditActionAnonymizationBatch,
		Actor:   SystemActor,
		Success: utils.ToPtr(len(result.Errors) == 0),
	}, map[string]any{
		"inactive_ms": inactive.Milliseconds(),
		"eligible":    result.Eligible,
		"anonymized":  result.Anonymized,
		"deleted":     result.Deleted,
		"errors":      len(result.Errors),
	})

	f.logger.Info().
		Int64("inactive_ms", inactive.Milliseconds()).
		Int("eligible", result.Eligible).
		Int("anonymized", result.Anonymized).
		Int("deleted", result.Deleted).
		Int("errors", len(result.Errors)).
		Msg("anonymization batch finished")

	return result, nil
}
