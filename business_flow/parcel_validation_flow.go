package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/amirphl/food-parcel/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Validation error codes
const (
	CodeParcelNotFound          = "PARCEL_NOT_FOUND"
	CodeHouseholdIDRequired     = "HOUSEHOLD_ID_REQUIRED"
	CodeLocationNotFound        = "LOCATION_NOT_FOUND"
	CodeInvalidTimeWindow       = "INVALID_TIME_WINDOW"
	CodePastTimeSlot            = "PAST_TIME_SLOT"
	CodeMaxDailyCapacityReached = "MAX_DAILY_CAPACITY_REACHED"
	CodeHouseholdDoubleBooking  = "HOUSEHOLD_DOUBLE_BOOKING"
	CodeMaxSlotCapacityReached  = "MAX_SLOT_CAPACITY_REACHED"
	CodeValidationError         = "VALIDATION_ERROR"
)

// ParcelAssignment is a candidate booking to validate against persisted state
type ParcelAssignment struct {
	ParcelID         uuid.UUID
	IsNewParcel      bool
	HouseholdID      *uuid.UUID
	PickupLocationID uuid.UUID
	Window           models.TimeWindow
	// Date selects the civil day used for daily limits; zero means the day of Window.Start.
	Date time.Time
}

// ValidationError is a single rule violation
type ValidationError struct {
	Field   string         `json:"field"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ValidationResult is successful iff Errors is empty
type ValidationResult struct {
	Success bool              `json:"success"`
	Errors  []ValidationError `json:"errors"`
}

func (r *ValidationResult) add(e ValidationError) {
	r.Errors = append(r.Errors, e)
	r.Success = false
}

// LocationReader loads pickup locations; implemented by the repository and by the location cache
type LocationReader interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.PickupLocation, error)
}

// ParcelValidationFlow checks parcel assignments before they are persisted
type ParcelValidationFlow interface {
	Validate(ctx context.Context, a ParcelAssignment) (*ValidationResult, error)
	ValidateBulk(ctx context.Context, assignments []ParcelAssignment) (*ValidationResult, error)
}

type ParcelValidationFlowImpl struct {
	parcelRepo        repository.ParcelRepository
	locations         LocationReader
	timeProvider      *utils.TimeProvider
	defaultMaxPerSlot int
	logger            zerolog.Logger
}

func NewParcelValidationFlow(
	parcelRepo repository.ParcelRepository,
	locations LocationReader,
	timeProvider *utils.TimeProvider,
	defaultMaxPerSlot int,
	logger zerolog.Logger,
) ParcelValidationFlow {
	if defaultMaxPerSlot <= 0 {
		defaultMaxPerSlot = utils.DefaultMaxParcelsPerSlot
	}
	return &ParcelValidationFlowImpl{
		parcelRepo:        parcelRepo,
		locations:         locations,
		timeProvider:      timeProvider,
		defaultMaxPerSlot: defaultMaxPerSlot,
		logger:            logger.With().Str("component", "parcel_validation").Logger(),
	}
}

// Validate runs the checks in order. Existence, location and window checks
// short-circuit; the remaining checks are all evaluated and collected.
func (f *ParcelValidationFlowImpl) Validate(ctx context.Context, a ParcelAssignment) (*ValidationResult, error) {
	result := &ValidationResult{Success: true, Errors: []ValidationError{}}

	var excludeID *uuid.UUID
	var householdID uuid.UUID
	if a.IsNewParcel {
		if a.HouseholdID == nil || *a.HouseholdID == uuid.Nil {
			result.add(ValidationError{
				Field:   "householdId",
				Code:    CodeHouseholdIDRequired,
				Message: "A household is required when creating a parcel",
			})
			return result, nil
		}
		householdID = *a.HouseholdID
	} else {
		parcel, err := f.parcelRepo.ByID(ctx, a.ParcelID)
		if err != nil {
			return f.infrastructureFailure(a, err)
		}
		if parcel == nil || parcel.IsDeleted() {
			result.add(ValidationError{
				Field:   "parcelId",
				Code:    CodeParcelNotFound,
				Message: "Parcel not found",
				Details: map[string]any{"parcelId": a.ParcelID.String()},
			})
			return result, nil
		}
		householdID = parcel.HouseholdID
		excludeID = &parcel.ID
	}

	location, err := f.locations.ByID(ctx, a.PickupLocationID)
	if err != nil {
		return f.infrastructureFailure(a, err)
	}
	if location == nil {
		result.add(ValidationError{
			Field:   "pickupLocationId",
			Code:    CodeLocationNotFound,
			Message: "Pickup location not found",
			Details: map[string]any{"locationId": a.PickupLocationID.String()},
		})
		return result, nil
	}

	if a.Window.Start.After(a.Window.End) {
		result.add(ValidationError{
			Field:   "timeWindow",
			Code:    CodeInvalidTimeWindow,
			Message: "Pickup window must start before it ends",
			Details: map[string]any{
				"start": a.Window.Start.UTC().Format(time.RFC3339),
				"end":   a.Window.End.UTC().Format(time.RFC3339),
			},
		})
		return result, nil
	}

	now := f.timeProvider.Now()
	if a.IsNewParcel && !a.Window.Start.After(now) {
		result.add(ValidationError{
			Field:   "timeWindow",
			Code:    CodePastTimeSlot,
			Message: "Cannot schedule a pickup in the past",
			Details: map[string]any{
				"start": a.Window.Start.UTC().Format(time.RFC3339),
				"now":   now.UTC().Format(time.RFC3339),
			},
		})
	}

	day := a.Date
	if day.IsZero() {
		day = a.Window.Start
	}
	dayStart, dayEnd := f.timeProvider.DayBounds(day)
	date := f.timeProvider.FormatDate(day)

	if location.MaxParcelsPerDay != nil {
		current, err := f.parcelRepo.Count(ctx, models.ParcelFilter{
			PickupLocationID: &location.ID,
			StartsAtOrAfter:  &dayStart,
			StartsBefore:     &dayEnd,
			ExcludeID:        excludeID,
		})
		if err != nil {
			return f.infrastructureFailure(a, err)
		}
		maximum := *location.MaxParcelsPerDay
		if current >= int64(maximum) {
			result.add(ValidationError{
				Field:   "capacity",
				Code:    CodeMaxDailyCapacityReached,
				Message: fmt.Sprintf("Maximum capacity (%d) reached for %s", maximum, date),
				Details: map[string]any{
					"current":      current,
					"maximum":      maximum,
					"date":         date,
					"locationId":   location.ID.String(),
					"locationName": location.Name,
				},
			})
		}
	}

	sameDay, err := f.parcelRepo.ByFilter(ctx, models.ParcelFilter{
		HouseholdID:     &householdID,
		StartsAtOrAfter: &dayStart,
		StartsBefore:    &dayEnd,
		ExcludeID:       excludeID,
	}, "pickup_date_time_earliest ASC", 1, 0)
	if err != nil {
		return f.infrastructureFailure(a, err)
	}
	if len(sameDay) > 0 {
		result.add(ValidationError{
			Field:   "householdId",
			Code:    CodeHouseholdDoubleBooking,
			Message: fmt.Sprintf("Household already has a parcel on %s", date),
			Details: map[string]any{
				"conflictingParcelId": sameDay[0].ID.String(),
				"householdId":         householdID.String(),
				"date":                date,
			},
		})
	}

	maxPerSlot := f.defaultMaxPerSlot
	if location.MaxParcelsPerSlot != nil {
		maxPerSlot = *location.MaxParcelsPerSlot
	}
	overlapping, err := f.parcelRepo.FindOverlapping(ctx, location.ID, a.Window, excludeID)
	if err != nil {
		return f.infrastructureFailure(a, err)
	}
	if len(overlapping) >= maxPerSlot {
		ids := make([]string, 0, len(overlapping))
		for _, p := range overlapping {
			ids = append(ids, p.ID.String())
		}
		result.add(ValidationError{
			Field:   "timeSlot",
			Code:    CodeMaxSlotCapacityReached,
			Message: fmt.Sprintf("Time slot %s-%s is full", f.timeProvider.FormatClock(a.Window.Start), f.timeProvider.FormatClock(a.Window.End)),
			Details: map[string]any{
				"current":      len(overlapping),
				"maximum":      maxPerSlot,
				"date":         date,
				"slotStart":    f.timeProvider.FormatClock(a.Window.Start),
				"slotEnd":      f.timeProvider.FormatClock(a.Window.End),
				"conflictIds":  ids,
				"locationId":   location.ID.String(),
				"locationName": location.Name,
			},
		})
	}

	return result, nil
}

// ValidateBulk validates each assignment and prefixes every error field with
// the assignment's parcel id.
func (f *ParcelValidationFlowImpl) ValidateBulk(ctx context.Context, assignments []ParcelAssignment) (*ValidationResult, error) {
	union := &ValidationResult{Success: true, Errors: []ValidationError{}}
	for _, a := range assignments {
		res, err := f.Validate(ctx, a)
		prefix := a.ParcelID.String() + "."
		if res != nil {
			for _, e := range res.Errors {
				e.Field = prefix + e.Field
				union.add(e)
			}
		}
		if err != nil {
			return union, err
		}
	}
	return union, nil
}

func (f *ParcelValidationFlowImpl) infrastructureFailure(a ParcelAssignment, err error) (*ValidationResult, error) {
	f.logger.Error().Err(err).
		Str("parcel_id", a.ParcelID.String()).
		Str("location_id", a.PickupLocationID.String()).
		Msg("parcel validation failed")
	return &ValidationResult{
			Success: false,
			Errors: []ValidationError{{
				Field:   "general",
				Code:    CodeValidationError,
				Message: "Validation could not be completed",
			}},
		},
		NewBusinessError(CodeValidationError, "Parcel validation failed", fmt.Errorf("%w: %w", ErrValidationInfrastructure, err))
}
