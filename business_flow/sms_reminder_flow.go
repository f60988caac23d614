package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/food-parcel/app/services"
	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/amirphl/food-parcel/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StaleSendReason is stored on sending records resolved by stale recovery
const StaleSendReason = "stale send recovered"

// ReminderOutcome is what happened to one parcel in a reminder run
type ReminderOutcome string

const (
	ReminderSent    ReminderOutcome = "sent"
	ReminderFailed  ReminderOutcome = "failed"
	ReminderSkipped ReminderOutcome = "skipped"
)

// ReminderRunResult summarizes one ProcessRemindersJIT call
type ReminderRunResult struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Recovered int64    `json:"recovered"`
	Errors    []string `json:"errors"`
}

// ReminderOptions tunes the reminder engine; zero values use the defaults in utils
type ReminderOptions struct {
	Horizon        time.Duration
	StaleThreshold time.Duration
	BatchLimit     int
}

// SMSReminderFlow sends pickup reminders just in time. Each parcel gets at
// most one reminder: an SMS row is written in the sending state before the
// provider is called and its idempotency key is unique.
type SMSReminderFlow interface {
	GetParcelsNeedingReminder(ctx context.Context) ([]*models.ReminderCandidate, error)
	SendReminderForParcel(ctx context.Context, parcelID uuid.UUID) (ReminderOutcome, error)
	RecoverStaleSends(ctx context.Context) (int64, error)
	ProcessRemindersJIT(ctx context.Context) (*ReminderRunResult, error)
}

type SMSReminderFlowImpl struct {
	parcelRepo    repository.ParcelRepository
	householdRepo repository.HouseholdRepository
	locationRepo  repository.PickupLocationRepository
	smsRepo       repository.OutgoingSMSRepository
	provider      services.SMSProvider
	timeProvider  *utils.TimeProvider
	opts          ReminderOptions
	logger        zerolog.Logger
}

func NewSMSReminderFlow(
	parcelRepo repository.ParcelRepository,
	householdRepo repository.HouseholdRepository,
	locationRepo repository.PickupLocationRepository,
	smsRepo repository.OutgoingSMSRepository,
	provider services.SMSProvider,
	timeProvider *utils.TimeProvider,
	opts ReminderOptions,
	logger zerolog.Logger,
) SMSReminderFlow {
	if opts.Horizon <= 0 {
		opts.Horizon = utils.ReminderHorizon
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = utils.StaleSendThreshold
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 500
	}
	return &SMSReminderFlowImpl{
		parcelRepo:    parcelRepo,
		householdRepo: householdRepo,
		locationRepo:  locationRepo,
		smsRepo:       smsRepo,
		provider:      provider,
		timeProvider:  timeProvider,
		opts:          opts,
		logger:        logger.With().Str("component", "sms_reminder").Logger(),
	}
}

// PickupReminderKey is the idempotency key of the pickup reminder of a parcel
func PickupReminderKey(parcelID uuid.UUID) string {
	return utils.SMSIntentPickupReminder + "|" + parcelID.String()
}

func (f *SMSReminderFlowImpl) GetParcelsNeedingReminder(ctx context.Context) ([]*models.ReminderCandidate, error) {
	now := f.timeProvider.Now()
	return f.parcelRepo.ListReminderCandidates(ctx, now, now.Add(f.opts.Horizon), utils.SMSIntentPickupReminder, f.opts.BatchLimit)
}

func (f *SMSReminderFlowImpl) RecoverStaleSends(ctx context.Context) (int64, error) {
	cutoff := f.timeProvider.Now().Add(-f.opts.StaleThreshold)
	n, err := f.smsRepo.RecoverStale(ctx, cutoff, StaleSendReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.logger.Warn().Int64("recovered", n).Msg("resolved stale sending SMS records")
	}
	return n, nil
}

// SendReminderForParcel returns an error only when the outcome could not be
// recorded. Provider failures are recorded on the SMS row and reported as
// ReminderFailed.
func (f *SMSReminderFlowImpl) SendReminderForParcel(ctx context.Context, parcelID uuid.UUID) (ReminderOutcome, error) {
	key := PickupReminderKey(parcelID)
	log := f.logger.With().Str("parcel_id", parcelID.String()).Logger()

	exists, err := f.smsRepo.Exists(ctx, models.OutgoingSMSFilter{IdempotencyKey: &key})
	if err != nil {
		return "", err
	}
	if exists {
		return ReminderSkipped, nil
	}

	// the message is rendered from rows read now, not from the candidate scan
	parcel, err := f.parcelRepo.ByID(ctx, parcelID)
	if err != nil {
		return "", err
	}
	if parcel == nil || parcel.IsDeleted() || parcel.IsPickedUp {
		return ReminderSkipped, nil
	}
	household, err := f.householdRepo.ByID(ctx, parcel.HouseholdID)
	if err != nil {
		return "", err
	}
	if household == nil || household.IsAnonymized() || strings.TrimSpace(household.PhoneNumber) == "" {
		return ReminderSkipped, nil
	}
	location, err := f.locationRepo.ByID(ctx, parcel.PickupLocationID)
	if err != nil {
		return "", err
	}
	if location == nil {
		return ReminderSkipped, nil
	}

	now := utils.UTCNow()
	record := &models.OutgoingSMS{
		ID:             uuid.New(),
		ParcelID:       &parcel.ID,
		HouseholdID:    household.ID,
		Intent:         utils.SMSIntentPickupReminder,
		ToPhone:        household.PhoneNumber,
		Text:           f.renderPickupReminder(household, parcel, location),
		Status:         models.SMSStatusSending,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.smsRepo.Save(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			log.Debug().Msg("reminder already claimed by a concurrent run")
			return ReminderSkipped, nil
		}
		return "", err
	}

	res, sendErr := f.provider.Send(ctx, record.ToPhone, record.Text)
	switch {
	case sendErr != nil:
		log.Error().Err(sendErr).Msg("SMS provider call failed")
		if err := f.smsRepo.MarkFailed(ctx, record.ID, fmt.Sprintf("%v: %v", ErrSMSProviderUnavailable, sendErr)); err != nil {
			return ReminderFailed, err
		}
		return ReminderFailed, nil
	case res == nil || !res.Success:
		reason := "provider rejected message"
		if res != nil && res.Error != "" {
			reason = res.Error
		}
		log.Warn().Str("reason", reason).Msg("SMS provider rejected reminder")
		if err := f.smsRepo.MarkFailed(ctx, record.ID, reason); err != nil {
			return ReminderFailed, err
		}
		return ReminderFailed, nil
	}

	if err := f.smsRepo.MarkSent(ctx, record.ID, res.ProviderID, utils.UTCNow()); err != nil {
		return ReminderSent, err
	}
	log.Info().Msg("pickup reminder sent")
	return ReminderSent, nil
}

func (f *SMSReminderFlowImpl) renderPickupReminder(h *models.Household, p *models.Parcel, l *models.PickupLocation) string {
	where := l.Name
	if l.StreetAddress != "" {
		where += ", " + l.StreetAddress
	}
	return fmt.Sprintf("Hi %s! Reminder: pick up your food parcel at %s on %s between %s and %s.",
		h.FirstName,
		where,
		f.timeProvider.FormatDate(p.PickupDateTimeEarliest),
		f.timeProvider.FormatClock(p.PickupDateTimeEarliest),
		f.timeProvider.FormatClock(p.PickupDateTimeLatest),
	)
}

// ProcessRemindersJIT recovers stale sends, then sends due reminders one at a
// time. Only a failing recovery or candidate scan is returned as an error.
func (f *SMSReminderFlowImpl) ProcessRemindersJIT(ctx context.Context) (*ReminderRunResult, error) {
	result := &ReminderRunResult{Errors: []string{}}

	recovered, err := f.RecoverStaleSends(ctx)
	if err != nil {
		return result, err
	}
	result.Recovered = recovered

	candidates, err := f.GetParcelsNeedingReminder(ctx)
	if err != nil {
		return result, err
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		result.Processed++
		outcome, err := f.SendReminderForParcel(ctx, c.ID)
		if err != nil {
			f.logger.Error().Err(err).Str("parcel_id", c.ID.String()).Msg("reminder failed")
			result.Errors = append(result.Errors, fmt.Sprintf("parcel %s: %v", c.ID, err))
		}
		switch outcome {
		case ReminderSent:
			result.Sent++
		case ReminderSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	f.logger.Info().
		Int("processed", result.Processed).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int64("recovered", result.Recovered).
		Msg("reminder run finished")

	return result, nil
}
