package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/amirphl/food-parcel/utils"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	recentFailuresLimit = 50
	maxExportRows       = 50000
)

// SMSStats is the operator view of outgoing SMS health
type SMSStats struct {
	Since          *time.Time                 `json:"since,omitempty"`
	Counts         map[models.SMSStatus]int64 `json:"counts"`
	Total          int64                      `json:"total"`
	StaleSending   int64                      `json:"stale_sending"`
	RecentFailures []*models.OutgoingSMS      `json:"recent_failures"`
}

// SMSExportFilter narrows the export; nil fields do not filter
type SMSExportFilter struct {
	Status *models.SMSStatus
	From   *time.Time
	To     *time.Time
}

// SMSDashboardFlow reports on outgoing SMS records
type SMSDashboardFlow interface {
	Stats(ctx context.Context, since *time.Time) (*SMSStats, error)
	ExportXLSX(ctx context.Context, filter SMSExportFilter) (filename string, content []byte, err error)
}

type SMSDashboardFlowImpl struct {
	smsRepo        repository.OutgoingSMSRepository
	timeProvider   *utils.TimeProvider
	staleThreshold time.Duration
	logger         zerolog.Logger
}

func NewSMSDashboardFlow(smsRepo repository.OutgoingSMSRepository, timeProvider *utils.TimeProvider, staleThreshold time.Duration, logger zerolog.Logger) SMSDashboardFlow {
	if staleThreshold <= 0 {
		staleThreshold = utils.StaleSendThreshold
	}
	return &SMSDashboardFlowImpl{
		smsRepo:        smsRepo,
		timeProvider:   timeProvider,
		staleThreshold: staleThreshold,
		logger:         logger.With().Str("component", "sms_dashboard").Logger(),
	}
}

func (f *SMSDashboardFlowImpl) Stats(ctx context.Context, since *time.Time) (*SMSStats, error) {
	rows, err := f.smsRepo.CountByStatus(ctx, since)
	if err != nil {
		return nil, NewBusinessError("SMS_STATS_FAILED", "Failed to count SMS records", err)
	}

	stats := &SMSStats{
		Since: since,
		Counts: map[models.SMSStatus]int64{
			models.SMSStatusSending: 0,
			models.SMSStatusSent:    0,
			models.SMSStatusFailed:  0,
		},
	}
	for _, r := range rows {
		stats.Counts[r.Status] = r.Count
		stats.Total += r.Count
	}

	staleBefore := f.timeProvider.Now().Add(-f.staleThreshold)
	sending := models.SMSStatusSending
	stats.StaleSending, err = f.smsRepo.Count(ctx, models.OutgoingSMSFilter{Status: &sending, CreatedBefore: &staleBefore})
	if err != nil {
		return nil, NewBusinessError("SMS_STATS_FAILED", "Failed to count stale SMS records", err)
	}

	failed := models.SMSStatusFailed
	stats.RecentFailures, err = f.smsRepo.ByFilter(ctx, models.OutgoingSMSFilter{Status: &failed, CreatedAfter: since}, "updated_at DESC", recentFailuresLimit, 0)
	if err != nil {
		return nil, NewBusinessError("SMS_STATS_FAILED", "Failed to list failed SMS records", err)
	}
	return stats, nil
}

func (f *SMSDashboardFlowImpl) ExportXLSX(ctx context.Context, filter SMSExportFilter) (string, []byte, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return "", nil, NewBusinessError("INVALID_DATE_RANGE", "Start date cannot be after end date", ErrStartDateAfterEndDate)
	}

	rows, err := f.smsRepo.ByFilter(ctx, models.OutgoingSMSFilter{
		Status:        filter.Status,
		CreatedAfter:  filter.From,
		CreatedBefore: filter.To,
	}, "created_at ASC", maxExportRows, 0)
	if err != nil {
		return "", nil, NewBusinessError("FETCH_SMS_FAILED", "Failed to fetch SMS records", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	const sheet = "messages"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"id", "parcel_id", "household_id", "intent", "to_phone", "status", "attempts", "provider_message_id", "last_error", "created_at", "sent_at"}
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}

	counts := map[models.SMSStatus]int{}
	for ri, r := range rows {
		counts[r.Status]++
		parcelID := ""
		if r.ParcelID != nil {
			parcelID = r.ParcelID.String()
		}
		sentAt := ""
		if r.SentAt != nil {
			sentAt = r.SentAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			r.ID.String(),
			parcelID,
			r.HouseholdID.String(),
			r.Intent,
			r.ToPhone,
			string(r.Status),
			strconv.Itoa(r.Attempts),
			utils.DerefOr(r.ProviderMessageID, ""),
			utils.DerefOr(r.LastError, ""),
			r.CreatedAt.UTC().Format(time.RFC3339),
			sentAt,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		if err := xl.SetSheetRow(sheet, cellRef, &record); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
		}
	}

	const summary = "summary"
	if _, err := xl.NewSheet(summary); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to create summary sheet", err)
	}
	_ = xl.SetSheetRow(summary, "A1", &[]string{"status", "count"})
	for i, st := range []models.SMSStatus{models.SMSStatusSending, models.SMSStatusSent, models.SMSStatusFailed} {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(summary, cellRef, &[]any{string(st), counts[st]})
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("sms_export_%s.xlsx", f.timeProvider.FormatDate(f.timeProvider.Now()))
	f.logger.Info().Int("rows", len(rows)).Msg("SMS export generated")
	return filename, buf.Bytes(), nil
}
