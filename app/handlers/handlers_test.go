package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/food-parcel/app/dto"
	"github.com/amirphl/food-parcel/app/scheduler"
	businessflow "github.com/amirphl/food-parcel/business_flow"
	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeScheduler struct {
	running  bool
	starts   int
	startErr error
	trigger  *scheduler.TriggerResult
}

func (f *fakeScheduler) Start(ctx context.Context) error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeScheduler) IsRunning() bool { return f.running }

func (f *fakeScheduler) HealthCheck() *scheduler.Health {
	status := scheduler.HealthUnhealthy
	if f.running {
		status = scheduler.HealthHealthy
	}
	return &scheduler.Health{Status: status, Details: scheduler.HealthDetails{Running: f.running}}
}

func (f *fakeScheduler) TriggerSmsJIT(ctx context.Context) *scheduler.TriggerResult {
	return f.trigger
}

func (f *fakeScheduler) TriggerAnonymization(ctx context.Context) *scheduler.TriggerResult {
	return f.trigger
}

type fakeValidation struct {
	got    []businessflow.ParcelAssignment
	result *businessflow.ValidationResult
	err    error
}

func (f *fakeValidation) Validate(ctx context.Context, a businessflow.ParcelAssignment) (*businessflow.ValidationResult, error) {
	f.got = append(f.got, a)
	return f.result, f.err
}

func (f *fakeValidation) ValidateBulk(ctx context.Context, as []businessflow.ParcelAssignment) (*businessflow.ValidationResult, error) {
	f.got = append(f.got, as...)
	return f.result, f.err
}

type fakeRemoval struct {
	performedBy string
	err         error
}

func (f *fakeRemoval) CanRemoveHousehold(ctx context.Context, id uuid.UUID) (*businessflow.RemovalCheck, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &businessflow.RemovalCheck{Allowed: false, UpcomingParcelCount: 2}, nil
}

func (f *fakeRemoval) RemoveHousehold(ctx context.Context, id uuid.UUID, performedBy string) (*businessflow.RemovalResult, error) {
	f.performedBy = performedBy
	if f.err != nil {
		return nil, f.err
	}
	return &businessflow.RemovalResult{HouseholdID: id, Method: businessflow.RemovalMethodAnonymized}, nil
}

func (f *fakeRemoval) FindHouseholdsForAutomaticAnonymization(ctx context.Context, inactive time.Duration) ([]*models.Household, error) {
	return nil, nil
}

func (f *fakeRemoval) AnonymizeInactiveHouseholds(ctx context.Context, inactive time.Duration) (*businessflow.AnonymizationBatchResult, error) {
	return &businessflow.AnonymizationBatchResult{}, nil
}

type fakeDashboard struct {
	filter businessflow.SMSExportFilter
	err    error
}

func (f *fakeDashboard) Stats(ctx context.Context, since *time.Time) (*businessflow.SMSStats, error) {
	return &businessflow.SMSStats{Since: since, Counts: map[models.SMSStatus]int64{models.SMSStatusSent: 3}, Total: 3}, nil
}

func (f *fakeDashboard) ExportXLSX(ctx context.Context, filter businessflow.SMSExportFilter) (string, []byte, error) {
	f.filter = filter
	if f.err != nil {
		return "", nil, f.err
	}
	return "sms_export_2024-05-10.xlsx", []byte("PK"), nil
}

// --- helpers ---

func withActor(actor string) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals("admin_id", "7")
		c.Locals("actor", actor)
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, dto.APIResponse) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var out dto.APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func errorCode(r dto.APIResponse) string {
	m, _ := r.Error.(map[string]any)
	code, _ := m["code"].(string)
	return code
}

func stockholmProvider(t *testing.T) *utils.TimeProvider {
	tp, err := utils.NewTimeProvider("Europe/Stockholm")
	require.NoError(t, err)
	return tp
}

// --- scheduler ---

func TestHealthRestartsStoppedScheduler(t *testing.T) {
	s := &fakeScheduler{}
	app := fiber.New()
	app.Get("/health", NewSchedulerHandler(s, zerolog.Nop()).Health)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, s.starts)
	data := body.Data.(map[string]any)
	assert.Equal(t, true, data["restarted"])
	assert.Equal(t, scheduler.HealthHealthy, data["status"])

	resp, body = doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, s.starts)
	assert.Equal(t, false, body.Data.(map[string]any)["restarted"])
}

func TestHealthReportsFailedRestart(t *testing.T) {
	s := &fakeScheduler{startErr: errors.New("bad timezone")}
	app := fiber.New()
	app.Get("/health", NewSchedulerHandler(s, zerolog.Nop()).Health)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SCHEDULER_UNHEALTHY", errorCode(body))
	assert.Equal(t, "bad timezone", body.Data.(map[string]any)["restart_error"])
}

func TestTriggerResponses(t *testing.T) {
	cases := []struct {
		status string
		code   int
	}{
		{scheduler.StatusSuccess, http.StatusOK},
		{scheduler.StatusSkipped, http.StatusOK},
		{scheduler.StatusFailed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s := &fakeScheduler{running: true, trigger: &scheduler.TriggerResult{Task: scheduler.TaskSMS, Status: tc.status, Skipped: tc.status == scheduler.StatusSkipped}}
		h := NewSchedulerHandler(s, zerolog.Nop())
		app := fiber.New()
		app.Post("/sms", h.TriggerSMS)
		app.Post("/anon", h.TriggerAnonymization)

		resp, _ := doJSON(t, app, http.MethodPost, "/sms", nil)
		assert.Equal(t, tc.code, resp.StatusCode, tc.status)
		resp, _ = doJSON(t, app, http.MethodPost, "/anon", nil)
		assert.Equal(t, tc.code, resp.StatusCode, tc.status)
	}
}

func TestTriggerSkippedReportsFlag(t *testing.T) {
	s := &fakeScheduler{running: true, trigger: &scheduler.TriggerResult{Task: scheduler.TaskSMS, Status: scheduler.StatusSkipped, Skipped: true}}
	app := fiber.New()
	app.Post("/sms", NewSchedulerHandler(s, zerolog.Nop()).TriggerSMS)

	_, body := doJSON(t, app, http.MethodPost, "/sms", nil)
	assert.Equal(t, true, body.Data.(map[string]any)["skipped"])
}

// --- parcels ---

func TestValidateParcelMapsRequest(t *testing.T) {
	flow := &fakeValidation{result: &businessflow.ValidationResult{Success: true, Errors: []businessflow.ValidationError{}}}
	app := fiber.New()
	app.Post("/validate", NewParcelHandler(flow, stockholmProvider(t)).Validate)

	household := uuid.New()
	location := uuid.New()
	start := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	resp, body := doJSON(t, app, http.MethodPost, "/validate", dto.ValidateParcelRequest{
		IsNew:            true,
		HouseholdID:      household.String(),
		PickupLocationID: location.String(),
		PickupEarliest:   start,
		PickupLatest:     start.Add(15 * time.Minute),
		Date:             "2024-05-10",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	require.Len(t, flow.got, 1)
	a := flow.got[0]
	assert.True(t, a.IsNewParcel)
	assert.NotEqual(t, uuid.Nil, a.ParcelID)
	assert.Equal(t, household, *a.HouseholdID)
	assert.Equal(t, location, a.PickupLocationID)
	assert.True(t, a.Window.Start.Equal(start))
	assert.Equal(t, "Europe/Stockholm", a.Date.Location().String())
	assert.Equal(t, 10, a.Date.Day())
}

func TestValidateParcelReturnsRuleViolationsAsData(t *testing.T) {
	flow := &fakeValidation{result: &businessflow.ValidationResult{
		Success: false,
		Errors:  []businessflow.ValidationError{{Field: "timeSlot", Code: businessflow.CodeMaxSlotCapacityReached}},
	}}
	app := fiber.New()
	app.Post("/validate", NewParcelHandler(flow, stockholmProvider(t)).Validate)

	start := time.Now().Add(time.Hour)
	resp, body := doJSON(t, app, http.MethodPost, "/validate", dto.ValidateParcelRequest{
		ParcelID:         uuid.NewString(),
		PickupLocationID: uuid.NewString(),
		PickupEarliest:   start,
		PickupLatest:     start.Add(15 * time.Minute),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body.Data.(map[string]any)
	assert.Equal(t, false, result["success"])
	assert.Len(t, result["errors"], 1)
}

func TestValidateParcelRejectsBadInput(t *testing.T) {
	flow := &fakeValidation{}
	app := fiber.New()
	app.Post("/validate", NewParcelHandler(flow, stockholmProvider(t)).Validate)

	start := time.Now()
	for name, req := range map[string]dto.ValidateParcelRequest{
		"bad location": {ParcelID: uuid.NewString(), PickupLocationID: "nope", PickupEarliest: start, PickupLatest: start},
		"no parcel":    {PickupLocationID: uuid.NewString(), PickupEarliest: start, PickupLatest: start},
		"no window":    {ParcelID: uuid.NewString(), PickupLocationID: uuid.NewString()},
		"bad date":     {ParcelID: uuid.NewString(), PickupLocationID: uuid.NewString(), PickupEarliest: start, PickupLatest: start, Date: "10/05/2024"},
	} {
		resp, body := doJSON(t, app, http.MethodPost, "/validate", req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(body), name)
	}
	assert.Empty(t, flow.got)
}

func TestValidateParcelInfrastructureFailure(t *testing.T) {
	flow := &fakeValidation{
		result: &businessflow.ValidationResult{Errors: []businessflow.ValidationError{{Field: "general", Code: businessflow.CodeValidationError}}},
		err:    businessflow.ErrValidationInfrastructure,
	}
	app := fiber.New()
	app.Post("/validate", NewParcelHandler(flow, stockholmProvider(t)).Validate)

	start := time.Now().Add(time.Hour)
	resp, body := doJSON(t, app, http.MethodPost, "/validate", dto.ValidateParcelRequest{
		ParcelID:         uuid.NewString(),
		PickupLocationID: uuid.NewString(),
		PickupEarliest:   start,
		PickupLatest:     start,
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, businessflow.CodeValidationError, errorCode(body))
}

func TestValidateBulk(t *testing.T) {
	flow := &fakeValidation{result: &businessflow.ValidationResult{Success: true, Errors: []businessflow.ValidationError{}}}
	app := fiber.New()
	app.Post("/bulk", NewParcelHandler(flow, stockholmProvider(t)).ValidateBulk)

	start := time.Now().Add(time.Hour)
	item := dto.ValidateParcelRequest{ParcelID: uuid.NewString(), PickupLocationID: uuid.NewString(), PickupEarliest: start, PickupLatest: start}
	resp, _ := doJSON(t, app, http.MethodPost, "/bulk", dto.ValidateParcelsBulkRequest{Assignments: []dto.ValidateParcelRequest{item, item}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, flow.got, 2)

	resp, _ = doJSON(t, app, http.MethodPost, "/bulk", dto.ValidateParcelsBulkRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- households ---

func TestRemoveHouseholdUsesTokenActor(t *testing.T) {
	flow := &fakeRemoval{}
	app := fiber.New()
	app.Delete("/households/:id", withActor("admin:7"), NewHouseholdHandler(flow).Remove)

	id := uuid.New()
	resp, body := doJSON(t, app, http.MethodDelete, "/households/"+id.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin:7", flow.performedBy)
	data := body.Data.(map[string]any)
	assert.Equal(t, "anonymized", data["method"])
	assert.Equal(t, id.String(), data["household_id"])
}

func TestRemoveHouseholdWithoutActorIsUnauthorized(t *testing.T) {
	app := fiber.New()
	app.Delete("/households/:id", NewHouseholdHandler(&fakeRemoval{}).Remove)

	resp, _ := doJSON(t, app, http.MethodDelete, "/households/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRemoveHouseholdErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"not found":  {businessflow.NewBusinessError(businessflow.CodeHouseholdNotFound, "x", businessflow.ErrHouseholdNotFound), http.StatusNotFound, businessflow.CodeHouseholdNotFound},
		"upcoming":   {businessflow.NewBusinessError(businessflow.CodeHasUpcomingParcels, "x", businessflow.ErrHasUpcomingParcels), http.StatusConflict, businessflow.CodeHasUpcomingParcels},
		"anonymized": {businessflow.NewBusinessError(businessflow.CodeAlreadyAnonymized, "x", businessflow.ErrAlreadyAnonymized), http.StatusConflict, businessflow.CodeAlreadyAnonymized},
		"db":         {businessflow.NewBusinessError("HOUSEHOLD_REMOVAL_FAILED", "x", errors.New("db")), http.StatusInternalServerError, "HOUSEHOLD_REMOVAL_FAILED"},
	}
	for name, tc := range cases {
		app := fiber.New()
		app.Delete("/households/:id", withActor("admin:7"), NewHouseholdHandler(&fakeRemoval{err: tc.err}).Remove)

		resp, body := doJSON(t, app, http.MethodDelete, "/households/"+uuid.NewString(), nil)
		assert.Equal(t, tc.status, resp.StatusCode, name)
		assert.Equal(t, tc.code, errorCode(body), name)
	}
}

func TestCanRemoveHousehold(t *testing.T) {
	app := fiber.New()
	app.Get("/households/:id/can-remove", NewHouseholdHandler(&fakeRemoval{}).CanRemove)

	resp, body := doJSON(t, app, http.MethodGet, "/households/"+uuid.NewString()+"/can-remove", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body.Data.(map[string]any)
	assert.Equal(t, false, data["allowed"])
	assert.Equal(t, float64(2), data["upcoming_parcel_count"])

	resp, _ = doJSON(t, app, http.MethodGet, "/households/not-a-uuid/can-remove", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- sms dashboard ---

func TestSMSStatsHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/stats", NewSMSHandler(&fakeDashboard{}, stockholmProvider(t)).Stats)

	resp, body := doJSON(t, app, http.MethodGet, "/stats?since=2024-05-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body.Data.(map[string]any)["total"])

	resp, _ = doJSON(t, app, http.MethodGet, "/stats?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSMSExportHandler(t *testing.T) {
	flow := &fakeDashboard{}
	app := fiber.New()
	app.Get("/export", NewSMSHandler(flow, stockholmProvider(t)).Export)

	req := httptest.NewRequest(http.MethodGet, "/export?status=failed&from=2024-05-01&to=2024-05-10", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "sms_export_2024-05-10.xlsx")

	require.NotNil(t, flow.filter.Status)
	assert.Equal(t, models.SMSStatusFailed, *flow.filter.Status)
	loc, _ := time.LoadLocation("Europe/Stockholm")
	assert.True(t, flow.filter.From.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, loc)))
	assert.True(t, flow.filter.To.Before(time.Date(2024, 5, 11, 0, 0, 0, 0, loc)))
	assert.True(t, flow.filter.To.After(time.Date(2024, 5, 10, 23, 59, 0, 0, loc)))
}

func TestSMSExportHandlerErrors(t *testing.T) {
	app := fiber.New()
	app.Get("/export", NewSMSHandler(&fakeDashboard{}, stockholmProvider(t)).Export)
	resp, _ := doJSON(t, app, http.MethodGet, "/export?status=queued", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	flow := &fakeDashboard{err: businessflow.NewBusinessError("INVALID_DATE_RANGE", "x", businessflow.ErrStartDateAfterEndDate)}
	app = fiber.New()
	app.Get("/export", NewSMSHandler(flow, stockholmProvider(t)).Export)
	resp, body := doJSON(t, app, http.MethodGet, "/export?from=2024-05-10&to=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_DATE_RANGE", errorCode(body))
}
