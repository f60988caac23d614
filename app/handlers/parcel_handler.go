package handlers

import (
	"fmt"
	"time"

	"github.com/amirphl/food-parcel/app/dto"
	businessflow "github.com/amirphl/food-parcel/business_flow"
	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// ParcelHandlerInterface defines the contract for parcel handlers
type ParcelHandlerInterface interface {
	Validate(c fiber.Ctx) error
	ValidateBulk(c fiber.Ctx) error
}

type ParcelHandler struct {
	baseHandler
	flow         businessflow.ParcelValidationFlow
	timeProvider *utils.TimeProvider
}

func NewParcelHandler(flow businessflow.ParcelValidationFlow, timeProvider *utils.TimeProvider) *ParcelHandler {
	return &ParcelHandler{
		baseHandler:  newBaseHandler(),
		flow:         flow,
		timeProvider: timeProvider,
	}
}

// Validate checks one parcel assignment. Rule violations are returned as
// data with status 200; only a failed check returns an error status.
func (h *ParcelHandler) Validate(c fiber.Ctx) error {
	var req dto.ValidateParcelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if msgs := h.validate(&req); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}
	a, err := h.toAssignment(req)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", []string{err.Error()})
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/parcels/validate", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.Validate(ctx, a)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Parcel validation could not be completed", businessflow.CodeValidationError, result)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Parcel validation completed", result)
}

func (h *ParcelHandler) ValidateBulk(c fiber.Ctx) error {
	var req dto.ValidateParcelsBulkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if msgs := h.validate(&req); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}

	assignments := make([]businessflow.ParcelAssignment, 0, len(req.Assignments))
	for i, item := range req.Assignments {
		a, err := h.toAssignment(item)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", []string{fmt.Sprintf("assignments[%d]: %v", i, err)})
		}
		assignments = append(assignments, a)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/parcels/validate-bulk", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.ValidateBulk(ctx, assignments)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Parcel validation could not be completed", businessflow.CodeValidationError, result)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Parcel validation completed", result)
}

func (h *ParcelHandler) toAssignment(req dto.ValidateParcelRequest) (businessflow.ParcelAssignment, error) {
	var a businessflow.ParcelAssignment
	if req.PickupEarliest.IsZero() || req.PickupLatest.IsZero() {
		return a, fmt.Errorf("pickup_earliest and pickup_latest are required")
	}

	a.IsNewParcel = req.IsNew
	a.PickupLocationID = uuid.MustParse(req.PickupLocationID)
	a.Window = models.TimeWindow{Start: req.PickupEarliest, End: req.PickupLatest}

	switch {
	case req.ParcelID != "":
		a.ParcelID = uuid.MustParse(req.ParcelID)
	case req.IsNew:
		a.ParcelID = uuid.New()
	default:
		return a, fmt.Errorf("parcel_id is required unless is_new is set")
	}
	if req.HouseholdID != "" {
		id := uuid.MustParse(req.HouseholdID)
		a.HouseholdID = &id
	}
	if req.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", req.Date, h.timeProvider.Location())
		if err != nil {
			return a, fmt.Errorf("date: %w", err)
		}
		a.Date = d
	}
	return a, nil
}
