package handlers

import (
	"github.com/amirphl/food-parcel/app/dto"
	"github.com/amirphl/food-parcel/app/middleware"
	businessflow "github.com/amirphl/food-parcel/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// HouseholdHandlerInterface defines the contract for household removal handlers
type HouseholdHandlerInterface interface {
	CanRemove(c fiber.Ctx) error
	Remove(c fiber.Ctx) error
}

type HouseholdHandler struct {
	baseHandler
	flow businessflow.HouseholdRemovalFlow
}

func NewHouseholdHandler(flow businessflow.HouseholdRemovalFlow) *HouseholdHandler {
	return &HouseholdHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
	}
}

func (h *HouseholdHandler) CanRemove(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid household id", "INVALID_HOUSEHOLD_ID", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/households/:id/can-remove", defaultRequestTimeout)
	defer cancel()

	check, err := h.flow.CanRemoveHousehold(ctx, id)
	if err != nil {
		return h.removalError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Removal check completed", check)
}

// Remove deletes or anonymizes the household on behalf of the authenticated admin
func (h *HouseholdHandler) Remove(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid household id", "INVALID_HOUSEHOLD_ID", nil)
	}
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin authentication required", "ADMIN_AUTHENTICATION_REQUIRED", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/households/:id", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.RemoveHousehold(ctx, id, actor)
	if err != nil {
		return h.removalError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Household removed", dto.RemoveHouseholdResponse{
		HouseholdID: result.HouseholdID.String(),
		Method:      string(result.Method),
		PerformedBy: actor,
	})
}

func (h *HouseholdHandler) removalError(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsHouseholdNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Household not found", businessflow.CodeHouseholdNotFound, nil)
	case businessflow.IsHasUpcomingParcels(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Household has upcoming parcels", businessflow.CodeHasUpcomingParcels, err.Error())
	case businessflow.IsAlreadyAnonymized(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Household is already anonymized", businessflow.CodeAlreadyAnonymized, nil)
	}
	code := businessflow.BusinessErrorCode(err)
	if code == "" {
		code = "HOUSEHOLD_REMOVAL_FAILED"
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process household removal", code, nil)
}
