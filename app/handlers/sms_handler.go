package handlers

import (
	"fmt"
	"time"

	"github.com/amirphl/food-parcel/app/dto"
	businessflow "github.com/amirphl/food-parcel/business_flow"
	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/utils"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SMSHandlerInterface defines the contract for the SMS dashboard handlers
type SMSHandlerInterface interface {
	Stats(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

type SMSHandler struct {
	baseHandler
	flow         businessflow.SMSDashboardFlow
	timeProvider *utils.TimeProvider
}

func NewSMSHandler(flow businessflow.SMSDashboardFlow, timeProvider *utils.TimeProvider) *SMSHandler {
	return &SMSHandler{
		baseHandler:  newBaseHandler(),
		flow:         flow,
		timeProvider: timeProvider,
	}
}

func (h *SMSHandler) Stats(c fiber.Ctx) error {
	var q dto.SMSStatsQuery
	if err := c.Bind().Query(&q); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if msgs := h.validate(&q); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}

	var since *time.Time
	if q.Since != "" {
		t, err := time.Parse(time.RFC3339, q.Since)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", []string{err.Error()})
		}
		since = &t
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/sms/stats", defaultRequestTimeout)
	defer cancel()

	stats, err := h.flow.Stats(ctx, since)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load SMS statistics", businessflow.BusinessErrorCode(err), nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "SMS statistics retrieved", stats)
}

func (h *SMSHandler) Export(c fiber.Ctx) error {
	var q dto.SMSExportQuery
	if err := c.Bind().Query(&q); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if msgs := h.validate(&q); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}

	var filter businessflow.SMSExportFilter
	if q.Status != "" {
		st := models.SMSStatus(q.Status)
		filter.Status = &st
	}
	if q.From != "" {
		d, _ := time.ParseInLocation("2006-01-02", q.From, h.timeProvider.Location())
		from := h.timeProvider.StartOfDay(d)
		filter.From = &from
	}
	if q.To != "" {
		d, _ := time.ParseInLocation("2006-01-02", q.To, h.timeProvider.Location())
		to := h.timeProvider.EndOfDay(d)
		filter.To = &to
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/sms/export", defaultRequestTimeout)
	defer cancel()

	filename, content, err := h.flow.ExportXLSX(ctx, filter)
	if err != nil {
		if businessflow.BusinessErrorCode(err) == "INVALID_DATE_RANGE" {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Start date cannot be after end date", "INVALID_DATE_RANGE", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export SMS records", businessflow.BusinessErrorCode(err), nil)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(content)
}
