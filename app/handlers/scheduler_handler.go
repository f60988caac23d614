package handlers

import (
	"context"
	"time"

	"github.com/amirphl/food-parcel/app/dto"
	"github.com/amirphl/food-parcel/app/scheduler"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

const triggerTimeout = 10 * time.Minute

// SchedulerController is the part of the scheduler exposed over HTTP
type SchedulerController interface {
	Start(ctx context.Context) error
	IsRunning() bool
	HealthCheck() *scheduler.Health
	TriggerSmsJIT(ctx context.Context) *scheduler.TriggerResult
	TriggerAnonymization(ctx context.Context) *scheduler.TriggerResult
}

// SchedulerHandlerInterface defines the contract for scheduler handlers
type SchedulerHandlerInterface interface {
	Health(c fiber.Ctx) error
	TriggerSMS(c fiber.Ctx) error
	TriggerAnonymization(c fiber.Ctx) error
}

type SchedulerHandler struct {
	baseHandler
	scheduler SchedulerController
	logger    zerolog.Logger
}

func NewSchedulerHandler(s SchedulerController, logger zerolog.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		baseHandler: newBaseHandler(),
		scheduler:   s,
		logger:      logger.With().Str("component", "scheduler_handler").Logger(),
	}
}

// Health reports scheduler health. A stopped scheduler is started again
// before the report is built.
func (h *SchedulerHandler) Health(c fiber.Ctx) error {
	restarted := false
	var restartErr string
	if !h.scheduler.IsRunning() {
		h.logger.Warn().Msg("scheduler not running, restarting from health check")
		if err := h.scheduler.Start(context.Background()); err != nil {
			h.logger.Error().Err(err).Msg("scheduler restart failed")
			restartErr = err.Error()
		} else {
			restarted = true
		}
	}

	health := h.scheduler.HealthCheck()
	data := fiber.Map{
		"status":    health.Status,
		"details":   health.Details,
		"restarted": restarted,
	}
	if restartErr != "" {
		data["restart_error"] = restartErr
	}

	if health.Status != scheduler.HealthHealthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Scheduler is unhealthy",
			Data:    data,
			Error:   dto.ErrorDetail{Code: "SCHEDULER_UNHEALTHY"},
		})
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Service is healthy", data)
}

func (h *SchedulerHandler) TriggerSMS(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c, "/api/v1/admin/scheduler/sms/trigger", triggerTimeout)
	defer cancel()
	return h.respondTrigger(c, h.scheduler.TriggerSmsJIT(ctx))
}

func (h *SchedulerHandler) TriggerAnonymization(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c, "/api/v1/admin/scheduler/anonymization/trigger", triggerTimeout)
	defer cancel()
	return h.respondTrigger(c, h.scheduler.TriggerAnonymization(ctx))
}

func (h *SchedulerHandler) respondTrigger(c fiber.Ctx, res *scheduler.TriggerResult) error {
	switch res.Status {
	case scheduler.StatusFailed:
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Task run failed", "TASK_RUN_FAILED", res)
	case scheduler.StatusSkipped:
		return h.SuccessResponse(c, fiber.StatusOK, "Task already running, skipped", res)
	default:
		return h.SuccessResponse(c, fiber.StatusOK, "Task run completed", res)
	}
}
