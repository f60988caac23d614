// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/amirphl/food-parcel/app/dto"
	"github.com/amirphl/food-parcel/app/handlers"
	"github.com/amirphl/food-parcel/app/middleware"
	"github.com/amirphl/food-parcel/config"
	"github.com/amirphl/food-parcel/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Scheduler handlers.SchedulerHandlerInterface
	Parcel    handlers.ParcelHandlerInterface
	Household handlers.HouseholdHandlerInterface
	SMS       handlers.SMSHandlerInterface
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	cfg      *config.ProductionConfig
	auth     *middleware.AuthMiddleware
	handlers Handlers
	logger   zerolog.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, auth *middleware.AuthMiddleware, h Handlers, logger zerolog.Logger) Router {
	r := &FiberRouter{
		cfg:      cfg,
		auth:     auth,
		handlers: h,
		logger:   logger.With().Str("component", "router").Logger(),
	}

	r.app = fiber.New(fiber.Config{
		AppName:      "Food Parcel API",
		ServerHeader: "food-parcel",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, middleware.MetricsHandler())
	}

	api := r.app.Group("/api/v1")

	// Health check route (no auth, no rate limiting)
	api.Get("/health", r.handlers.Scheduler.Health)

	admin := api.Group("/admin", r.auth.AdminAuthenticate())
	admin.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.AdminRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			if adminID, ok := middleware.GetAdminIDFromContext(c); ok {
				return "admin:" + adminID
			}
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
	}))

	sched := admin.Group("/scheduler")
	sched.Post("/sms/trigger", r.handlers.Scheduler.TriggerSMS)
	sched.Post("/anonymization/trigger", r.handlers.Scheduler.TriggerAnonymization)

	parcels := admin.Group("/parcels")
	parcels.Post("/validate", r.handlers.Parcel.Validate)
	parcels.Post("/validate-bulk", r.handlers.Parcel.ValidateBulk)

	households := admin.Group("/households")
	households.Get("/:id/can-remove", r.handlers.Household.CanRemove)
	households.Delete("/:id", r.handlers.Household.Remove)

	sms := admin.Group("/sms")
	sms.Get("/stats", r.handlers.SMS.Stats)
	sms.Get("/export", r.handlers.SMS.Export)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	r.logger.Info().Msg("routes configured")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			r.logger.Error().
				Interface("panic", e).
				Interface("request_id", c.Locals("requestid")).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Str("ip", c.IP()).
				Msg("panic recovered")
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000, // 1 year
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none';",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		AllowCredentials: r.cfg.Security.AllowCredentials,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics(r.cfg.Metrics.Path))
	}

	r.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath || c.Path() == r.cfg.Metrics.Path
		},
	}))
}

func (r *FiberRouter) Start(address string) error {
	r.logger.Info().Str("address", address).Msg("starting server")
	return r.app.Listen(address)
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

// errorHandler is the global fiber error handler
func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errCode := "INTERNAL_ERROR"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			errCode = "REQUEST_ERROR"
		}
	}

	r.logger.Error().Err(err).Int("status", code).Str("path", c.Path()).Msg("request failed")

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
