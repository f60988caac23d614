// Package scheduler runs the reminder, anonymization and heartbeat jobs on cron timers
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/food-parcel/app/services"
	businessflow "github.com/amirphl/food-parcel/business_flow"
	"github.com/amirphl/food-parcel/config"
	"github.com/amirphl/food-parcel/utils"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	TaskSMS           = "sms_jit"
	TaskAnonymization = "anonymization"
	TaskHeartbeat     = "heartbeat"

	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"

	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"

	triggerScheduled = "scheduled"
	triggerStartup   = "startup"
	triggerManual    = "manual"
)

// TriggerResult is the outcome of one task run. Skipped is set when the same
// task was already in flight in this process.
type TriggerResult struct {
	Task          string                                 `json:"task"`
	Trigger       string                                 `json:"trigger"`
	Status        string                                 `json:"status"`
	Skipped       bool                                   `json:"skipped"`
	Error         string                                 `json:"error,omitempty"`
	StartedAt     time.Time                              `json:"started_at"`
	FinishedAt    time.Time                              `json:"finished_at"`
	SMS           *businessflow.ReminderRunResult        `json:"sms,omitempty"`
	Anonymization *businessflow.AnonymizationBatchResult `json:"anonymization,omitempty"`
}

type TaskHealth struct {
	Registered bool       `json:"registered"`
	Schedule   string     `json:"schedule"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	InFlight   bool       `json:"in_flight"`
}

type HealthDetails struct {
	Running     bool   `json:"running"`
	Environment string `json:"environment"`
	TestMode    bool   `json:"test_mode"`
	Timezone    string `json:"timezone"`

	SMS           TaskHealth `json:"sms"`
	Anonymization TaskHealth `json:"anonymization"`
	Heartbeat     TaskHealth `json:"heartbeat"`

	LastAnonymizationRun    *time.Time                             `json:"last_anonymization_run,omitempty"`
	LastAnonymizationStatus string                                 `json:"last_anonymization_status,omitempty"`
	LastAnonymizationError  string                                 `json:"last_anonymization_error,omitempty"`
	LastAnonymizationResult *businessflow.AnonymizationBatchResult `json:"last_anonymization_result,omitempty"`

	LastSMSRun    *time.Time                      `json:"last_sms_run,omitempty"`
	LastSMSStatus string                          `json:"last_sms_status,omitempty"`
	LastSMSError  string                          `json:"last_sms_error,omitempty"`
	LastSMSResult *businessflow.ReminderRunResult `json:"last_sms_result,omitempty"`
}

type Health struct {
	Status  string        `json:"status"`
	Details HealthDetails `json:"details"`
}

// Scheduler owns the recurring SMS reminder, anonymization and heartbeat jobs.
// Run state lives in memory and starts fresh with every process.
type Scheduler struct {
	cfg        config.SchedulerConfig
	deployment config.DeploymentConfig
	testMode   bool

	reminders businessflow.SMSReminderFlow
	removal   businessflow.HouseholdRemovalFlow
	alerts    services.AlertService
	tp        *utils.TimeProvider
	logger    zerolog.Logger

	mu             sync.Mutex
	running        bool
	c              *cron.Cron
	smsEntry       cron.EntryID
	anonEntry      cron.EntryID
	heartbeatEntry cron.EntryID

	smsInFlight    atomic.Bool
	anonInFlight   atomic.Bool
	startupAlerted atomic.Bool

	stateMu        sync.RWMutex
	lastAnonRun    *time.Time
	lastAnonStatus string
	lastAnonError  string
	lastAnonResult *businessflow.AnonymizationBatchResult
	lastSMSRun     *time.Time
	lastSMSStatus  string
	lastSMSError   string
	lastSMSResult  *businessflow.ReminderRunResult
}

func NewScheduler(
	cfg config.SchedulerConfig,
	deployment config.DeploymentConfig,
	testMode bool,
	reminders businessflow.SMSReminderFlow,
	removal businessflow.HouseholdRemovalFlow,
	alerts services.AlertService,
	tp *utils.TimeProvider,
	logger zerolog.Logger,
) *Scheduler {
	if cfg.SMSInterval <= 0 {
		cfg.SMSInterval = utils.DefaultSMSInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = utils.DefaultHeartbeatInterval
	}
	if strings.TrimSpace(cfg.AnonymizationSchedule) == "" {
		cfg.AnonymizationSchedule = utils.DefaultAnonymizationSchedule
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = utils.DefaultTimezone
	}
	return &Scheduler{
		cfg:        cfg,
		deployment: deployment,
		testMode:   testMode,
		reminders:  reminders,
		removal:    removal,
		alerts:     alerts,
		tp:         tp,
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers all jobs and runs the SMS job once right away. Calling it
// while running is a no-op. Jobs run with a context detached from ctx's
// cancellation so Stop never interrupts an in-flight run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load scheduler timezone %q: %w", s.cfg.Timezone, err)
	}

	cl := cronLogger{log: s.logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	jobCtx := context.WithoutCancel(ctx)

	smsEntry, err := c.AddFunc(everySpec(s.cfg.SMSInterval), func() { s.runSMS(jobCtx, triggerScheduled) })
	if err != nil {
		return fmt.Errorf("register sms job: %w", err)
	}
	anonEntry, err := c.AddFunc(s.cfg.AnonymizationSchedule, func() { s.runAnonymization(jobCtx, triggerScheduled) })
	if err != nil {
		return fmt.Errorf("register anonymization job %q: %w", s.cfg.AnonymizationSchedule, err)
	}
	heartbeatEntry, err := c.AddFunc(everySpec(s.cfg.HeartbeatInterval), s.heartbeat)
	if err != nil {
		return fmt.Errorf("register heartbeat job: %w", err)
	}

	c.Start()
	s.c = c
	s.smsEntry = smsEntry
	s.anonEntry = anonEntry
	s.heartbeatEntry = heartbeatEntry
	s.running = true
	schedulerRunning.Set(1)

	s.logger.Info().
		Str("sms_interval", s.cfg.SMSInterval.String()).
		Str("anonymization_schedule", s.cfg.AnonymizationSchedule).
		Int64("anonymization_inactive_ms", s.cfg.AnonymizationInactive.Milliseconds()).
		Str("timezone", loc.String()).
		Bool("test_mode", s.testMode).
		Msg("scheduler started")

	go s.runSMS(jobCtx, triggerStartup)
	if s.deployment.IsProductionLike() && s.startupAlerted.CompareAndSwap(false, true) {
		go s.alerts.Notify(jobCtx, "Scheduler started", fmt.Sprintf(
			"env=%s version=%s sms_interval=%s anonymization=%q test_mode=%t",
			s.deployment.Environment, s.deployment.Version, s.cfg.SMSInterval, s.cfg.AnonymizationSchedule, s.testMode,
		))
	}
	return nil
}

// Stop removes every job. Runs already in progress finish on their own; the
// returned context is done once they have.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	done := s.c.Stop()
	s.c = nil
	s.smsEntry, s.anonEntry, s.heartbeatEntry = 0, 0, 0
	s.running = false
	schedulerRunning.Set(0)
	s.logger.Info().Msg("scheduler stopped")
	return done
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerSmsJIT runs the reminder job now, outside the timer
func (s *Scheduler) TriggerSmsJIT(ctx context.Context) *TriggerResult {
	return s.runSMS(ctx, triggerManual)
}

// TriggerAnonymization runs the anonymization batch now with the configured
// inactivity duration
func (s *Scheduler) TriggerAnonymization(ctx context.Context) *TriggerResult {
	return s.runAnonymization(ctx, triggerManual)
}

func (s *Scheduler) runSMS(ctx context.Context, trigger string) *TriggerResult {
	result := &TriggerResult{Task: TaskSMS, Trigger: trigger, StartedAt: s.tp.Now()}
	if !s.smsInFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Str("trigger", trigger).Msg("sms job already in flight, skipping")
		taskRunsTotal.WithLabelValues(TaskSMS, StatusSkipped).Inc()
		result.Status = StatusSkipped
		result.Skipped = true
		result.FinishedAt = result.StartedAt
		return result
	}
	defer s.smsInFlight.Store(false)

	res, err := s.reminders.ProcessRemindersJIT(ctx)
	result.FinishedAt = s.tp.Now()
	result.SMS = res
	taskDuration.WithLabelValues(TaskSMS).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	if res != nil {
		smsRemindersTotal.WithLabelValues(string(businessflow.ReminderSent)).Add(float64(res.Sent))
		smsRemindersTotal.WithLabelValues(string(businessflow.ReminderFailed)).Add(float64(res.Failed))
		smsRemindersTotal.WithLabelValues(string(businessflow.ReminderSkipped)).Add(float64(res.Skipped))
		smsStaleRecoveredTotal.Add(float64(res.Recovered))
	}
	if err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("sms job failed")
		result.Status = StatusFailed
		result.Error = err.Error()
	} else {
		result.Status = StatusSuccess
	}
	taskRunsTotal.WithLabelValues(TaskSMS, result.Status).Inc()

	s.stateMu.Lock()
	s.lastSMSRun = &result.StartedAt
	s.lastSMSStatus = result.Status
	s.lastSMSError = result.Error
	s.lastSMSResult = res
	s.stateMu.Unlock()
	return result
}

func (s *Scheduler) runAnonymization(ctx context.Context, trigger string) *TriggerResult {
	result := &TriggerResult{Task: TaskAnonymization, Trigger: trigger, StartedAt: s.tp.Now()}
	if !s.anonInFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Str("trigger", trigger).Msg("anonymization already in flight, skipping")
		taskRunsTotal.WithLabelValues(TaskAnonymization, StatusSkipped).Inc()
		result.Status = StatusSkipped
		result.Skipped = true
		result.FinishedAt = result.StartedAt
		return result
	}
	defer s.anonInFlight.Store(false)

	s.logger.Info().Str("trigger", trigger).Int64("inactive_ms", s.cfg.AnonymizationInactive.Milliseconds()).Msg("anonymization run starting")
	res, err := s.removal.AnonymizeInactiveHouseholds(ctx, s.cfg.AnonymizationInactive)
	result.FinishedAt = s.tp.Now()
	result.Anonymization = res
	taskDuration.WithLabelValues(TaskAnonymization).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	switch {
	case err == nil:
		result.Status = StatusSuccess
		householdsAnonymizedTotal.WithLabelValues(string(businessflow.RemovalMethodAnonymized)).Add(float64(res.Anonymized))
		householdsAnonymizedTotal.WithLabelValues(string(businessflow.RemovalMethodDeleted)).Add(float64(res.Deleted))
	case businessflow.IsAnonymizationLocked(err):
		// another instance holds the batch lock
		result.Status = StatusSkipped
		result.Skipped = true
	default:
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("anonymization run failed")
		result.Status = StatusFailed
		result.Error = err.Error()
		if s.deployment.IsProduction() {
			s.alerts.Notify(ctx, "Anonymization failed", fmt.Sprintf("trigger=%s error=%v", trigger, err))
		}
	}
	taskRunsTotal.WithLabelValues(TaskAnonymization, result.Status).Inc()

	s.stateMu.Lock()
	s.lastAnonRun = &result.StartedAt
	s.lastAnonStatus = result.Status
	s.lastAnonError = result.Error
	if res != nil {
		s.lastAnonResult = res
	}
	s.stateMu.Unlock()
	return result
}

func (s *Scheduler) heartbeat() {
	h := s.HealthCheck()
	s.logger.Info().
		Str("status", h.Status).
		Bool("sms_in_flight", h.Details.SMS.InFlight).
		Bool("anonymization_in_flight", h.Details.Anonymization.InFlight).
		Str("last_anonymization_status", h.Details.LastAnonymizationStatus).
		Str("last_sms_status", h.Details.LastSMSStatus).
		Msg("scheduler heartbeat")
}

// HealthCheck is healthy when the scheduler runs with all three jobs registered
func (s *Scheduler) HealthCheck() *Health {
	s.mu.Lock()
	d := HealthDetails{
		Running:       s.running,
		Environment:   s.deployment.Environment,
		TestMode:      s.testMode,
		Timezone:      s.cfg.Timezone,
		SMS:           s.taskHealthLocked(s.smsEntry, everySpec(s.cfg.SMSInterval)),
		Anonymization: s.taskHealthLocked(s.anonEntry, s.cfg.AnonymizationSchedule),
		Heartbeat:     s.taskHealthLocked(s.heartbeatEntry, everySpec(s.cfg.HeartbeatInterval)),
	}
	s.mu.Unlock()

	d.SMS.InFlight = s.smsInFlight.Load()
	d.Anonymization.InFlight = s.anonInFlight.Load()

	s.stateMu.RLock()
	d.LastAnonymizationRun = s.lastAnonRun
	d.LastAnonymizationStatus = s.lastAnonStatus
	d.LastAnonymizationError = s.lastAnonError
	d.LastAnonymizationResult = s.lastAnonResult
	d.LastSMSRun = s.lastSMSRun
	d.LastSMSStatus = s.lastSMSStatus
	d.LastSMSError = s.lastSMSError
	d.LastSMSResult = s.lastSMSResult
	s.stateMu.RUnlock()

	status := HealthUnhealthy
	if d.Running && d.SMS.Registered && d.Anonymization.Registered && d.Heartbeat.Registered {
		status = HealthHealthy
	}
	return &Health{Status: status, Details: d}
}

func (s *Scheduler) taskHealthLocked(id cron.EntryID, schedule string) TaskHealth {
	th := TaskHealth{Schedule: schedule}
	if s.c == nil || id == 0 {
		return th
	}
	e := s.c.Entry(id)
	if !e.Valid() {
		return th
	}
	th.Registered = true
	if !e.Next.IsZero() {
		next := e.Next
		th.NextRun = &next
	}
	return th
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger routes cron's own logging through zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
