package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/amirphl/food-parcel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("JWT_SECRET_KEY", testSecret)
}

func TestLoadProductionConfigDefaults(t *testing.T) {
	baseEnv(t)

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, utils.DefaultSMSInterval, cfg.Scheduler.SMSInterval)
	assert.Equal(t, utils.DefaultAnonymizationSchedule, cfg.Scheduler.AnonymizationSchedule)
	assert.Equal(t, utils.Year, cfg.Scheduler.AnonymizationInactive)
	assert.Equal(t, int64(31_557_600_000), cfg.Scheduler.AnonymizationInactive.Milliseconds())
	assert.Equal(t, utils.DefaultTimezone, cfg.Scheduler.Timezone)
	assert.Equal(t, 48*time.Hour, cfg.Reminder.Horizon)
	assert.Equal(t, 10*time.Minute, cfg.Reminder.StaleThreshold)
	assert.Equal(t, utils.DefaultMaxParcelsPerSlot, cfg.Reminder.DefaultMaxPerSlot)
	assert.Equal(t, SMSProviderMock, cfg.SMS.Provider)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Deployment.IsProductionLike())
}

func TestLoadProductionConfigHumanDurations(t *testing.T) {
	baseEnv(t)
	t.Setenv("SMS_JIT_INTERVAL", "2 minutes")
	t.Setenv("ANONYMIZATION_INACTIVE_DURATION", "6 months")
	t.Setenv("HEARTBEAT_INTERVAL", "90m")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.SMSInterval)
	assert.Equal(t, utils.Year/2, cfg.Scheduler.AnonymizationInactive)
	assert.Equal(t, 90*time.Minute, cfg.Scheduler.HeartbeatInterval)
}

func TestLoadProductionConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad duration", "ANONYMIZATION_INACTIVE_DURATION", "forever", "ANONYMIZATION_INACTIVE_DURATION"},
		{"zero duration", "SMS_JIT_INTERVAL", "0 minutes", "SMS_JIT_INTERVAL"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus", "TIMEZONE"},
		{"bad cron", "ANONYMIZATION_SCHEDULE", "every sunday", "ANONYMIZATION_SCHEDULE"},
		{"unknown provider", "SMS_PROVIDER", "pigeon", "SMS_PROVIDER"},
		{"short secret", "JWT_SECRET_KEY", "short", "JWT_SECRET_KEY"},
		{"bad log level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := LoadProductionConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadProductionConfigProviderRequirements(t *testing.T) {
	baseEnv(t)
	t.Setenv("SMS_PROVIDER", "twilio")

	_, err := LoadProductionConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWILIO_ACCOUNT_SID")

	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+46700000000")
	cfg, err := LoadProductionConfig()
	require.NoError(t, err)
	assert.Equal(t, SMSProviderTwilio, cfg.SMS.Provider)
}

func TestSchedulerConfigHasNoSwitches(t *testing.T) {
	baseEnv(t)
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_RUN_SMS_ON_START", "false")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultAnonymizationSchedule, cfg.Scheduler.AnonymizationSchedule)

	typ := reflect.TypeOf(SchedulerConfig{})
	for i := 0; i < typ.NumField(); i++ {
		assert.NotEqual(t, reflect.Bool, typ.Field(i).Type.Kind(), typ.Field(i).Name)
	}
}

func TestLoadProductionConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "JWT_SECRET_KEY=" + testSecret + "\nAPP_ENV=staging\nSMS_JIT_INTERVAL=1 hour\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ENV_FILE", path)
	// Process environment wins over the file.
	t.Setenv("APP_ENV", "production")
	// godotenv only fills unset variables; t.Setenv restores them afterwards.
	for _, key := range []string{"JWT_SECRET_KEY", "SMS_JIT_INTERVAL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Deployment.Environment)
	assert.Equal(t, time.Hour, cfg.Scheduler.SMSInterval)
}

func TestDeploymentEnvironment(t *testing.T) {
	tests := []struct {
		env            string
		productionLike bool
		production     bool
	}{
		{"production", true, true},
		{"PRODUCTION", true, true},
		{"staging", true, false},
		{"development", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		d := DeploymentConfig{Environment: tt.env}
		assert.Equal(t, tt.productionLike, d.IsProductionLike(), tt.env)
		assert.Equal(t, tt.production, d.IsProduction(), tt.env)
	}
}
