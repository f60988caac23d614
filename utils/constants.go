package utils

import (
	"time"
)

// Reminder engine constants
const (
	// ReminderHorizon is how far ahead of a pickup window a reminder may go out
	ReminderHorizon = 48 * time.Hour

	// StaleSendThreshold marks a "sending" SMS row as crashed
	StaleSendThreshold = 10 * time.Minute

	// SMSIntentPickupReminder is the intent of the JIT reminder
	SMSIntentPickupReminder = "pickup_reminder"
)

// Scheduler defaults
const (
	DefaultSMSInterval       = 5 * time.Minute
	DefaultHeartbeatInterval = 12 * time.Hour

	// DefaultAnonymizationSchedule fires Sundays at 02:00 local time
	DefaultAnonymizationSchedule = "0 2 * * 0"

	// DefaultInactivityDuration is one Julian year: 31,557,600,000 ms.
	// Keep it a time.Duration; it must never be read as months or seconds.
	DefaultInactivityDuration = Year
)

// Capacity defaults
const (
	// DefaultMaxParcelsPerSlot applies when a location leaves its slot capacity unset
	DefaultMaxParcelsPerSlot = 4

	// DefaultSlotDurationMinutes applies when a location leaves its slot duration unset
	DefaultSlotDurationMinutes = 15
)

// Anonymization placeholders
const (
	AnonymizedFirstName = "Anonymized"
	AnonymizedLastName  = "User"

	// AnonymizedPhonePrefix starts every placeholder phone number; the suffix
	// is a zero padded sequence of AnonymizedPhoneDigits digits.
	AnonymizedPhonePrefix = "+000"
	AnonymizedPhoneDigits = 9
)
