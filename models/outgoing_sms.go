package models

import (
	"time"

	"github.com/google/uuid"
)

// SMSStatus enumerates status of an outgoing SMS record
type SMSStatus string

const (
	SMSStatusSending SMSStatus = "sending"
	SMSStatusSent    SMSStatus = "sent"
	SMSStatusFailed  SMSStatus = "failed"
)

// OutgoingSMS is written in the sending state before the provider is called,
// then moved to sent or failed. IdempotencyKey is unique, so at most one row
// exists per parcel and intent.
type OutgoingSMS struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ParcelID          *uuid.UUID `gorm:"type:uuid;index:idx_outgoing_sms_parcel_id" json:"parcel_id,omitempty"`
	HouseholdID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_outgoing_sms_household_id" json:"household_id"`
	Intent            string     `gorm:"size:50;not null" json:"intent"`
	ToPhone           string     `gorm:"size:20;not null" json:"to_phone"`
	Text              string     `gorm:"type:text;not null" json:"text"`
	Status            SMSStatus  `gorm:"size:16;not null;default:'sending';index:idx_outgoing_sms_status_created,priority:1" json:"status"`
	IdempotencyKey    string     `gorm:"size:128;not null;uniqueIndex:idx_outgoing_sms_idempotency_key" json:"idempotency_key"`
	ProviderMessageID *string    `gorm:"size:64" json:"provider_message_id,omitempty"`
	LastError         *string    `gorm:"type:text" json:"last_error,omitempty"`
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	CreatedAt         time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_outgoing_sms_status_created,priority:2" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (OutgoingSMS) TableName() string { return "outgoing_sms" }

// OutgoingSMSFilter provides filter fields for repository queries
type OutgoingSMSFilter struct {
	ID             *uuid.UUID
	ParcelID       *uuid.UUID
	HouseholdID    *uuid.UUID
	Intent         *string
	Status         *SMSStatus
	IdempotencyKey *string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}

// SMSStatusCount is one row of a GROUP BY status aggregate
type SMSStatusCount struct {
	Status SMSStatus `gorm:"column:status" json:"status"`
	Count  int64     `gorm:"column:count" json:"count"`
}
