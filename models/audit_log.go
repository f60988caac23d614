package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records administrative and scheduled actions on households
type AuditLog struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Actor        string          `gorm:"size:255;not null" json:"actor"`
	SubjectID    *uuid.UUID      `gorm:"type:uuid;index:idx_audit_subject_id" json:"subject_id,omitempty"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionHouseholdDeleted       = "household_deleted"
	AuditActionHouseholdAnonymized    = "household_anonymized"
	AuditActionAnonymizationBatch     = "anonymization_batch"
	AuditActionSMSReminderTriggered   = "sms_reminder_triggered"
	AuditActionAnonymizationTriggered = "anonymization_triggered"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uuid.UUID
	Action        *string
	Actor         *string
	SubjectID     *uuid.UUID
	Success       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
