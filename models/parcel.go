package models

import (
	"time"

	"github.com/google/uuid"
)

// Parcel is a scheduled pickup. The pickup is a window, not an instant:
// PickupDateTimeEarliest <= PickupDateTimeLatest. Cancellation soft-deletes
// the row through DeletedAt/DeletedBy.
type Parcel struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	HouseholdID            uuid.UUID  `gorm:"type:uuid;not null;index:idx_parcels_household_id" json:"household_id"`
	PickupLocationID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_parcels_location_window,priority:1" json:"pickup_location_id"`
	PickupDateTimeEarliest time.Time  `gorm:"not null;index:idx_parcels_location_window,priority:2" json:"pickup_date_time_earliest"`
	PickupDateTimeLatest   time.Time  `gorm:"not null" json:"pickup_date_time_latest"`
	IsPickedUp             bool       `gorm:"not null;default:false" json:"is_picked_up"`
	DeletedAt              *time.Time `gorm:"index:idx_parcels_deleted_at" json:"deleted_at,omitempty"`
	DeletedBy              *string    `gorm:"size:255" json:"deleted_by,omitempty"`
	CreatedAt              time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Parcel) TableName() string { return "parcels" }

func (p *Parcel) IsDeleted() bool {
	return p.DeletedAt != nil
}

// TimeWindow is a half-open pickup interval [Start, End)
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two windows share any instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// ParcelFilter provides filter fields for repository queries. Soft-deleted
// rows are excluded unless IncludeDeleted is set.
type ParcelFilter struct {
	ID               *uuid.UUID
	HouseholdID      *uuid.UUID
	PickupLocationID *uuid.UUID
	ExcludeID        *uuid.UUID
	StartsAtOrAfter  *time.Time
	StartsBefore     *time.Time
	WindowEndsAfter  *time.Time
	IsPickedUp       *bool
	IncludeDeleted   bool
}

// ReminderCandidate is a parcel due for a pickup reminder joined with the
// household and location data needed to render the message.
type ReminderCandidate struct {
	Parcel
	HouseholdPhone  string `gorm:"column:household_phone" json:"household_phone"`
	HouseholdLocale string `gorm:"column:household_locale" json:"household_locale"`
	LocationName    string `gorm:"column:location_name" json:"location_name"`
}
