package models

import (
	"time"

	"github.com/google/uuid"
)

// PickupLocation is a distribution point. A nil MaxParcelsPerDay means no
// daily cap; a nil MaxParcelsPerSlot falls back to the system default.
type PickupLocation struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string    `gorm:"size:255;not null" json:"name"`
	StreetAddress       string    `gorm:"size:255" json:"street_address"`
	MaxParcelsPerDay    *int      `gorm:"check:chk_pickup_locations_max_per_day,max_parcels_per_day IS NULL OR max_parcels_per_day >= 0" json:"max_parcels_per_day,omitempty"`
	MaxParcelsPerSlot   *int      `gorm:"check:chk_pickup_locations_max_per_slot,max_parcels_per_slot IS NULL OR max_parcels_per_slot >= 0" json:"max_parcels_per_slot,omitempty"`
	SlotDurationMinutes int       `gorm:"not null;default:15" json:"slot_duration_minutes"`
	CreatedAt           time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt           time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (PickupLocation) TableName() string { return "pickup_locations" }

// PickupLocationFilter provides filter fields for repository queries
type PickupLocationFilter struct {
	ID   *uuid.UUID
	Name *string
}
