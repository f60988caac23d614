package dto

import "time"

// ValidateParcelRequest describes one parcel assignment to check before it is saved.
// With IsNew set the parcel does not exist yet and HouseholdID is required;
// otherwise ParcelID names the existing parcel being moved.
type ValidateParcelRequest struct {
	ParcelID         string    `json:"parcel_id,omitempty" validate:"omitempty,uuid"`
	IsNew            bool      `json:"is_new"`
	HouseholdID      string    `json:"household_id,omitempty" validate:"omitempty,uuid"`
	PickupLocationID string    `json:"pickup_location_id" validate:"required,uuid"`
	PickupEarliest   time.Time `json:"pickup_earliest"`
	PickupLatest     time.Time `json:"pickup_latest"`
	// Date is the civil day (YYYY-MM-DD) the daily limit applies to; defaults to the day of PickupEarliest
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ValidateParcelsBulkRequest checks several assignments in one call
type ValidateParcelsBulkRequest struct {
	Assignments []ValidateParcelRequest `json:"assignments" validate:"required,min=1,max=500,dive"`
}
