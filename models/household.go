// Package models contains the GORM models persisted by the application
package models

import (
	"time"

	"github.com/google/uuid"
)

// Household is an enrolled family receiving food parcels. Once AnonymizedAt
// is set the PII columns hold placeholders and are never written again.
type Household struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName    string     `gorm:"size:100;not null" json:"first_name"`
	LastName     string     `gorm:"size:100;not null" json:"last_name"`
	PhoneNumber  string     `gorm:"size:20;not null;uniqueIndex:idx_households_phone_number" json:"phone_number"`
	Locale       string     `gorm:"size:10;not null;default:'sv'" json:"locale"`
	PostalCode   *string    `gorm:"size:10" json:"postal_code,omitempty"`
	AnonymizedAt *time.Time `gorm:"index:idx_households_anonymized_at" json:"anonymized_at,omitempty"`
	AnonymizedBy *string    `gorm:"size:255" json:"anonymized_by,omitempty"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	Members             []HouseholdMember             `gorm:"foreignKey:HouseholdID" json:"members,omitempty"`
	Pets                []HouseholdPet                `gorm:"foreignKey:HouseholdID" json:"pets,omitempty"`
	DietaryRestrictions []HouseholdDietaryRestriction `gorm:"foreignKey:HouseholdID" json:"dietary_restrictions,omitempty"`
}

func (Household) TableName() string { return "households" }

func (h *Household) IsAnonymized() bool {
	return h.AnonymizedAt != nil
}

// HouseholdMember keeps only statistical data about a household member
type HouseholdMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index:idx_household_members_household_id" json:"household_id"`
	Age         int       `gorm:"not null" json:"age"`
	Sex         string    `gorm:"size:10;not null" json:"sex"`
}

func (HouseholdMember) TableName() string { return "household_members" }

type HouseholdPet struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index:idx_household_pets_household_id" json:"household_id"`
	Species     string    `gorm:"size:50;not null" json:"species"`
}

func (HouseholdPet) TableName() string { return "household_pets" }

type HouseholdDietaryRestriction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index:idx_household_dietary_restrictions_household_id" json:"household_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
}

func (HouseholdDietaryRestriction) TableName() string { return "household_dietary_restrictions" }

// HouseholdComment is a free-text staff note; it is dropped on anonymization
type HouseholdComment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index:idx_household_comments_household_id" json:"household_id"`
	Author      string    `gorm:"size:255;not null" json:"author"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (HouseholdComment) TableName() string { return "household_comments" }

// HouseholdFilter provides filter fields for repository queries
type HouseholdFilter struct {
	ID            *uuid.UUID
	PhoneNumber   *string
	IsAnonymized  *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// InactiveHousehold is a non-anonymized household together with the start of
// its most recent parcel window.
type InactiveHousehold struct {
	Household
	LastParcelAt time.Time `gorm:"column:last_parcel_at" json:"last_parcel_at"`
}
