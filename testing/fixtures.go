package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestLocation creates a pickup location with the given capacities
func (tf *TestFixtures) CreateTestLocation(maxPerDay, maxPerSlot *int) (*models.PickupLocation, error) {
	location := &models.PickupLocation{
		ID:                  uuid.New(),
		Name:                fmt.Sprintf("Location %d", rand.Intn(100000)),
		StreetAddress:       "Storgatan 1",
		MaxParcelsPerDay:    maxPerDay,
		MaxParcelsPerSlot:   maxPerSlot,
		SlotDurationMinutes: utils.DefaultSlotDurationMinutes,
	}
	if err := tf.DB.DB.Create(location).Error; err != nil {
		return nil, fmt.Errorf("failed to create test location: %w", err)
	}
	return location, nil
}

// CreateTestHousehold creates a household with one member, pet and restriction
func (tf *TestFixtures) CreateTestHousehold() (*models.Household, error) {
	// random 9 digit subscriber number
	randomDigits := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)

	household := &models.Household{
		ID:          uuid.New(),
		FirstName:   "Anna",
		LastName:    "Svensson",
		PhoneNumber: "+467" + randomDigits,
		Locale:      "sv",
		PostalCode:  utils.ToPtr("11122"),
		Members:     []models.HouseholdMember{{Age: 34, Sex: "female"}},
		Pets:        []models.HouseholdPet{{Species: "cat"}},
		DietaryRestrictions: []models.HouseholdDietaryRestriction{
			{Name: "gluten"},
		},
	}
	if err := tf.DB.DB.Create(household).Error; err != nil {
		return nil, fmt.Errorf("failed to create test household: %w", err)
	}
	return household, nil
}

// CreateTestComment adds a staff comment to a household
func (tf *TestFixtures) CreateTestComment(householdID uuid.UUID) (*models.HouseholdComment, error) {
	comment := &models.HouseholdComment{
		HouseholdID: householdID,
		Author:      "staff@example.com",
		Body:        "Prefers afternoon pickups",
	}
	if err := tf.DB.DB.Create(comment).Error; err != nil {
		return nil, fmt.Errorf("failed to create test comment: %w", err)
	}
	return comment, nil
}

// CreateTestParcel creates a parcel whose window starts at start and lasts d
func (tf *TestFixtures) CreateTestParcel(householdID, locationID uuid.UUID, start time.Time, d time.Duration) (*models.Parcel, error) {
	parcel := &models.Parcel{
		ID:                     uuid.New(),
		HouseholdID:            householdID,
		PickupLocationID:       locationID,
		PickupDateTimeEarliest: start.UTC(),
		PickupDateTimeLatest:   start.Add(d).UTC(),
	}
	if err := tf.DB.DB.Create(parcel).Error; err != nil {
		return nil, fmt.Errorf("failed to create test parcel: %w", err)
	}
	return parcel, nil
}

// SoftDeleteParcel marks a parcel as cancelled
func (tf *TestFixtures) SoftDeleteParcel(parcelID uuid.UUID) error {
	return tf.DB.DB.Model(&models.Parcel{}).
		Where("id = ?", parcelID).
		Updates(map[string]any{"deleted_at": utils.UTCNow(), "deleted_by": "fixtures"}).Error
}
