package dto

// RemoveHouseholdResponse reports how a household was removed
type RemoveHouseholdResponse struct {
	HouseholdID string `json:"household_id"`
	Method      string `json:"method"`
	PerformedBy string `json:"performed_by"`
}
