// Package businessflow contains the core business logic: parcel validation,
// household removal and anonymization, SMS reminders and the SMS dashboard
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Household-related errors
	ErrHouseholdNotFound     = errors.New("household not found")
	ErrHasUpcomingParcels    = errors.New("household has upcoming parcels")
	ErrAlreadyAnonymized     = errors.New("household already anonymized")
	ErrPerformedByRequired   = errors.New("performed by is required")
	ErrAnonymizationLocked   = errors.New("anonymization batch is already running")
	ErrInvalidInactiveWindow = errors.New("inactive duration must be positive")

	// Parcel validation errors
	ErrValidationInfrastructure = errors.New("parcel validation could not complete")

	// SMS errors
	ErrSMSProviderUnavailable = errors.New("sms provider unavailable")

	// Filter errors
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsHouseholdNotFound(err error) bool {
	return errors.Is(err, ErrHouseholdNotFound)
}

func IsHasUpcomingParcels(err error) bool {
	return errors.Is(err, ErrHasUpcomingParcels)
}

func IsAlreadyAnonymized(err error) bool {
	return errors.Is(err, ErrAlreadyAnonymized)
}

func IsAnonymizationLocked(err error) bool {
	return errors.Is(err, ErrAnonymizationLocked)
}

func IsValidationInfrastructure(err error) bool {
	return errors.Is(err, ErrValidationInfrastructure)
}

// BusinessErrorCode returns the code of the first BusinessError in the chain
func BusinessErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
