package repository

// Guards validate inputs before database operations to fail fast and provide
// clear errors instead of constraint violations.

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// Guard provides validation methods for common repository inputs.
type Guard struct{}

// NewGuard creates a new validation guard.
func NewGuard() *Guard {
	return &Guard{}
}

// RequireUUID validates that a UUID is not nil/zero.
func (g *Guard) RequireUUID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return apperrors.MissingField(field)
	}
	return nil
}

// RequireString validates that a string is not empty.
func (g *Guard) RequireString(s string, field string) error {
	if strings.TrimSpace(s) == "" {
		return apperrors.MissingField(field)
	}
	return nil
}

// RequireNonNegative validates that an integer is not negative.
func (g *Guard) RequireNonNegative(n int, field string) error {
	if n < 0 {
		return apperrors.ValidationFailed(fmt.Sprintf("%s must not be negative", field))
	}
	return nil
}

// RequirePositive validates that an integer is positive.
func (g *Guard) RequirePositive(n int, field string) error {
	if n <= 0 {
		return apperrors.ValidationFailed(fmt.Sprintf("%s must be positive", field))
	}
	return nil
}

// RequireInRange validates that an integer is within a range.
func (g *Guard) RequireInRange(n, min, max int, field string) error {
	if n < min || n > max {
		return apperrors.ValidationFailed(fmt.Sprintf("%s must be between %d and %d", field, min, max))
	}
	return nil
}

// RequireMaxLength validates that a string doesn't exceed a length.
func (g *Guard) RequireMaxLength(s string, maxLen int, field string) error {
	if len(s) > maxLen {
		return apperrors.ValidationFailed(fmt.Sprintf("%s must not exceed %d characters", field, maxLen))
	}
	return nil
}

// RequireValidEmail performs basic email validation.
func (g *Guard) RequireValidEmail(email, field string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.MissingField(field)
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || !strings.Contains(parts[1], ".") {
		return apperrors.InvalidFormat(field, "valid email address")
	}
	return nil
}

// RequireEnum validates that a value is one of the allowed values.
func (g *Guard) RequireEnum(value string, allowed []string, field string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return apperrors.ValidationFailed(fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// Entity-specific validation

// ValidateQuoteStatus validates a quote lifecycle status.
func (g *Guard) ValidateQuoteStatus(status domain.QuoteStatus) error {
	valid := []string{
		string(domain.QuoteStatusPending),
		string(domain.QuoteStatusPendingSiteVisit),
		string(domain.QuoteStatusAccepted),
		string(domain.QuoteStatusExpired),
		string(domain.QuoteStatusDeclined),
	}
	return g.RequireEnum(string(status), valid, "status")
}

// ValidateBookingStatus validates a booking lifecycle status.
func (g *Guard) ValidateBookingStatus(status domain.BookingStatus) error {
	valid := []string{
		string(domain.BookingStatusConfirmed),
		string(domain.BookingStatusCompleted),
		string(domain.BookingStatusCancelled),
	}
	return g.RequireEnum(string(status), valid, "status")
}

// ValidateTimeSlot validates a half-day appointment slot.
func (g *Guard) ValidateTimeSlot(slot domain.TimeSlot) error {
	if !domain.ValidTimeSlot(slot) {
		return apperrors.InvalidFormat("time_slot", "morning or afternoon")
	}
	return nil
}

// ValidationResult collects multiple validation errors.
type ValidationResult struct {
	errors []error
}

// NewValidationResult creates a new validation result collector.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		errors: make([]error, 0),
	}
}

// Add adds an error to the result if it's not nil.
func (v *ValidationResult) Add(err error) *ValidationResult {
	if err != nil {
		v.errors = append(v.errors, err)
	}
	return v
}

// RequireUUID adds a UUID validation.
func (v *ValidationResult) RequireUUID(id uuid.UUID, field string) *ValidationResult {
	return v.Add(defaultGuard.RequireUUID(id, field))
}

// RequireString adds a string validation.
func (v *ValidationResult) RequireString(s string, field string) *ValidationResult {
	return v.Add(defaultGuard.RequireString(s, field))
}

// RequireValidEmail adds an email validation.
func (v *ValidationResult) RequireValidEmail(email, field string) *ValidationResult {
	return v.Add(defaultGuard.RequireValidEmail(email, field))
}

// HasErrors returns true if there are any validation errors.
func (v *ValidationResult) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error message, or nil if no errors.
func (v *ValidationResult) Error() error {
	if len(v.errors) == 0 {
		return nil
	}
	if len(v.errors) == 1 {
		return v.errors[0]
	}

	messages := make([]string, len(v.errors))
	for i, err := range v.errors {
		messages[i] = err.Error()
	}
	return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
}

// Errors returns all validation errors.
func (v *ValidationResult) Errors() []error {
	return v.errors
}

// Default guard instance for convenience
var defaultGuard = NewGuard()

// Validate returns a new ValidationResult for fluent validation.
func Validate() *ValidationResult {
	return NewValidationResult()
}

// GuardUUID is a convenience function for UUID validation.
func GuardUUID(id uuid.UUID, field string) error {
	return defaultGuard.RequireUUID(id, field)
}

// GuardString is a convenience function for string validation.
func GuardString(s string, field string) error {
	return defaultGuard.RequireString(s, field)
}
