// Package validation provides input validation for API request payloads.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// FieldErrors returns errors for a specific field.
func (e ValidationErrors) FieldErrors(field string) ValidationErrors {
	var result ValidationErrors
	for _, err := range e {
		if err.Field == field {
			result = append(result, err)
		}
	}
	return result
}

// Error codes for validation failures.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeTooLong       = "too_long"
	CodeTooShort      = "too_short"
	CodeInvalidValue  = "invalid_value"
	CodeMalicious     = "malicious_content"
)

// Validator provides validation methods for request payloads.
type Validator struct {
	errors ValidationErrors
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// Errors returns all accumulated validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// IsValid returns true if no validation errors occurred.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message, code string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
}

// Required validates that a string field is not empty.
func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required", CodeRequired)
		return false
	}
	return true
}

// MaxLength validates string length doesn't exceed maximum.
func (v *Validator) MaxLength(field, value string, maxLen int) bool {
	if utf8.RuneCountInString(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", maxLen), CodeTooLong)
		return false
	}
	return true
}

// MinLength validates string length meets minimum.
func (v *Validator) MinLength(field, value string, minLen int) bool {
	if utf8.RuneCountInString(value) < minLen {
		v.AddError(field, fmt.Sprintf("must be at least %d characters", minLen), CodeTooShort)
		return false
	}
	return true
}

// phoneRegex matches international phone numbers.
var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// PhoneNumber validates a phone number format.
func (v *Validator) PhoneNumber(field, value string) bool {
	if value == "" {
		return true // Use Required() separately if needed
	}
	// Remove common formatting characters
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(value)
	if !phoneRegex.MatchString(cleaned) {
		v.AddError(field, "must be a valid phone number in E.164 format", CodeInvalidFormat)
		return false
	}
	return true
}

// emailRegex matches common email address shapes.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email validates an email address format.
func (v *Validator) Email(field, value string) bool {
	if value == "" {
		return true
	}
	if !emailRegex.MatchString(value) {
		v.AddError(field, "must be a valid email address", CodeInvalidFormat)
		return false
	}
	return true
}

// uuidRegex matches UUID format.
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// UUID validates a UUID format.
func (v *Validator) UUID(field, value string) bool {
	if value == "" {
		return true // Use Required() separately if needed
	}
	if !uuidRegex.MatchString(value) {
		v.AddError(field, "must be a valid UUID", CodeInvalidFormat)
		return false
	}
	return true
}

// ISODate validates a YYYY-MM-DD calendar date.
func (v *Validator) ISODate(field, value string) bool {
	if value == "" {
		return true
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		v.AddError(field, "must be a date in YYYY-MM-DD format", CodeInvalidFormat)
		return false
	}
	return true
}

// OneOf validates that value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) bool {
	if value == "" {
		return true
	}
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")), CodeInvalidValue)
	return false
}

// NoScriptTags validates that the value doesn't contain script tags (XSS prevention).
func (v *Validator) NoScriptTags(field, value string) bool {
	lower := strings.ToLower(value)
	if strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") {
		v.AddError(field, "contains potentially malicious content", CodeMalicious)
		return false
	}
	return true
}

// SafeString validates a string is safe for display (no control characters except newlines).
func (v *Validator) SafeString(field, value string) bool {
	for _, r := range value {
		// Allow printable characters, newlines, tabs
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			v.AddError(field, "contains invalid control characters", CodeMalicious)
			return false
		}
	}
	return true
}

// NonNegativeInt validates that an integer is not negative (zero or positive).
func (v *Validator) NonNegativeInt(field string, value int) bool {
	if value < 0 {
		v.AddError(field, "must not be negative", CodeInvalidValue)
		return false
	}
	return true
}

// Range validates an integer is within range.
func (v *Validator) Range(field string, value, minVal, maxVal int) bool {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", minVal, maxVal), CodeInvalidValue)
		return false
	}
	return true
}

// QuoteRequestValidator validates quote form submissions.
type QuoteRequestValidator struct {
	*Validator
}

// NewQuoteRequestValidator creates a quote request validator.
func NewQuoteRequestValidator() *QuoteRequestValidator {
	return &QuoteRequestValidator{
		Validator: New(),
	}
}

// ValidateServiceKey validates the requested catalog key.
func (v *QuoteRequestValidator) ValidateServiceKey(key string) {
	v.Required("service_key", key)
	v.MaxLength("service_key", key, 64)
	v.SafeString("service_key", key)
}

// ValidateCustomer validates the customer identity fields.
func (v *QuoteRequestValidator) ValidateCustomer(name, email, phone string) {
	v.Required("customer_name", name)
	v.MaxLength("customer_name", name, 256)
	v.SafeString("customer_name", name)
	v.NoScriptTags("customer_name", name)

	v.Required("customer_email", email)
	v.Email("customer_email", email)
	v.MaxLength("customer_email", email, 320)

	v.Required("customer_phone", phone)
	v.PhoneNumber("customer_phone", phone)
}

// ValidateLocation validates the service address.
func (v *QuoteRequestValidator) ValidateLocation(address string) {
	v.Required("customer_location", address)
	v.MaxLength("customer_location", address, 512)
	v.SafeString("customer_location", address)
	v.NoScriptTags("customer_location", address)
}

// ValidateAll performs all quote request validations and returns errors.
func (v *QuoteRequestValidator) ValidateAll(serviceKey, name, email, phone, address string) ValidationErrors {
	v.ValidateServiceKey(serviceKey)
	v.ValidateCustomer(name, email, phone)
	v.ValidateLocation(address)
	return v.Errors()
}

// BookingRequestValidator validates booking submissions.
type BookingRequestValidator struct {
	*QuoteRequestValidator
}

// NewBookingRequestValidator creates a booking request validator.
func NewBookingRequestValidator() *BookingRequestValidator {
	return &BookingRequestValidator{
		QuoteRequestValidator: NewQuoteRequestValidator(),
	}
}

// ValidateSchedule validates the requested date and slot.
func (v *BookingRequestValidator) ValidateSchedule(scheduledDate, timeSlot string) {
	v.Required("scheduled_date", scheduledDate)
	v.ISODate("scheduled_date", scheduledDate)
	v.Required("time_slot", timeSlot)
	v.OneOf("time_slot", timeSlot, []string{"morning", "afternoon"})
}

// ValidateNotes validates the optional free-text notes.
func (v *BookingRequestValidator) ValidateNotes(notes string) {
	if notes == "" {
		return
	}
	v.MaxLength("notes", notes, 2000)
	v.SafeString("notes", notes)
	v.NoScriptTags("notes", notes)
}

// ValidateAll performs all booking request validations and returns errors.
func (v *BookingRequestValidator) ValidateAll(
	serviceKey, name, email, phone, address, scheduledDate, timeSlot, notes string,
) ValidationErrors {
	v.QuoteRequestValidator.ValidateAll(serviceKey, name, email, phone, address)
	v.ValidateSchedule(scheduledDate, timeSlot)
	v.ValidateNotes(notes)
	return v.Errors()
}

// SanitizeString removes potentially dangerous characters from a string.
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")
	// Replace control characters (except newlines/tabs) with spaces
	var builder strings.Builder
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			builder.WriteRune(' ')
		} else {
			builder.WriteRune(r)
		}
	}
	return strings.TrimSpace(builder.String())
}

// SanitizePhoneNumber normalizes a phone number to E.164-ish format.
func SanitizePhoneNumber(phone string) string {
	// Remove all non-digit characters except leading +
	hasPlus := strings.HasPrefix(phone, "+")
	digits := strings.Builder{}
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	result := digits.String()
	if hasPlus && result != "" {
		return "+" + result
	}
	return result
}
