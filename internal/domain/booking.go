package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking.
type BookingStatus string

// Booking lifecycle states.
const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// TimeSlot is the half-day appointment window.
type TimeSlot string

// Appointment time slots.
const (
	SlotMorning   TimeSlot = "morning"
	SlotAfternoon TimeSlot = "afternoon"
)

// ValidTimeSlot reports whether s is a recognized time slot.
func ValidTimeSlot(s TimeSlot) bool {
	return s == SlotMorning || s == SlotAfternoon
}

// Booking represents a scheduled service appointment. A booking may originate
// from an accepted quote or be created directly.
type Booking struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	BookingNumber string        `json:"booking_number" db:"booking_number"`
	QuoteID       *uuid.UUID    `json:"quote_id,omitempty" db:"quote_id"`
	Status        BookingStatus `json:"status" db:"status"`

	CustomerName  string `json:"customer_name" db:"customer_name"`
	CustomerEmail string `json:"customer_email" db:"customer_email"`
	CustomerPhone string `json:"customer_phone" db:"customer_phone"`
	Address       string `json:"address,omitempty" db:"address"`

	ServiceKey string `json:"service_key" db:"service_key"`
	// ScheduledDate is the appointment calendar date in YYYY-MM-DD form.
	ScheduledDate string   `json:"scheduled_date" db:"scheduled_date"`
	TimeSlot      TimeSlot `json:"time_slot" db:"time_slot"`
	Notes         string   `json:"notes,omitempty" db:"notes"`

	HubSpotDealID string `json:"hubspot_deal_id,omitempty" db:"hubspot_deal_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Denormalized service display name, populated on read.
	ServiceName string `json:"service_name,omitempty" db:"-"`
}
