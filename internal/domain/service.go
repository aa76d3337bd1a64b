// Package domain contains the core business entities and repository interfaces.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PricingUnit identifies how a service's price is computed.
type PricingUnit string

// Pricing units for the service catalog.
const (
	UnitPerLoad PricingUnit = "per_load"
	UnitPerCan  PricingUnit = "per_can"
	UnitPerTon  PricingUnit = "per_ton"
	UnitPerYard PricingUnit = "per_yard"
	UnitPerSqft PricingUnit = "per_sqft"
	UnitFlat    PricingUnit = "flat"
)

// MaxTonsPerLoad caps the billable tonnage on per-ton services. Anything
// above a single truck load is clamped, not rejected.
const MaxTonsPerLoad = 10.0

// Service is a catalog entry describing one offered service and how it is
// priced. Services are referenced by key and never copied onto quotes.
type Service struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Key         string      `json:"key" db:"key"`
	Name        string      `json:"name" db:"name"`
	Description string      `json:"description,omitempty" db:"description"`
	Unit        PricingUnit `json:"unit" db:"unit"`
	BaseRate    float64     `json:"base_rate" db:"base_rate"`
	// MinimumCharge, when > 0, raises any positive computed base up to this
	// amount. A zero base is left alone.
	MinimumCharge float64 `json:"minimum_charge,omitempty" db:"minimum_charge"`
	// RequiresSiteVisit marks services that cannot be priced instantly;
	// quotes for them start in pending_site_visit.
	RequiresSiteVisit bool `json:"requires_site_visit" db:"requires_site_visit"`
	// Recurring marks subscription-style services (e.g. weekly can pickup).
	Recurring        bool     `json:"recurring" db:"recurring"`
	FrequencyOptions []string `json:"frequency_options,omitempty" db:"frequency_options"`
	Active           bool     `json:"active" db:"active"`
	DisplayOrder     int      `json:"display_order" db:"display_order"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Adjustment is one named, signed modification applied on top of a base price.
type Adjustment struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// PricingBreakdown is the computed price for a quote. It is derived, never
// stored independently of the quote that owns it.
// Invariant: Total == Base + sum(Adjustments), rounded to cents.
type PricingBreakdown struct {
	Base        float64      `json:"base"`
	Adjustments []Adjustment `json:"adjustments"`
	Total       float64      `json:"total"`
}
