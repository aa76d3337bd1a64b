// Package pricing computes price breakdowns for catalog services. It is
// pure: no I/O, no clock, deterministic for a given service and input set.
package pricing

import (
	"math"
	"strconv"

	"github.com/myhorsefarm/farmops/internal/domain"
)

// Calculate computes the price breakdown for a service given the customer's
// property details. Missing or malformed numeric inputs coerce to the unit's
// default quantity rather than erroring; this leniency is deliberate so the
// quote form never rejects a submission over a units field.
func Calculate(svc *domain.Service, details map[string]any) domain.PricingBreakdown {
	base := baseAmount(svc, details)

	breakdown := domain.PricingBreakdown{
		Base:        round2(base),
		Adjustments: []domain.Adjustment{},
	}

	// A minimum charge only kicks in when there is something to charge.
	// A zero-quantity submission prices at zero, it does not bill the
	// minimum.
	if svc.MinimumCharge > 0 && breakdown.Base > 0 && breakdown.Base < svc.MinimumCharge {
		breakdown.Adjustments = append(breakdown.Adjustments, domain.Adjustment{
			Label:  "Minimum charge applied",
			Amount: round2(svc.MinimumCharge - breakdown.Base),
		})
	}

	total := breakdown.Base
	for _, adj := range breakdown.Adjustments {
		total += adj.Amount
	}
	breakdown.Total = round2(total)

	return breakdown
}

// baseAmount computes the pre-adjustment amount for the service's unit.
func baseAmount(svc *domain.Service, details map[string]any) float64 {
	switch svc.Unit {
	case domain.UnitPerLoad:
		return svc.BaseRate * quantity(details, "loads")
	case domain.UnitPerCan:
		return svc.BaseRate * quantity(details, "cans")
	case domain.UnitPerTon:
		tons := quantity(details, "estimated_tons")
		return svc.BaseRate * math.Min(tons, domain.MaxTonsPerLoad)
	case domain.UnitPerYard:
		return svc.BaseRate * quantity(details, "yards")
	case domain.UnitPerSqft:
		return svc.BaseRate * quantity(details, "sqft")
	case domain.UnitFlat:
		return svc.BaseRate
	default:
		return svc.BaseRate
	}
}

// quantity extracts a numeric detail field, defaulting to 1 when the field
// is absent or non-numeric. An explicit zero stays zero, which is what lets
// a zero-quantity submission price at zero instead of the minimum.
func quantity(details map[string]any, key string) float64 {
	raw, ok := details[key]
	if !ok {
		return 1
	}
	v, ok := toFloat(raw)
	if !ok {
		return 1
	}
	return v
}

// toFloat coerces the loosely typed detail values that arrive from JSON
// bodies and chat tool calls.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// round2 rounds to 2 decimal places, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
