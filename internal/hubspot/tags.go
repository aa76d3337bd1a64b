package hubspot

import (
	"fmt"
	"time"
)

// Automation tags written into note bodies. Substring presence of a tag on a
// contact or deal is the idempotency check for the corresponding action.
const (
	PaymentTagPrefix = "[SQUARE:PAYMENT]"
	RefundTagPrefix  = "[SQUARE:REFUND]"

	TagWelcome1     = "[AUTO:WELCOME_1]"
	TagWelcome2     = "[AUTO:WELCOME_2]"
	TagWelcome3     = "[AUTO:WELCOME_3]"
	TagMilestone6M  = "[AUTO:MILESTONE_6M]"
	TagMilestone12M = "[AUTO:MILESTONE_12M]"
	TagReferral     = "[AUTO:REFERRAL]"
	TagReview       = "[AUTO:REVIEW]"
)

// FormatCents renders an integer cent amount as a dollar string with two
// decimals, e.g. 15000 -> "150.00".
func FormatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

// PaymentTag is the note body recorded for a processed payment. The trailing
// "Payment ID: <id>" portion doubles as the dedup key.
func PaymentTag(amount, date, paymentID string) string {
	return fmt.Sprintf("%s $%s on %s - Payment ID: %s", PaymentTagPrefix, amount, date, paymentID)
}

// RefundTag is the note body recorded for a processed refund.
func RefundTag(amount, date, refundID, paymentID, reason string) string {
	tag := fmt.Sprintf("%s $%s on %s - Refund ID: %s (Payment: %s)",
		RefundTagPrefix, amount, date, refundID, paymentID)
	if reason != "" {
		tag += " Reason: " + reason
	}
	return tag
}

// PaymentDedupKey is the substring checked to detect an already processed
// payment, and the marker used to trace a refund back to its deal.
func PaymentDedupKey(paymentID string) string {
	return "Payment ID: " + paymentID
}

// RefundDedupKey is the substring checked to detect an already processed
// refund.
func RefundDedupKey(refundID string) string {
	return "Refund ID: " + refundID
}

// QuoteNote is the note body recorded on a contact when a quote is created.
func QuoteNote(quoteNumber, source, serviceName, total string) string {
	return fmt.Sprintf("[QUOTE:%s] Quote created via %s for %s. Amount: $%s",
		quoteNumber, source, serviceName, total)
}

// BookingNote is the note body recorded on a contact when a booking is made.
func BookingNote(bookingNumber, serviceName, date, timeSlot string) string {
	return fmt.Sprintf("[BOOKING:%s] Booked %s for %s (%s)",
		bookingNumber, serviceName, date, timeSlot)
}

// UpsellTag is the contact tag for the upsell email, scoped to a year so the
// campaign can resend annually.
func UpsellTag(year int) string {
	return fmt.Sprintf("[AUTO:UPSELL_%d]", year)
}

// ReviewPeriodTag is the contact-level review cooldown tag for the half-year
// containing t, e.g. "[AUTO:REVIEW_2026-H1]".
func ReviewPeriodTag(t time.Time) string {
	half := "H1"
	if t.Month() > time.June {
		half = "H2"
	}
	return fmt.Sprintf("[AUTO:REVIEW_%d-%s]", t.Year(), half)
}

// PreseasonTag is the contact tag for the yearly pre-season campaign.
func PreseasonTag(year int) string {
	return fmt.Sprintf("[AUTO:PRESEASON_%d]", year)
}
