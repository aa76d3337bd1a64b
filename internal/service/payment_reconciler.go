package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/email"
	"github.com/myhorsefarm/farmops/internal/hubspot"
	"github.com/myhorsefarm/farmops/internal/square"
)

// PaymentReconciler folds Square payment and refund events into the CRM:
// contact resolution, idempotent payment notes, deal movement, and the
// first-payment welcome email.
//
// Reconciliation never fails a webhook delivery. Every outcome, including a
// processing error, is reported in the result and acknowledged with a 200 so
// Square does not redeliver an event we cannot ever process.
type PaymentReconciler struct {
	payments PaymentClient
	crm      CRMClient
	email    EmailSender
	hubspot  *config.HubSpotConfig
	clock    clock.Clock
	logger   *zap.Logger
}

// NewPaymentReconciler creates a payment reconciler.
func NewPaymentReconciler(
	payments PaymentClient,
	crm CRMClient,
	sender EmailSender,
	hubspotCfg *config.HubSpotConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *PaymentReconciler {
	if clk == nil {
		clk = clock.New()
	}
	return &PaymentReconciler{
		payments: payments,
		crm:      crm,
		email:    sender,
		hubspot:  hubspotCfg,
		clock:    clk,
		logger:   logger,
	}
}

// ReconcileResult is the outcome returned in the webhook response body.
type ReconcileResult struct {
	OK        bool   `json:"ok"`
	Skipped   string `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
	Note      string `json:"note,omitempty"`
	ContactID string `json:"contact_id,omitempty"`
	DealID    string `json:"deal_id,omitempty"`
	// Type is "full" or "partial" for refund results.
	Type      string `json:"type,omitempty"`
	EmailSent bool   `json:"email_sent,omitempty"`
}

func skipped(reason string) *ReconcileResult {
	return &ReconcileResult{OK: true, Skipped: reason}
}

func failed(reason string) *ReconcileResult {
	return &ReconcileResult{OK: false, Error: reason}
}

// HandleEvent routes one webhook event. Events that are not completed
// payments or refunds are acknowledged and skipped.
func (r *PaymentReconciler) HandleEvent(ctx context.Context, event *square.WebhookEvent) *ReconcileResult {
	switch event.Type {
	case "payment.updated":
		p := event.Data.Object.Payment
		if p == nil || p.Status != "COMPLETED" {
			return skipped("not COMPLETED")
		}
		return r.handlePaymentCompleted(ctx, p.ID)
	case "refund.updated":
		ref := event.Data.Object.Refund
		if ref == nil || ref.Status != "COMPLETED" {
			return skipped("refund not COMPLETED")
		}
		return r.handleRefundCompleted(ctx, ref.ID)
	default:
		return skipped("unhandled event: " + event.Type)
	}
}

func (r *PaymentReconciler) handlePaymentCompleted(ctx context.Context, paymentID string) *ReconcileResult {
	logger := r.logger.With(zap.String("payment_id", paymentID))

	payment, err := r.payments.GetPayment(ctx, paymentID)
	if err != nil {
		logger.Error("payment fetch failed", zap.Error(err))
		return failed("failed to fetch payment")
	}
	if payment.CustomerID == "" {
		return failed("Payment has no customer ID")
	}

	customer, err := r.payments.GetCustomer(ctx, payment.CustomerID)
	if err != nil {
		logger.Error("customer fetch failed", zap.String("customer_id", payment.CustomerID), zap.Error(err))
		return failed("failed to fetch customer")
	}

	contact, err := r.resolveContact(ctx, customer)
	if err != nil {
		logger.Error("contact resolution failed", zap.Error(err))
		return failed("failed to resolve contact")
	}
	if contact == nil {
		return failed("Customer has no email or phone")
	}

	// The payment note doubles as the idempotency record, so it must land
	// before any deal work. A redelivered event that already wrote its
	// note is a no-op.
	if r.crm.HasAutomationTag(ctx, "contacts", contact.ID, hubspot.PaymentDedupKey(paymentID)) {
		logger.Info("duplicate payment event", zap.String("contact_id", contact.ID))
		return skipped("duplicate")
	}

	amount := hubspot.FormatCents(payment.AmountCents)
	date := r.eventDate(payment.CreatedAt)
	if err := r.crm.CreateContactNote(ctx, contact.ID, hubspot.PaymentTag(amount, date, paymentID)); err != nil {
		logger.Error("payment note failed", zap.String("contact_id", contact.ID), zap.Error(err))
		return failed("failed to record payment")
	}

	// Line item names only improve the deal name. Order lookup failures
	// never block reconciliation.
	var lineItems []string
	if payment.OrderID != "" {
		if order, err := r.payments.GetOrder(ctx, payment.OrderID); err == nil {
			for _, item := range order.LineItems {
				lineItems = append(lineItems, item.Name)
			}
		} else {
			logger.Debug("order fetch failed", zap.String("order_id", payment.OrderID), zap.Error(err))
		}
	}

	dealID := r.reconcileDeal(ctx, contact.ID, amount, lineItems, logger)

	emailSent := r.sendFirstPaymentEmail(ctx, contact.ID, customer, amount, lineItems, logger)

	logger.Info("payment reconciled",
		zap.String("contact_id", contact.ID),
		zap.String("deal_id", dealID),
		zap.String("amount", amount),
		zap.Bool("email_sent", emailSent),
	)

	return &ReconcileResult{OK: true, ContactID: contact.ID, DealID: dealID, EmailSent: emailSent}
}

// reconcileDeal reuses the contact's open deal when one exists, otherwise
// opens a new one at the completed stage. Deal failures are logged and
// swallowed; the payment note above is the durable record.
func (r *PaymentReconciler) reconcileDeal(ctx context.Context, contactID, amount string, lineItems []string, logger *zap.Logger) string {
	deal, err := r.crm.FindActiveDealForContact(ctx, contactID, r.hubspot.StageCompleted)
	if err != nil {
		logger.Warn("deal lookup failed", zap.Error(err))
		return ""
	}

	if deal != nil {
		if err := r.crm.UpdateDealStage(ctx, deal.ID, r.hubspot.StageCompleted); err != nil {
			logger.Warn("deal stage update failed", zap.String("deal_id", deal.ID), zap.Error(err))
		}
		if err := r.crm.UpdateDealAmount(ctx, deal.ID, amount); err != nil {
			logger.Warn("deal amount update failed", zap.String("deal_id", deal.ID), zap.Error(err))
		}
		return deal.ID
	}

	dealName := "Square Payment"
	if len(lineItems) > 0 {
		dealName = lineItems[0]
		if len(lineItems) > 1 {
			dealName += " +" + strconv.Itoa(len(lineItems)-1) + " more"
		}
	}
	created, err := r.crm.CreateDeal(ctx, contactID, dealName, amount, r.hubspot.StageCompleted)
	if err != nil {
		logger.Warn("deal create failed", zap.Error(err))
		return ""
	}
	return created.ID
}

// sendFirstPaymentEmail welcomes a customer on their first recorded payment.
// The note just written counts toward the tag total, so first payments see a
// count of one.
func (r *PaymentReconciler) sendFirstPaymentEmail(ctx context.Context, contactID string, customer *square.Customer, amount string, lineItems []string, logger *zap.Logger) bool {
	if customer.Email == "" {
		return false
	}
	if r.crm.CountAutomationTags(ctx, "contacts", contactID, hubspot.PaymentTagPrefix) > 1 {
		return false
	}
	if !r.crm.IsSubscribed(ctx, customer.Email) {
		return false
	}

	tmpl := email.FirstPaymentWelcomeEmail(customer.FirstName, amount, lineItems, r.email.UnsubscribeURL(customer.Email))
	if err := r.email.Send(ctx, customer.Email, tmpl.Subject, tmpl.HTML); err != nil {
		logger.Warn("first payment email failed", zap.Error(err))
		return false
	}
	return true
}

func (r *PaymentReconciler) handleRefundCompleted(ctx context.Context, refundID string) *ReconcileResult {
	logger := r.logger.With(zap.String("refund_id", refundID))

	refund, err := r.payments.GetRefund(ctx, refundID)
	if err != nil {
		logger.Error("refund fetch failed", zap.Error(err))
		return failed("failed to fetch refund")
	}
	if refund.PaymentID == "" {
		return failed("Refund has no payment ID")
	}

	payment, err := r.payments.GetPayment(ctx, refund.PaymentID)
	if err != nil {
		logger.Error("original payment fetch failed", zap.String("payment_id", refund.PaymentID), zap.Error(err))
		return failed("failed to fetch original payment")
	}
	if payment.CustomerID == "" {
		return failed("Payment has no customer ID")
	}

	customer, err := r.payments.GetCustomer(ctx, payment.CustomerID)
	if err != nil {
		logger.Error("customer fetch failed", zap.String("customer_id", payment.CustomerID), zap.Error(err))
		return failed("failed to fetch customer")
	}

	contact, err := r.resolveContact(ctx, customer)
	if err != nil {
		logger.Error("contact resolution failed", zap.Error(err))
		return failed("failed to resolve contact")
	}
	if contact == nil {
		return failed("Customer has no email or phone")
	}

	if r.crm.HasAutomationTag(ctx, "contacts", contact.ID, hubspot.RefundDedupKey(refundID)) {
		logger.Info("duplicate refund event", zap.String("contact_id", contact.ID))
		return skipped("duplicate")
	}

	amount := hubspot.FormatCents(refund.AmountCents)
	date := r.eventDate(refund.CreatedAt)
	note := hubspot.RefundTag(amount, date, refund.ID, refund.PaymentID, refund.Reason)
	if err := r.crm.CreateContactNote(ctx, contact.ID, note); err != nil {
		logger.Error("refund note failed", zap.String("contact_id", contact.ID), zap.Error(err))
		return failed("failed to record refund")
	}

	// The original payment's note marks which deal the money landed on.
	deal, err := r.crm.FindDealByNoteContent(ctx, contact.ID, hubspot.PaymentDedupKey(refund.PaymentID))
	if err != nil {
		logger.Warn("deal lookup by payment note failed", zap.Error(err))
		return &ReconcileResult{OK: true, ContactID: contact.ID, Note: "No matching deal found for original payment"}
	}
	if deal == nil {
		return &ReconcileResult{OK: true, ContactID: contact.ID, Note: "No matching deal found for original payment"}
	}

	refundAmount := float64(refund.AmountCents) / 100
	dealAmount, _ := strconv.ParseFloat(deal.Properties["amount"], 64)

	refundType := "partial"
	if refundAmount >= dealAmount {
		refundType = "full"
		if err := r.crm.UpdateDealStage(ctx, deal.ID, r.hubspot.StageLost); err != nil {
			logger.Warn("deal stage update failed", zap.String("deal_id", deal.ID), zap.Error(err))
		}
	} else {
		newAmount := strconv.FormatFloat(dealAmount-refundAmount, 'f', 2, 64)
		if err := r.crm.UpdateDealAmount(ctx, deal.ID, newAmount); err != nil {
			logger.Warn("deal amount update failed", zap.String("deal_id", deal.ID), zap.Error(err))
		}
	}

	if err := r.crm.CreateDealNote(ctx, deal.ID, note); err != nil {
		logger.Warn("refund deal note failed", zap.String("deal_id", deal.ID), zap.Error(err))
	}

	logger.Info("refund reconciled",
		zap.String("contact_id", contact.ID),
		zap.String("deal_id", deal.ID),
		zap.String("type", refundType),
		zap.String("amount", amount),
	)

	return &ReconcileResult{OK: true, ContactID: contact.ID, DealID: deal.ID, Type: refundType}
}

// resolveContact maps a Square customer onto a CRM contact: by email first,
// then by phone, creating one when neither matches. A customer with no
// email and no phone resolves to nil.
func (r *PaymentReconciler) resolveContact(ctx context.Context, customer *square.Customer) (*hubspot.Contact, error) {
	var contact *hubspot.Contact
	var err error

	if customer.Email != "" {
		contact, err = r.crm.FindContactByEmail(ctx, customer.Email)
		if err != nil {
			return nil, err
		}
	}
	if contact == nil && customer.Phone != "" {
		contact, err = r.crm.FindContactByPhone(ctx, customer.Phone)
		if err != nil {
			return nil, err
		}
	}
	if contact != nil {
		return contact, nil
	}
	if customer.Email == "" && customer.Phone == "" {
		return nil, nil
	}
	return r.crm.CreateContact(ctx, customer.Email, customer.FirstName, customer.LastName, customer.Phone)
}

// eventDate extracts the YYYY-MM-DD date from a Square RFC 3339 timestamp,
// falling back to today when the timestamp is absent or malformed.
func (r *PaymentReconciler) eventDate(createdAt string) string {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		return t.UTC().Format("2006-01-02")
	}
	return r.clock.NowUTC().Format("2006-01-02")
}
