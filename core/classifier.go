package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Classifier decides what kind of business event a payment represents: a
// first-time purchase, a recurring subscription charge, or a non-billable
// installment on an order that was already reported. Classification-step
// errors never fail the pipeline; the decision defaults to Purchase because
// a possibly-mislabeled event is preferred over no event at all.
type Classifier struct {
	crm    CRMClient
	logger Logger
	now    func() time.Time
}

func NewClassifier(crm CRMClient, logger Logger) (*Classifier, error) {
	if crm == nil {
		return nil, fmt.Errorf("core: crm client is required")
	}
	if logger == nil {
		logger = nopLogger()
	}
	return &Classifier{
		crm:    crm,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Classify resolves a payment id into an outbound conversion event. The
// returned Classification is always populated for auditing, even when the
// decision was defaulted. A Skip decision means no event is generated. An
// error is returned only when the transaction or contact cannot be fetched
// at all, since without them there is nothing to send.
func (c *Classifier) Classify(ctx context.Context, paymentID int64) (ConversionEvent, Classification, error) {
	if c == nil || c.crm == nil {
		return ConversionEvent{}, Classification{}, fmt.Errorf("core: classifier is not configured")
	}
	if paymentID <= 0 {
		return ConversionEvent{}, Classification{}, fmt.Errorf("core: payment id is required")
	}

	txn, err := c.crm.GetTransaction(ctx, paymentID)
	if err != nil {
		return ConversionEvent{}, Classification{}, fmt.Errorf("core: fetch transaction %d: %w", paymentID, err)
	}
	contact, err := c.crm.GetContact(ctx, txn.ContactID)
	if err != nil {
		return ConversionEvent{}, Classification{}, fmt.Errorf("core: fetch contact %d: %w", txn.ContactID, err)
	}

	brand := ""
	if detected, brandErr := c.crm.DetectBrandFromTags(ctx, contact.ID); brandErr == nil {
		brand = strings.TrimSpace(detected)
	} else {
		c.logger.Warn("brand detection failed",
			"payment_id", paymentID,
			"contact_id", contact.ID,
			"error", brandErr.Error(),
		)
	}

	classification := c.classifyOrder(ctx, txn)
	c.logDecision(paymentID, txn, classification)

	if classification.Decision == DecisionSkip {
		return ConversionEvent{}, classification, nil
	}

	name := EventNamePurchase
	if classification.Decision == DecisionRecurringPayment {
		name = EventNameRecurringPayment
	}

	event := ConversionEvent{
		Source:        EventSourcePurchase,
		Brand:         brand,
		Name:          name,
		EventID:       PurchaseEventID(paymentID),
		EventTime:     c.eventTime(txn),
		ActionSource:  "website",
		Email:         strings.TrimSpace(contact.Email),
		EmailHash:     HashEmail(contact.Email),
		KeapContactID: contact.ID,
		OrderID:       txn.OrderID,
		Payload: map[string]any{
			"value":    txn.Amount,
			"currency": strings.ToUpper(strings.TrimSpace(txn.Currency)),
			"order_id": txn.OrderID,
		},
	}
	return event, classification, nil
}

func (c *Classifier) classifyOrder(ctx context.Context, txn Transaction) Classification {
	if txn.OrderID == 0 {
		return Classification{Decision: DecisionPurchase, Reason: "no order on transaction"}
	}

	order, err := c.crm.GetOrder(ctx, txn.OrderID)
	if err != nil {
		return Classification{
			Decision:  DecisionPurchase,
			Defaulted: true,
			Reason:    fmt.Sprintf("fetch order %d: %v", txn.OrderID, err),
		}
	}
	if order.SubscriptionPlanID == 0 {
		return Classification{Decision: DecisionPurchase, Reason: "order has no subscription plan"}
	}

	// Installment heuristic: an order created before today was already
	// reported by an earlier charge, so this charge produces no event. The
	// date check stands in for a dedup lookup and is kept as observed.
	if !sameDay(order.CreatedAt, c.nowUTC()) {
		return Classification{
			Decision: DecisionSkip,
			PlanID:   order.SubscriptionPlanID,
			Reason:   fmt.Sprintf("order %d created %s, not today", order.ID, order.CreatedAt.UTC().Format("2006-01-02")),
		}
	}

	orders, err := c.crm.GetOrdersByContact(ctx, txn.ContactID, OrderStatusPaid)
	if err != nil {
		return Classification{
			Decision:  DecisionPurchase,
			PlanID:    order.SubscriptionPlanID,
			Defaulted: true,
			Reason:    fmt.Sprintf("list paid orders for contact %d: %v", txn.ContactID, err),
		}
	}

	prior := 0
	for _, other := range orders {
		if other.ID == order.ID {
			continue
		}
		if other.SubscriptionPlanID == order.SubscriptionPlanID {
			prior++
		}
	}
	if prior == 0 {
		return Classification{
			Decision: DecisionPurchase,
			PlanID:   order.SubscriptionPlanID,
			Reason:   "first billing on subscription plan",
		}
	}
	return Classification{
		Decision:        DecisionRecurringPayment,
		PlanID:          order.SubscriptionPlanID,
		PriorPaidOrders: prior,
		Reason:          fmt.Sprintf("%d prior paid orders on plan %d", prior, order.SubscriptionPlanID),
	}
}

func (c *Classifier) logDecision(paymentID int64, txn Transaction, classification Classification) {
	if c == nil || c.logger == nil {
		return
	}
	// Misclassification is a silent failure mode; every decision is logged
	// with its inputs for after-the-fact auditing.
	c.logger.Info("payment classified",
		"payment_id", paymentID,
		"contact_id", txn.ContactID,
		"order_id", txn.OrderID,
		"decision", string(classification.Decision),
		"plan_id", classification.PlanID,
		"prior_paid_orders", classification.PriorPaidOrders,
		"defaulted", classification.Defaulted,
		"reason", classification.Reason,
	)
}

func (c *Classifier) eventTime(txn Transaction) time.Time {
	if !txn.PaidAt.IsZero() {
		return txn.PaidAt.UTC()
	}
	return c.nowUTC()
}

func (c *Classifier) nowUTC() time.Time {
	if c != nil && c.now != nil {
		return c.now().UTC()
	}
	return time.Now().UTC()
}

func sameDay(a time.Time, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.Month() == bu.Month() && au.Day() == bu.Day()
}
