package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusDead    DeliveryStatus = "dead"
)

// Terminal reports whether the status ends automatic processing. Failed rows
// re-enter the retry scan; sent and dead rows never do.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusDead
}

type EventSource string

const (
	EventSourceSubscribe EventSource = "subscribe"
	EventSourcePurchase  EventSource = "purchase"
)

type EventName string

const (
	EventNameSubscribe        EventName = "Subscribe"
	EventNamePurchase         EventName = "Purchase"
	EventNameRecurringPayment EventName = "RecurringPayment"
)

// DeliveryAttempt is one row of the append-only delivery ledger. Rows are
// never mutated or deleted; every Sender invocation appends a new row with
// the same QueueID and a later UpdatedAt, and the row with the maximum
// UpdatedAt is the authoritative state for that queue id.
type DeliveryAttempt struct {
	QueueID          string
	Source           EventSource
	Brand            string
	EventName        EventName
	Email            string
	EmailHash        string
	KeapContactID    int64
	OrderID          int64
	EventID          string
	PixelID          string
	EventTime        time.Time
	ActionSource     string
	EventSourceURL   string
	Payload          map[string]any
	Status           DeliveryStatus
	AttemptCount     int
	NextAttemptAt    time.Time
	LastHTTPStatus   int
	LastErrorMessage string
	LastResponseJSON string
	LastLatencyMS    int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ConversionEvent is the outbound payload handed to the Sender. Payload
// carries pre-hashed PII plus non-PII attribution fields; raw PII must never
// be written into it.
type ConversionEvent struct {
	Source         EventSource
	Brand          string
	Name           EventName
	EventID        string
	EventTime      time.Time
	ActionSource   string
	EventSourceURL string
	Email          string
	EmailHash      string
	KeapContactID  int64
	OrderID        int64
	Payload        map[string]any
}

// SendOutcome is the structured result of one Sender invocation. The Sender
// contract never returns a Go error; every failure mode is a field here.
type SendOutcome struct {
	Success      bool
	HTTPStatus   int
	ResponseBody string
	LatencyMS    int64
	ErrorMessage string
}

// PaymentNotification is an inbound payment signal. A PaymentID of zero is a
// placeholder meaning the CRM recorded a payment whose identifier is not yet
// resolvable; placeholder notifications are handed to the Reconciler instead
// of the immediate pipeline.
type PaymentNotification struct {
	PaymentID int64
	ContactID int64
}

func (n PaymentNotification) IsPlaceholder() bool {
	return n.PaymentID == 0
}

type ClassificationDecision string

const (
	DecisionPurchase         ClassificationDecision = "purchase"
	DecisionRecurringPayment ClassificationDecision = "recurring_payment"
	DecisionSkip             ClassificationDecision = "skip"
)

// Classification is derived per payment and logged for auditing; it is never
// persisted on its own.
type Classification struct {
	Decision        ClassificationDecision
	PlanID          int64
	PriorPaidOrders int
	Defaulted       bool
	Reason          string
}

// Transaction is the CRM payment/transaction record consumed by the
// classifier and the reconciler.
type Transaction struct {
	ID        int64
	ContactID int64
	Amount    float64
	Currency  string
	OrderID   int64
	PaidAt    time.Time
}

type Contact struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

const OrderStatusPaid = "paid"

type Order struct {
	ID                 int64
	ContactID          int64
	Status             string
	SubscriptionPlanID int64
	CreatedAt          time.Time
}

// RetrySummary is the per-tick result of a retry worker pass. It is emitted
// for observability only and carries no correctness weight.
type RetrySummary struct {
	Processed int
	Sent      int
	Failed    int
	Dead      int
}

// WebhookSummary describes how one inbound webhook call was split between
// immediately processable notifications and deferred placeholders.
type WebhookSummary struct {
	Received     int
	Processed    int
	Placeholders int
}

// PurchaseEventID derives the destination-side dedup key for purchase-family
// events. The same key lets the reconciler recognize transactions that were
// already handled without re-deriving classification.
func PurchaseEventID(paymentID int64) string {
	return "purchase_txn_" + strconv.FormatInt(paymentID, 10)
}

// HashEmail normalizes and hashes an email address for use in outbound
// payloads. Empty input hashes to the empty string, not the hash of "".
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NewSubscribeEvent builds the outbound event for a signup webhook.
func NewSubscribeEvent(brand string, email string, sourceURL string, eventTime time.Time) ConversionEvent {
	return ConversionEvent{
		Source:         EventSourceSubscribe,
		Brand:          strings.TrimSpace(brand),
		Name:           EventNameSubscribe,
		EventTime:      eventTime.UTC(),
		ActionSource:   "website",
		EventSourceURL: strings.TrimSpace(sourceURL),
		Email:          strings.TrimSpace(email),
		EmailHash:      HashEmail(email),
		Payload:        map[string]any{},
	}
}
