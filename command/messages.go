package command

import (
	"strings"

	"github.com/ckgmra/amare-api/core"
)

const (
	TypeEnqueueDelivery   = "amare.command.delivery.enqueue"
	TypeProcessPayment    = "amare.command.payment.process"
	TypeHandleWebhook     = "amare.command.webhook.handle"
	TypeReconcileDeferred = "amare.command.reconcile.deferred"
	TypeDispatchDue       = "amare.command.delivery.dispatch_due"
)

type EnqueueDeliveryMessage struct {
	Event core.ConversionEvent
}

func (EnqueueDeliveryMessage) Type() string { return TypeEnqueueDelivery }

func (m EnqueueDeliveryMessage) Validate() error {
	if strings.TrimSpace(string(m.Event.Name)) == "" {
		return commandInvalidInputError("command: event name is required")
	}
	if strings.TrimSpace(m.Event.Brand) == "" {
		return commandInvalidInputError("command: event brand is required")
	}
	// Purchase-family events carry the transaction-derived dedup key.
	// Subscribe events mint none.
	if m.Event.Source == core.EventSourcePurchase && strings.TrimSpace(m.Event.EventID) == "" {
		return commandInvalidInputError("command: event id is required for purchase events")
	}
	return nil
}

type ProcessPaymentMessage struct {
	Notification core.PaymentNotification
}

func (ProcessPaymentMessage) Type() string { return TypeProcessPayment }

func (m ProcessPaymentMessage) Validate() error {
	if m.Notification.PaymentID <= 0 {
		return commandInvalidInputError("command: payment id is required")
	}
	return nil
}

type HandleWebhookMessage struct {
	Notifications []core.PaymentNotification
}

func (HandleWebhookMessage) Type() string { return TypeHandleWebhook }

func (m HandleWebhookMessage) Validate() error {
	for _, notification := range m.Notifications {
		if notification.PaymentID < 0 {
			return commandInvalidInputError("command: payment id must not be negative")
		}
	}
	return nil
}

type ReconcileDeferredMessage struct {
	ExpectedCount  int
	KnownContactID int64
}

func (ReconcileDeferredMessage) Type() string { return TypeReconcileDeferred }

func (m ReconcileDeferredMessage) Validate() error {
	if m.ExpectedCount <= 0 {
		return commandInvalidInputError("command: expected count must be positive")
	}
	if m.KnownContactID < 0 {
		return commandInvalidInputError("command: contact id must not be negative")
	}
	return nil
}

type DispatchDueMessage struct{}

func (DispatchDueMessage) Type() string { return TypeDispatchDue }

func (DispatchDueMessage) Validate() error { return nil }
