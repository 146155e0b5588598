package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EnqueueDeliveryMessage]   = (*EnqueueDeliveryCommand)(nil)
	_ gocmd.Commander[ProcessPaymentMessage]    = (*ProcessPaymentCommand)(nil)
	_ gocmd.Commander[HandleWebhookMessage]     = (*HandleWebhookCommand)(nil)
	_ gocmd.Commander[ReconcileDeferredMessage] = (*ReconcileDeferredCommand)(nil)
	_ gocmd.Commander[DispatchDueMessage]       = (*DispatchDueCommand)(nil)
)
