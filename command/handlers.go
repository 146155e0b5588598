package command

import (
	"context"

	"github.com/ckgmra/amare-api/core"
	gocmd "github.com/goliatone/go-command"
)

type DeliveryMutatingService interface {
	EnqueueAndSend(ctx context.Context, event core.ConversionEvent) (core.SendOutcome, error)
	ProcessPayment(ctx context.Context, notification core.PaymentNotification) error
	ReconcileDeferred(ctx context.Context, expectedCount int, knownContactID int64) error
	HandleWebhook(ctx context.Context, notifications []core.PaymentNotification) (core.WebhookSummary, error)
}

type RetryDispatcher interface {
	Tick(ctx context.Context) (core.RetrySummary, error)
}

type EnqueueDeliveryCommand struct {
	service DeliveryMutatingService
}

func NewEnqueueDeliveryCommand(service DeliveryMutatingService) *EnqueueDeliveryCommand {
	return &EnqueueDeliveryCommand{service: service}
}

func (c *EnqueueDeliveryCommand) Execute(ctx context.Context, msg EnqueueDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.EnqueueAndSend(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessPaymentCommand struct {
	service DeliveryMutatingService
}

func NewProcessPaymentCommand(service DeliveryMutatingService) *ProcessPaymentCommand {
	return &ProcessPaymentCommand{service: service}
}

func (c *ProcessPaymentCommand) Execute(ctx context.Context, msg ProcessPaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	return c.service.ProcessPayment(ctx, msg.Notification)
}

type HandleWebhookCommand struct {
	service DeliveryMutatingService
}

func NewHandleWebhookCommand(service DeliveryMutatingService) *HandleWebhookCommand {
	return &HandleWebhookCommand{service: service}
}

func (c *HandleWebhookCommand) Execute(ctx context.Context, msg HandleWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.HandleWebhook(ctx, msg.Notifications)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcileDeferredCommand struct {
	service DeliveryMutatingService
}

func NewReconcileDeferredCommand(service DeliveryMutatingService) *ReconcileDeferredCommand {
	return &ReconcileDeferredCommand{service: service}
}

func (c *ReconcileDeferredCommand) Execute(ctx context.Context, msg ReconcileDeferredMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reconcile service is required")
	}
	return c.service.ReconcileDeferred(ctx, msg.ExpectedCount, msg.KnownContactID)
}

type DispatchDueCommand struct {
	dispatcher RetryDispatcher
}

func NewDispatchDueCommand(dispatcher RetryDispatcher) *DispatchDueCommand {
	return &DispatchDueCommand{dispatcher: dispatcher}
}

func (c *DispatchDueCommand) Execute(ctx context.Context, _ DispatchDueMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: retry dispatcher is required")
	}
	out, err := c.dispatcher.Tick(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
