package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ckgmra/amare-api/core"
	gocmd "github.com/goliatone/go-command"
)

type stubDeliveryService struct {
	enqueueFn   func(ctx context.Context, event core.ConversionEvent) (core.SendOutcome, error)
	processFn   func(ctx context.Context, notification core.PaymentNotification) error
	reconcileFn func(ctx context.Context, expectedCount int, knownContactID int64) error
	webhookFn   func(ctx context.Context, notifications []core.PaymentNotification) (core.WebhookSummary, error)
}

func (s stubDeliveryService) EnqueueAndSend(ctx context.Context, event core.ConversionEvent) (core.SendOutcome, error) {
	if s.enqueueFn == nil {
		return core.SendOutcome{}, nil
	}
	return s.enqueueFn(ctx, event)
}

func (s stubDeliveryService) ProcessPayment(ctx context.Context, notification core.PaymentNotification) error {
	if s.processFn == nil {
		return nil
	}
	return s.processFn(ctx, notification)
}

func (s stubDeliveryService) ReconcileDeferred(ctx context.Context, expectedCount int, knownContactID int64) error {
	if s.reconcileFn == nil {
		return nil
	}
	return s.reconcileFn(ctx, expectedCount, knownContactID)
}

func (s stubDeliveryService) HandleWebhook(ctx context.Context, notifications []core.PaymentNotification) (core.WebhookSummary, error) {
	if s.webhookFn == nil {
		return core.WebhookSummary{}, nil
	}
	return s.webhookFn(ctx, notifications)
}

type stubDispatcher struct {
	tickFn func(ctx context.Context) (core.RetrySummary, error)
}

func (s stubDispatcher) Tick(ctx context.Context) (core.RetrySummary, error) {
	if s.tickFn == nil {
		return core.RetrySummary{}, nil
	}
	return s.tickFn(ctx)
}

func TestEnqueueDeliveryCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.SendOutcome{Success: true, HTTPStatus: 200}
	called := false

	svc := stubDeliveryService{
		enqueueFn: func(_ context.Context, event core.ConversionEvent) (core.SendOutcome, error) {
			called = true
			if event.EventID != "purchase_txn_845325" {
				t.Fatalf("unexpected event id %q", event.EventID)
			}
			return expected, nil
		},
	}

	cmd := NewEnqueueDeliveryCommand(svc)
	collector := gocmd.NewResult[core.SendOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, EnqueueDeliveryMessage{Event: core.ConversionEvent{
		Brand:   "amare",
		Name:    core.EventNamePurchase,
		EventID: "purchase_txn_845325",
	}})
	if err != nil {
		t.Fatalf("execute enqueue delivery: %v", err)
	}
	if !called {
		t.Fatalf("expected delivery service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if !result.Success || result.HTTPStatus != expected.HTTPStatus {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("process payment", func(t *testing.T) {
		called := false
		svc := stubDeliveryService{
			processFn: func(_ context.Context, notification core.PaymentNotification) error {
				called = true
				if notification.PaymentID != 845325 || notification.ContactID != 42 {
					t.Fatalf("unexpected notification: %#v", notification)
				}
				return nil
			},
		}
		cmd := NewProcessPaymentCommand(svc)
		msg := ProcessPaymentMessage{Notification: core.PaymentNotification{PaymentID: 845325, ContactID: 42}}
		if err := cmd.Execute(context.Background(), msg); err != nil {
			t.Fatalf("execute process payment: %v", err)
		}
		if !called {
			t.Fatalf("expected process payment invocation")
		}
	})

	t.Run("reconcile deferred", func(t *testing.T) {
		called := false
		svc := stubDeliveryService{
			reconcileFn: func(_ context.Context, expectedCount int, knownContactID int64) error {
				called = true
				if expectedCount != 2 || knownContactID != 42 {
					t.Fatalf("unexpected reconcile input: %d %d", expectedCount, knownContactID)
				}
				return nil
			},
		}
		cmd := NewReconcileDeferredCommand(svc)
		msg := ReconcileDeferredMessage{ExpectedCount: 2, KnownContactID: 42}
		if err := cmd.Execute(context.Background(), msg); err != nil {
			t.Fatalf("execute reconcile deferred: %v", err)
		}
		if !called {
			t.Fatalf("expected reconcile invocation")
		}
	})

	t.Run("handle webhook", func(t *testing.T) {
		expected := core.WebhookSummary{Received: 3, Processed: 2, Placeholders: 1}
		svc := stubDeliveryService{
			webhookFn: func(_ context.Context, notifications []core.PaymentNotification) (core.WebhookSummary, error) {
				if len(notifications) != 3 {
					t.Fatalf("expected three notifications, got %d", len(notifications))
				}
				return expected, nil
			},
		}
		cmd := NewHandleWebhookCommand(svc)
		collector := gocmd.NewResult[core.WebhookSummary]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		msg := HandleWebhookMessage{Notifications: []core.PaymentNotification{
			{PaymentID: 845325, ContactID: 42},
			{PaymentID: 845326, ContactID: 42},
			{PaymentID: 0, ContactID: 0},
		}}
		if err := cmd.Execute(ctx, msg); err != nil {
			t.Fatalf("execute handle webhook: %v", err)
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected webhook summary result")
		}
		if stored != expected {
			t.Fatalf("unexpected summary: %#v", stored)
		}
	})

	t.Run("dispatch due", func(t *testing.T) {
		expected := core.RetrySummary{Processed: 4, Sent: 3, Failed: 1}
		dispatcher := stubDispatcher{
			tickFn: func(context.Context) (core.RetrySummary, error) {
				return expected, nil
			},
		}
		cmd := NewDispatchDueCommand(dispatcher)
		collector := gocmd.NewResult[core.RetrySummary]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, DispatchDueMessage{}); err != nil {
			t.Fatalf("execute dispatch due: %v", err)
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected retry summary result")
		}
		if stored != expected {
			t.Fatalf("unexpected summary: %#v", stored)
		}
	})
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	serviceErr := errors.New("delivery failed")

	svc := stubDeliveryService{
		enqueueFn: func(context.Context, core.ConversionEvent) (core.SendOutcome, error) {
			return core.SendOutcome{}, serviceErr
		},
	}
	cmd := NewEnqueueDeliveryCommand(svc)
	err := cmd.Execute(context.Background(), EnqueueDeliveryMessage{Event: core.ConversionEvent{
		Brand:   "amare",
		Name:    core.EventNamePurchase,
		EventID: "purchase_txn_1",
	}})
	if !errors.Is(err, serviceErr) {
		t.Fatalf("expected service error propagation, got %v", err)
	}

	dispatcher := stubDispatcher{
		tickFn: func(context.Context) (core.RetrySummary, error) {
			return core.RetrySummary{}, serviceErr
		},
	}
	if err := NewDispatchDueCommand(dispatcher).Execute(context.Background(), DispatchDueMessage{}); !errors.Is(err, serviceErr) {
		t.Fatalf("expected dispatcher error propagation, got %v", err)
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{"enqueue missing name", EnqueueDeliveryMessage{Event: core.ConversionEvent{Brand: "amare", EventID: "e1"}}, true},
		{"enqueue missing brand", EnqueueDeliveryMessage{Event: core.ConversionEvent{Name: core.EventNamePurchase, EventID: "e1"}}, true},
		{"purchase missing event id", EnqueueDeliveryMessage{Event: core.ConversionEvent{Source: core.EventSourcePurchase, Name: core.EventNamePurchase, Brand: "amare"}}, true},
		{"purchase complete", EnqueueDeliveryMessage{Event: core.ConversionEvent{Source: core.EventSourcePurchase, Name: core.EventNamePurchase, Brand: "amare", EventID: "purchase_txn_845325"}}, false},
		{"subscribe without event id", EnqueueDeliveryMessage{Event: core.NewSubscribeEvent("amare", "signup@example.com", "https://amare.example/join", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))}, false},
		{"payment placeholder", ProcessPaymentMessage{}, true},
		{"payment valid", ProcessPaymentMessage{Notification: core.PaymentNotification{PaymentID: 845325}}, false},
		{"webhook placeholder rows allowed", HandleWebhookMessage{Notifications: []core.PaymentNotification{{PaymentID: 0}}}, false},
		{"webhook negative id", HandleWebhookMessage{Notifications: []core.PaymentNotification{{PaymentID: -1}}}, true},
		{"reconcile zero count", ReconcileDeferredMessage{}, true},
		{"reconcile valid", ReconcileDeferredMessage{ExpectedCount: 1}, false},
		{"dispatch due", DispatchDueMessage{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
