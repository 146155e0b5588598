package core

import (
	"context"
	"testing"
	"time"
)

type serviceFixture struct {
	service *Service
	crm     *stubCRM
	sender  *stubSender
	ledger  *MemoryLedgerStore
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(now)

	crm := newStubCRM()
	ledger := NewMemoryLedgerStore(0)
	ledger.Now = clock
	sender := newStubSender(SendOutcome{Success: true, HTTPStatus: 200})

	service, err := NewService(
		Config{
			Brands: map[string]BrandConfig{
				"amare": {AccessToken: "token-amare", PixelID: "pixel-amare"},
			},
		},
		WithLedgerStore(ledger),
		WithSender(sender),
		WithCRMClient(crm),
		WithTaskRunner(SyncTaskRunner{}),
		WithScheduler(testScheduler(clock)),
		WithReconcilerOptions(WithReconcilerSleep(noSleep)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return serviceFixture{service: service, crm: crm, sender: sender, ledger: ledger}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Fatal("expected error without a ledger store")
	}
	if _, err := NewService(Config{}, WithLedgerStore(NewMemoryLedgerStore(0))); err == nil {
		t.Fatal("expected error without a sender")
	}
	if _, err := NewService(Config{},
		WithLedgerStore(NewMemoryLedgerStore(0)),
		WithSender(newStubSender()),
	); err == nil {
		t.Fatal("expected error without a crm client")
	}
}

func TestNewService_MergesRuntimeConfigOverDefaults(t *testing.T) {
	service, err := NewService(
		Config{Delivery: DeliveryConfig{MaxAttempts: 3}},
		WithLedgerStore(NewMemoryLedgerStore(0)),
		WithSender(newStubSender()),
		WithCRMClient(newStubCRM()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := service.Config()
	if cfg.Delivery.MaxAttempts != 3 {
		t.Fatalf("expected runtime override, got %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.Delivery.BackoffCapMinutes != 60 {
		t.Fatalf("expected default backoff cap, got %d", cfg.Delivery.BackoffCapMinutes)
	}
	if cfg.ServiceName != "amare" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
}

func TestProcessPayment_DeliversClassifiedEvent(t *testing.T) {
	fx := newServiceFixture(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	fx.crm.transactions[845325] = Transaction{ID: 845325, ContactID: 1200, Amount: 49.90, Currency: "BRL", PaidAt: now}
	fx.crm.contacts[1200] = Contact{ID: 1200, Email: "buyer@example.com"}
	fx.crm.brandByTag[1200] = "amare"

	if err := fx.service.ProcessPayment(context.Background(), PaymentNotification{PaymentID: 845325, ContactID: 1200}); err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if fx.sender.callCount() != 1 {
		t.Fatalf("expected one delivery, got %d", fx.sender.callCount())
	}

	rows := fx.ledger.Rows()
	latest := rows[len(rows)-1]
	if latest.EventID != "purchase_txn_845325" {
		t.Fatalf("unexpected event id %q", latest.EventID)
	}
	if latest.Status != DeliveryStatusSent {
		t.Fatalf("expected sent, got %s", latest.Status)
	}
}

func TestProcessPayment_RejectsPlaceholder(t *testing.T) {
	fx := newServiceFixture(t)
	if err := fx.service.ProcessPayment(context.Background(), PaymentNotification{PaymentID: 0}); err == nil {
		t.Fatal("expected error for placeholder notification")
	}
}

func TestProcessPayment_SkipDecisionDeliversNothing(t *testing.T) {
	fx := newServiceFixture(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	fx.crm.transactions[31] = Transaction{ID: 31, ContactID: 8, Amount: 50, Currency: "BRL", OrderID: 7001, PaidAt: now}
	fx.crm.contacts[8] = Contact{ID: 8, Email: "installment@example.com"}
	fx.crm.orders[7001] = Order{
		ID: 7001, ContactID: 8, Status: OrderStatusPaid, SubscriptionPlanID: 3,
		CreatedAt: now.AddDate(0, 0, -15),
	}

	if err := fx.service.ProcessPayment(context.Background(), PaymentNotification{PaymentID: 31, ContactID: 8}); err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if fx.sender.callCount() != 0 {
		t.Fatalf("skip must deliver nothing, got %d sends", fx.sender.callCount())
	}
}

func TestEnqueueAndSend_RequiresEventName(t *testing.T) {
	fx := newServiceFixture(t)
	if _, err := fx.service.EnqueueAndSend(context.Background(), ConversionEvent{}); err == nil {
		t.Fatal("expected error for an unnamed event")
	}
}

func TestEnqueueAndSend_SubscribeEventFlowsThroughPipeline(t *testing.T) {
	fx := newServiceFixture(t)
	event := NewSubscribeEvent("amare", "lead@example.com", "https://example.com/landing", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	outcome, err := fx.service.EnqueueAndSend(context.Background(), event)
	if err != nil {
		t.Fatalf("enqueue and send: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	rows := fx.ledger.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected pending and result rows, got %d", len(rows))
	}
	if rows[0].Source != EventSourceSubscribe || rows[0].EventName != EventNameSubscribe {
		t.Fatalf("unexpected ledger row %+v", rows[0])
	}
}

func TestHandleWebhook_SplitsPlaceholdersFromProcessable(t *testing.T) {
	fx := newServiceFixture(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	fx.crm.transactions[845325] = Transaction{ID: 845325, ContactID: 1200, Amount: 49.90, Currency: "BRL", PaidAt: now}
	fx.crm.contacts[1200] = Contact{ID: 1200, Email: "buyer@example.com"}
	fx.crm.brandByTag[1200] = "amare"

	// The placeholder's sibling carries a real contact id, so reconciliation
	// scans that contact. The scan finds nothing and gives up quietly.
	summary, err := fx.service.HandleWebhook(context.Background(), []PaymentNotification{
		{PaymentID: 845325, ContactID: 1200},
		{PaymentID: 0, ContactID: 0},
	})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if summary.Received != 2 || summary.Processed != 1 || summary.Placeholders != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if fx.sender.callCount() != 1 {
		t.Fatalf("expected one delivery for the real notification, got %d", fx.sender.callCount())
	}
	if fx.crm.contactScans == 0 {
		t.Fatal("expected a contact-scoped reconciliation scan")
	}
}

func TestHandleWebhook_EmptyCallIsANoOp(t *testing.T) {
	fx := newServiceFixture(t)
	summary, err := fx.service.HandleWebhook(context.Background(), nil)
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if summary.Received != 0 || summary.Processed != 0 || summary.Placeholders != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if fx.sender.callCount() != 0 {
		t.Fatal("no work may happen for an empty call")
	}
}
