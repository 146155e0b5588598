package core

import (
	"context"
	"testing"
	"time"
)

type reconcilerFixture struct {
	reconciler *Reconciler
	crm        *stubCRM
	sender     *stubSender
	ledger     *MemoryLedgerStore
	slept      *[]time.Duration
}

func newReconcilerFixture(t *testing.T) reconcilerFixture {
	t.Helper()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(now)

	crm := newStubCRM()
	ledger := NewMemoryLedgerStore(0)
	ledger.Now = clock
	sender := newStubSender(SendOutcome{Success: true, HTTPStatus: 200})

	classifier, err := NewClassifier(crm, nil)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	classifier.now = func() time.Time { return now }

	pipeline, err := NewPipeline(ledger, sender, testBrands(), testScheduler(clock), nil, WithPipelineClock(clock))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	slept := &[]time.Duration{}
	reconciler, err := NewReconciler(
		crm, ledger, classifier, pipeline, SyncTaskRunner{}, nil,
		ReconcileConfig{},
		WithReconcilerClock(func() time.Time { return now }),
		WithReconcilerSleep(func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return reconcilerFixture{reconciler: reconciler, crm: crm, sender: sender, ledger: ledger, slept: slept}
}

func seedTransaction(crm *stubCRM, paymentID int64, contactID int64) Transaction {
	paidAt := time.Date(2025, 3, 10, 11, 58, 0, 0, time.UTC)
	txn := Transaction{ID: paymentID, ContactID: contactID, Amount: 97, Currency: "BRL", PaidAt: paidAt}
	crm.transactions[paymentID] = txn
	crm.contacts[contactID] = Contact{ID: contactID, Email: "buyer@example.com"}
	crm.brandByTag[contactID] = "amare"
	return txn
}

func TestRun_ContactScopedResolutionDispatchesOnce(t *testing.T) {
	fx := newReconcilerFixture(t)
	txn := seedTransaction(fx.crm, 900050, 42)

	// Found on the second scan. The first scan comes back empty because the
	// CRM had not yet materialized the transaction.
	fx.crm.recentContact = [][]Transaction{nil, {txn}}

	resolved, err := fx.reconciler.Run(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected one resolved placeholder, got %d", resolved)
	}
	if fx.sender.callCount() != 1 {
		t.Fatalf("expected one delivery, got %d", fx.sender.callCount())
	}
	if got := *fx.slept; len(got) != 2 || got[0] != 10*time.Second || got[1] != 20*time.Second {
		t.Fatalf("expected contact ladder delays 10s,20s, got %v", got)
	}

	rows := fx.ledger.Rows()
	latest := rows[len(rows)-1]
	if latest.EventID != "purchase_txn_900050" {
		t.Fatalf("unexpected event id %q", latest.EventID)
	}
	if latest.Status != DeliveryStatusSent {
		t.Fatalf("expected sent, got %s", latest.Status)
	}
}

func TestRun_GlobalScopeUsesItsOwnLadder(t *testing.T) {
	fx := newReconcilerFixture(t)
	txn := seedTransaction(fx.crm, 900051, 77)
	fx.crm.recentGlobal = [][]Transaction{{txn}}

	resolved, err := fx.reconciler.Run(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected one resolved placeholder, got %d", resolved)
	}
	if got := *fx.slept; len(got) != 1 || got[0] != 15*time.Second {
		t.Fatalf("expected first global delay 15s, got %v", got)
	}
	if fx.crm.contactScans != 0 {
		t.Fatal("global scope must not scan by contact")
	}
}

func TestRun_ExhaustionResolvesNothing(t *testing.T) {
	fx := newReconcilerFixture(t)
	fx.crm.recentContact = [][]Transaction{nil, nil, nil}

	resolved, err := fx.reconciler.Run(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("expected zero resolved, got %d", resolved)
	}
	if fx.sender.callCount() != 0 {
		t.Fatal("no delivery may happen without a resolved transaction")
	}
	if len(*fx.slept) != 3 {
		t.Fatalf("expected the whole ladder to run, got %d sleeps", len(*fx.slept))
	}
}

func TestRun_AlreadyDeliveredTransactionIsNotDuplicated(t *testing.T) {
	fx := newReconcilerFixture(t)
	txn := seedTransaction(fx.crm, 900052, 42)
	fx.crm.recentContact = [][]Transaction{{txn}, {txn}, {txn}}

	// A previous delivery already wrote this event id into the ledger.
	if err := fx.ledger.Append(context.Background(), DeliveryAttempt{
		QueueID:   "queue-prior",
		EventID:   PurchaseEventID(900052),
		Status:    DeliveryStatusSent,
		CreatedAt: time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	resolved, err := fx.reconciler.Run(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("expected zero resolved, got %d", resolved)
	}
	if fx.sender.callCount() != 0 {
		t.Fatalf("expected no delivery for an already-seen event id, got %d", fx.sender.callCount())
	}
}

func TestRun_PlaceholderRowsInScanAreIgnored(t *testing.T) {
	fx := newReconcilerFixture(t)
	real := seedTransaction(fx.crm, 900053, 42)
	fx.crm.recentContact = [][]Transaction{{{ID: 0, ContactID: 42}, real}}

	resolved, err := fx.reconciler.Run(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected the real transaction to resolve, got %d", resolved)
	}
	if fx.sender.callCount() != 1 {
		t.Fatalf("expected one delivery, got %d", fx.sender.callCount())
	}
}

func TestReconcileDeferred_RejectsZeroCount(t *testing.T) {
	fx := newReconcilerFixture(t)
	if err := fx.reconciler.ReconcileDeferred(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error for zero expected count")
	}
}
