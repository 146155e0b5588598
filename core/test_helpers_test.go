package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// stubCRM implements CRMClient with per-call hooks. Unset hooks return a
// not-found style error so tests fail loudly on unexpected calls.
type stubCRM struct {
	mu sync.Mutex

	transactions map[int64]Transaction
	contacts     map[int64]Contact
	orders       map[int64]Order
	paidOrders   map[int64][]Order
	brandByTag   map[int64]string

	recentGlobal  [][]Transaction
	recentContact [][]Transaction

	transactionErr error
	contactErr     error
	orderErr       error
	paidOrdersErr  error
	brandErr       error

	globalScans  int
	contactScans int
}

func newStubCRM() *stubCRM {
	return &stubCRM{
		transactions: map[int64]Transaction{},
		contacts:     map[int64]Contact{},
		orders:       map[int64]Order{},
		paidOrders:   map[int64][]Order{},
		brandByTag:   map[int64]string{},
	}
}

func (s *stubCRM) GetTransaction(_ context.Context, id int64) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transactionErr != nil {
		return Transaction{}, s.transactionErr
	}
	txn, ok := s.transactions[id]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %d not found", id)
	}
	return txn, nil
}

func (s *stubCRM) GetContact(_ context.Context, id int64) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contactErr != nil {
		return Contact{}, s.contactErr
	}
	contact, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("contact %d not found", id)
	}
	return contact, nil
}

func (s *stubCRM) GetOrder(_ context.Context, id int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderErr != nil {
		return Order{}, s.orderErr
	}
	order, ok := s.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d not found", id)
	}
	return order, nil
}

func (s *stubCRM) GetOrdersByContact(_ context.Context, contactID int64, status string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paidOrdersErr != nil {
		return nil, s.paidOrdersErr
	}
	if status != OrderStatusPaid {
		return nil, fmt.Errorf("unexpected order status filter %q", status)
	}
	return append([]Order(nil), s.paidOrders[contactID]...), nil
}

func (s *stubCRM) GetRecentTransactions(_ context.Context, _ time.Time, _ int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan := s.globalScans
	s.globalScans++
	if scan >= len(s.recentGlobal) {
		return nil, nil
	}
	return append([]Transaction(nil), s.recentGlobal[scan]...), nil
}

func (s *stubCRM) GetRecentTransactionsForContact(_ context.Context, _ int64, _ int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan := s.contactScans
	s.contactScans++
	if scan >= len(s.recentContact) {
		return nil, nil
	}
	return append([]Transaction(nil), s.recentContact[scan]...), nil
}

func (s *stubCRM) DetectBrandFromTags(_ context.Context, contactID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.brandErr != nil {
		return "", s.brandErr
	}
	return s.brandByTag[contactID], nil
}

// stubSender records every Send call and replays scripted outcomes in
// order; once the script runs out it keeps returning the last outcome.
type stubSender struct {
	mu       sync.Mutex
	script   []SendOutcome
	calls    int
	lastDest Destination
	events   [][]ConversionEvent
}

func newStubSender(script ...SendOutcome) *stubSender {
	if len(script) == 0 {
		script = []SendOutcome{{Success: true, HTTPStatus: 200}}
	}
	return &stubSender{script: script}
}

func (s *stubSender) Send(_ context.Context, dest Destination, events []ConversionEvent) SendOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.calls
	s.calls++
	s.lastDest = dest
	s.events = append(s.events, append([]ConversionEvent(nil), events...))
	if index >= len(s.script) {
		index = len(s.script) - 1
	}
	return s.script[index]
}

func (s *stubSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testBrands() StaticBrandResolver {
	return NewStaticBrandResolver(map[string]BrandConfig{
		"amare": {AccessToken: "token-amare", PixelID: "pixel-amare"},
	})
}

// fixedClock returns a deterministic strictly increasing clock so ledger
// rows never collide on UpdatedAt.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
}

func noSleep(context.Context, time.Duration) error {
	return nil
}

func testScheduler(now func() time.Time) *DeliveryScheduler {
	scheduler := NewDeliveryScheduler(DeliveryConfig{})
	scheduler.Now = now
	scheduler.Jitter = func(time.Duration) time.Duration { return 0 }
	return scheduler
}
