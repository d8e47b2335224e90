package checkout

import (
	"context"
	"sync"
	"time"

	"marketplace-be/internal/cart"
	"marketplace-be/internal/money"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/product"
	"marketplace-be/internal/shipping"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateSession(ctx context.Context, s *Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) SetPaymentReference(ctx context.Context, id string, info PaymentInfo) error {
	args := m.Called(ctx, id, info)
	return args.Error(0)
}

func (m *MockRepository) MarkFailed(ctx context.Context, id string, info PaymentInfo) error {
	args := m.Called(ctx, id, info)
	return args.Error(0)
}

func (m *MockRepository) Settle(ctx context.Context, s *Session, info PaymentInfo) (*Settlement, error) {
	args := m.Called(ctx, s, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Settlement), args.Error(1)
}

func (m *MockRepository) FlagReconciliation(ctx context.Context, rec Reconciliation) (int64, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(int64), args.Error(1)
}

// MockGateway is a mock for the payment gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentLink(ctx context.Context, req payment.LinkRequest) (*payment.PaymentLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentLink), args.Error(1)
}

func (m *MockGateway) QueryPaymentLinks(ctx context.Context, invoiceNumber string) ([]payment.LinkRecord, error) {
	args := m.Called(ctx, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.LinkRecord), args.Error(1)
}

func (m *MockGateway) Sale(ctx context.Context, req payment.SaleRequest) (*payment.SaleResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SaleResult), args.Error(1)
}

type MockCartStore struct {
	mock.Mock
}

func (m *MockCartStore) GetCart(ctx context.Context, cartID int64) (*cart.Cart, error) {
	args := m.Called(ctx, cartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartStore) ListItems(ctx context.Context, cartID int64) ([]cart.CartItem, error) {
	args := m.Called(ctx, cartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cart.CartItem), args.Error(1)
}

type MockStockReader struct {
	mock.Mock
}

func (m *MockStockReader) GetStock(ctx context.Context, keys []product.StockKey) (map[product.StockKey]int, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[product.StockKey]int), args.Error(1)
}

type MockShipping struct {
	mock.Mock
}

func (m *MockShipping) QuoteVendor(ctx context.Context, vendorID int64, req shipping.QuoteRequest) (money.Cents, error) {
	args := m.Called(ctx, vendorID, req)
	return args.Get(0).(money.Cents), args.Error(1)
}

func (m *MockShipping) LoadConfigs(ctx context.Context, vendorIDs []int64, country shipping.Country) (map[int64]*shipping.VendorConfig, error) {
	args := m.Called(ctx, vendorIDs, country)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*shipping.VendorConfig), args.Error(1)
}

func (m *MockShipping) SaveConfig(ctx context.Context, cfg *shipping.VendorConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]order.Order
}

func (n *recordingNotifier) OrdersPaid(_ context.Context, orders []order.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, orders)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// memRepo keeps sessions and stock in memory behind one mutex, which plays
// the part of the row locks taken by the postgres repository.
type memRepo struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	stock     map[product.StockKey]int
	nextOrder int64
	settled   int
	recs      []Reconciliation
}

func newMemRepo(stock map[product.StockKey]int, sessions ...*Session) *memRepo {
	r := &memRepo{sessions: map[string]*Session{}, stock: stock, nextOrder: 100}
	for _, s := range sessions {
		r.sessions[s.ID] = s
	}
	return r
}

func (r *memRepo) CreateSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memRepo) GetSession(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	cp.CreatedOrderIDs = append([]int64(nil), s.CreatedOrderIDs...)
	return &cp, nil
}

func (r *memRepo) SetPaymentReference(_ context.Context, id string, info PaymentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	if s == nil || s.Status != StatusPending {
		return ErrSessionNotPending
	}
	s.Payment = info
	return nil
}

func (r *memRepo) MarkFailed(_ context.Context, id string, info PaymentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	if s == nil || s.Status != StatusPending {
		return ErrSessionNotPending
	}
	s.Status = StatusFailed
	s.Payment = info
	return nil
}

func (r *memRepo) Settle(_ context.Context, s *Session, info PaymentInfo) (*Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.sessions[s.ID]
	if cur == nil {
		return nil, ErrSessionNotFound
	}
	if cur.Status == StatusPaid {
		return &Settlement{OrderIDs: append([]int64(nil), cur.CreatedOrderIDs...), AlreadySettled: true}, nil
	}
	if cur.Status != StatusPending {
		return nil, ErrSessionNotPending
	}

	if short := s.Snapshot.shortfalls(r.stock); len(short) > 0 {
		return nil, &StockConflictError{Items: short}
	}

	orders := buildOrders(s, info, time.Now())
	ids := make([]int64, 0, len(orders))
	for i := range orders {
		r.nextOrder++
		orders[i].ID = r.nextOrder
		ids = append(ids, r.nextOrder)
	}
	for k, qty := range s.Snapshot.demand() {
		r.stock[k] -= qty
	}

	cur.Status = StatusPaid
	cur.CreatedOrderIDs = ids
	cur.Payment = info
	r.settled++
	return &Settlement{OrderIDs: ids, Orders: orders}, nil
}

func (r *memRepo) FlagReconciliation(_ context.Context, rec Reconciliation) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return int64(len(r.recs)), nil
}

// barrierGateway reports every link as paid, but only once n callers have
// queried, so they all pass the idempotency check before any settles.
type barrierGateway struct {
	mu      sync.Mutex
	n       int
	arrived int
	ready   chan struct{}
	linkID  string
}

func newBarrierGateway(n int, linkID string) *barrierGateway {
	return &barrierGateway{n: n, ready: make(chan struct{}), linkID: linkID}
}

func (g *barrierGateway) CreatePaymentLink(context.Context, payment.LinkRequest) (*payment.PaymentLink, error) {
	return &payment.PaymentLink{ID: g.linkID}, nil
}

func (g *barrierGateway) QueryPaymentLinks(ctx context.Context, invoiceNumber string) ([]payment.LinkRecord, error) {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.n {
		close(g.ready)
	}
	g.mu.Unlock()

	select {
	case <-g.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []payment.LinkRecord{{ID: g.linkID, InvoiceNumber: invoiceNumber, Status: "1"}}, nil
}

func (g *barrierGateway) Sale(context.Context, payment.SaleRequest) (*payment.SaleResult, error) {
	return &payment.SaleResult{ResponseCode: 200, TransactionID: "txn-1"}, nil
}
