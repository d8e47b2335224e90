package transport

import (
	"context"

	"marketplace-be/internal/auth"
	"marketplace-be/internal/cart"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/money"
	"marketplace-be/internal/order"
	"marketplace-be/internal/shipping"

	"github.com/stretchr/testify/mock"
)

// MockCartService is a mock implementation of cart.Service
type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) AddItem(ctx context.Context, params cart.AddItemParams) (*cart.CartItem, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.CartItem), args.Error(1)
}

func (m *MockCartService) UpdateItem(ctx context.Context, params cart.UpdateItemParams) (*cart.CartItem, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.CartItem), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, customerID, itemID int64) error {
	args := m.Called(ctx, customerID, itemID)
	return args.Error(0)
}

func (m *MockCartService) GetCart(ctx context.Context, customerID int64) (*cart.View, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.View), args.Error(1)
}

// MockShippingService is a mock implementation of shipping.Service
type MockShippingService struct {
	mock.Mock
}

func (m *MockShippingService) QuoteVendor(ctx context.Context, vendorID int64, req shipping.QuoteRequest) (money.Cents, error) {
	args := m.Called(ctx, vendorID, req)
	return args.Get(0).(money.Cents), args.Error(1)
}

func (m *MockShippingService) LoadConfigs(ctx context.Context, vendorIDs []int64, country shipping.Country) (map[int64]*shipping.VendorConfig, error) {
	args := m.Called(ctx, vendorIDs, country)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*shipping.VendorConfig), args.Error(1)
}

func (m *MockShippingService) SaveConfig(ctx context.Context, cfg *shipping.VendorConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

// MockCheckoutStarter is a mock implementation of CheckoutStarter
type MockCheckoutStarter struct {
	mock.Mock
}

func (m *MockCheckoutStarter) StartCheckout(ctx context.Context, in checkout.StartInput) (*checkout.StartResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.StartResult), args.Error(1)
}

func (m *MockCheckoutStarter) StartDirectCharge(ctx context.Context, in checkout.DirectChargeInput) (*checkout.ConfirmResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.ConfirmResult), args.Error(1)
}

// MockSessionConfirmer is a mock implementation of SessionConfirmer
type MockSessionConfirmer struct {
	mock.Mock
}

func (m *MockSessionConfirmer) Confirm(ctx context.Context, sessionID string, customerID int64) (*checkout.ConfirmResult, error) {
	args := m.Called(ctx, sessionID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.ConfirmResult), args.Error(1)
}

func (m *MockSessionConfirmer) GetStatus(ctx context.Context, sessionID string, customerID int64) (*checkout.StatusView, error) {
	args := m.Called(ctx, sessionID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.StatusView), args.Error(1)
}

// MockOrderService is a mock implementation of order.Service
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) GetOrder(ctx context.Context, p auth.Principal, id int64) (*order.Order, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, p auth.Principal, id int64, to order.Status) (*order.Order, error) {
	args := m.Called(ctx, p, id, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}
