package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"marketplace-be/internal/address"
	"marketplace-be/internal/cart"
	"marketplace-be/internal/config"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/money"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/product"
	"marketplace-be/internal/shipping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

type managerFixture struct {
	repo     *MockRepository
	carts    *MockCartStore
	stock    *MockStockReader
	ship     *MockShipping
	gateway  *MockGateway
	notifier *recordingNotifier
	metrics  *metrics.Checkout
	manager  *Manager
}

func newManagerFixture() *managerFixture {
	f := &managerFixture{
		repo:     new(MockRepository),
		carts:    new(MockCartStore),
		stock:    new(MockStockReader),
		ship:     new(MockShipping),
		gateway:  new(MockGateway),
		notifier: &recordingNotifier{},
		metrics:  metrics.NewCheckout(),
	}
	engine := NewEngine(f.repo, f.gateway, f.notifier, f.metrics)
	f.manager = NewManager(Deps{
		Repo:        f.repo,
		Carts:       f.carts,
		Stock:       f.stock,
		Shipping:    f.ship,
		Gateway:     f.gateway,
		Engine:      engine,
		Metrics:     f.metrics,
		CardFeeRate: 0.035,
	})
	f.manager.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	f.manager.newID = func() string { return "sess-1" }
	return f
}

func usAddress() address.Address {
	return address.Address{
		Name:       "Ana Perez",
		Phone:      "3055550100",
		Address1:   "1 Main St",
		City:       "Miami",
		Province:   "FL",
		PostalCode: "33101",
		Country:    shipping.CountryUS,
	}
}

func cubaAddress() address.Address {
	return address.Address{
		Name:         "Luis Gomez",
		Phone:        "+5355512345",
		Address1:     "Calle 23 #456",
		Province:     "La Habana",
		Municipality: "Plaza de la Revolucion",
		AreaType:     shipping.AreaCity,
		Country:      shipping.CountryCU,
	}
}

// exampleItems is 2 x $10.00 from vendor 10 (2lb each) and 1 x $25.00 from
// vendor 20 (1lb), untaxed.
func exampleItems() []cart.CartItem {
	return []cart.CartItem{
		{
			ID: 1, CartID: 100, ProductID: 1, VendorID: int64Ptr(10), Name: "Mug",
			Quantity: 2, UnitPriceCents: 1000, Metadata: cart.ItemMetadata{WeightLbs: 2},
		},
		{
			ID: 2, CartID: 100, ProductID: 2, VendorID: int64Ptr(20), Name: "Lamp",
			Quantity: 1, UnitPriceCents: 2500, Metadata: cart.ItemMetadata{WeightLbs: 1},
		},
	}
}

func exampleKeys() []product.StockKey {
	return []product.StockKey{{ProductID: 1}, {ProductID: 2}}
}

func usConfigs() map[int64]*shipping.VendorConfig {
	return map[int64]*shipping.VendorConfig{
		10: {VendorID: 10, Country: shipping.CountryUS, Mode: shipping.ModeFixed, Active: true, FlatCents: 500},
		20: {VendorID: 20, Country: shipping.CountryUS, Mode: shipping.ModeFixed, Active: true, FlatCents: 799},
	}
}

func (f *managerFixture) expectCart(items []cart.CartItem, stock map[product.StockKey]int) {
	f.carts.On("GetCart", mock.Anything, int64(100)).Return(&cart.Cart{ID: 100, CustomerID: 7}, nil)
	f.carts.On("ListItems", mock.Anything, int64(100)).Return(items, nil)
	keys := sortedKeys(Snapshot{VendorGroups: snapshotGroups(cart.Price(items))}.demand())
	f.stock.On("GetStock", mock.Anything, keys).Return(stock, nil)
}

func startInput(addr address.Address) StartInput {
	return StartInput{
		CustomerID:      7,
		CartID:          100,
		ShippingAddress: addr,
		Passthrough:     order.Passthrough{Locale: "en", AcceptedTerms: true},
	}
}

func validCard() payment.CardDetails {
	return payment.CardDetails{
		Number:     "4111111111111111",
		ExpMonth:   12,
		ExpYear:    2030,
		CVV:        "123",
		HolderName: "Ana Perez",
	}
}

func TestManager_StartCheckout(t *testing.T) {
	t.Run("TwoVendorsUS", func(t *testing.T) {
		f := newManagerFixture()
		f.expectCart(exampleItems(), map[product.StockKey]int{{ProductID: 1}: 5, {ProductID: 2}: 5})
		f.ship.On("LoadConfigs", mock.Anything, []int64{10, 20}, shipping.CountryUS).Return(usConfigs(), nil)

		var (
			calls   []string
			created *Session
		)
		f.repo.On("CreateSession", mock.Anything, mock.AnythingOfType("*checkout.Session")).
			Run(func(args mock.Arguments) {
				calls = append(calls, "session")
				created = args.Get(1).(*Session)
			}).
			Return(nil)
		f.gateway.On("CreatePaymentLink", mock.Anything, payment.LinkRequest{
			AmountCents:   5799,
			Description:   "Order sess-1",
			InvoiceNumber: "sess-1",
		}).
			Run(func(mock.Arguments) { calls = append(calls, "gateway") }).
			Return(&payment.PaymentLink{ID: "link-abc", URL: "https://pay.example/l/abc?returnUrl=x"}, nil)
		f.repo.On("SetPaymentReference", mock.Anything, "sess-1", PaymentInfo{
			Provider:   payment.ProviderName,
			Reference:  "link-abc",
			URL:        "https://pay.example/l/abc?returnUrl=x",
			LastStatus: "created",
		}).Return(nil)

		res, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		require.NoError(t, err)

		assert.Equal(t, []string{"session", "gateway"}, calls)
		assert.Equal(t, "sess-1", res.SessionID)
		assert.Equal(t, "link-abc", res.PaymentReference)
		assert.Equal(t, "57.99", res.AmountTotal)

		p := res.Pricing
		assert.Equal(t, money.Cents(4500), p.SubtotalCents)
		assert.Equal(t, money.Cents(0), p.TaxCents)
		assert.Equal(t, money.Cents(1299), p.ShippingCents)
		assert.Equal(t, money.Cents(5799), p.TotalCents)
		assert.Equal(t, money.Cents(0), p.CardFeeCents)
		assert.Equal(t, money.Cents(5799), p.AmountToChargeCents)

		require.NotNil(t, created)
		assert.Equal(t, StatusPending, created.Status)
		assert.Equal(t, money.Cents(5799), created.AmountTotalCents)
		assert.Equal(t, MethodPaymentLink, created.Metadata.PaymentMethod)
		assert.Equal(t, int64(100), *created.CartID)
		require.Len(t, created.Snapshot.VendorGroups, 2)
		assert.Equal(t, money.Cents(500), created.Snapshot.VendorGroups[0].ShippingCents)
		assert.Equal(t, 4.0, created.Snapshot.VendorGroups[0].WeightLbs)
		assert.Equal(t, money.Cents(799), created.Snapshot.VendorGroups[1].ShippingCents)
		assert.Equal(t, "en", created.Snapshot.Passthrough.Locale)
		assert.Equal(t, "Miami", created.Snapshot.ShippingAddress.City)

		assert.Equal(t, uint64(1), f.metrics.SessionsCreated.Load())
		f.repo.AssertExpectations(t)
		f.gateway.AssertExpectations(t)
	})

	t.Run("CubaWeightTierWithSurcharge", func(t *testing.T) {
		f := newManagerFixture()
		items := []cart.CartItem{{
			ID: 1, CartID: 100, ProductID: 1, VendorID: int64Ptr(10), Name: "Rice",
			Quantity: 10, UnitPriceCents: 100, Metadata: cart.ItemMetadata{WeightLbs: 1},
		}}
		f.expectCart(items, map[product.StockKey]int{{ProductID: 1}: 50})
		f.ship.On("LoadConfigs", mock.Anything, []int64{10}, shipping.CountryCU).Return(map[int64]*shipping.VendorConfig{
			10: {
				VendorID: 10, Country: shipping.CountryCU, Mode: shipping.ModeWeight, Active: true,
				ZoneBaseCents:          map[shipping.ZoneKey]money.Cents{shipping.ZoneHavanaCity: 300},
				RatePerLbCents:         50,
				MinFeeCents:            400,
				OverweightThresholdLbs: 5,
				OverweightFeeCents:     200,
			},
		}, nil)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("CreatePaymentLink", mock.Anything, mock.Anything).Return(&payment.PaymentLink{ID: "link-1"}, nil)
		f.repo.On("SetPaymentReference", mock.Anything, "sess-1", mock.Anything).Return(nil)

		res, err := f.manager.StartCheckout(context.Background(), startInput(cubaAddress()))
		require.NoError(t, err)
		assert.Equal(t, money.Cents(1000), res.Pricing.ShippingCents)
		assert.Equal(t, "20.00", res.AmountTotal)
	})

	t.Run("UndeliverableVendorsFailWholeCheckout", func(t *testing.T) {
		f := newManagerFixture()
		f.expectCart(exampleItems(), map[product.StockKey]int{{ProductID: 1}: 5, {ProductID: 2}: 5})
		f.ship.On("LoadConfigs", mock.Anything, []int64{10, 20}, shipping.CountryUS).Return(map[int64]*shipping.VendorConfig{
			20: {VendorID: 20, Country: shipping.CountryUS, Mode: shipping.ModeFixed, FlatCents: 799, AllowedAreas: []string{"TX"}},
		}, nil)

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))

		var undeliverable *UndeliverableError
		require.ErrorAs(t, err, &undeliverable)
		require.Len(t, undeliverable.Vendors, 2)
		assert.Equal(t, int64(10), *undeliverable.Vendors[0].VendorID)
		assert.Equal(t, ReasonNoShippingConfig, undeliverable.Vendors[0].Reason)
		assert.Equal(t, int64(20), *undeliverable.Vendors[1].VendorID)
		assert.Equal(t, ReasonUndeliverable, undeliverable.Vendors[1].Reason)
		f.repo.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
		f.gateway.AssertNotCalled(t, "CreatePaymentLink", mock.Anything, mock.Anything)
	})

	t.Run("PlatformGroupUsesVendorZero", func(t *testing.T) {
		f := newManagerFixture()
		items := []cart.CartItem{{ID: 1, CartID: 100, ProductID: 3, Name: "Gift card", Quantity: 1, UnitPriceCents: 2000}}
		f.expectCart(items, map[product.StockKey]int{{ProductID: 3}: 1})
		f.ship.On("LoadConfigs", mock.Anything, []int64{0}, shipping.CountryUS).Return(map[int64]*shipping.VendorConfig{
			0: {Country: shipping.CountryUS, Mode: shipping.ModeFixed, FlatCents: 300},
		}, nil)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("CreatePaymentLink", mock.Anything, mock.Anything).Return(&payment.PaymentLink{ID: "link-1"}, nil)
		f.repo.On("SetPaymentReference", mock.Anything, "sess-1", mock.Anything).Return(nil)

		res, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		require.NoError(t, err)
		assert.Equal(t, "23.00", res.AmountTotal)
	})

	t.Run("StockShortfall", func(t *testing.T) {
		f := newManagerFixture()
		f.expectCart(exampleItems(), map[product.StockKey]int{{ProductID: 1}: 1})

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))

		var conflict *StockConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []StockShortfall{
			{ProductID: 1, Name: "Mug", Requested: 2, Available: 1},
			{ProductID: 2, Name: "Lamp", Requested: 1, Available: 0},
		}, conflict.Items)
		f.ship.AssertNotCalled(t, "LoadConfigs", mock.Anything, mock.Anything, mock.Anything)
		f.repo.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	})

	t.Run("EmptyCart", func(t *testing.T) {
		f := newManagerFixture()
		f.carts.On("GetCart", mock.Anything, int64(100)).Return(&cart.Cart{ID: 100, CustomerID: 7}, nil)
		f.carts.On("ListItems", mock.Anything, int64(100)).Return([]cart.CartItem{}, nil)

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("CartOfAnotherCustomer", func(t *testing.T) {
		f := newManagerFixture()
		f.carts.On("GetCart", mock.Anything, int64(100)).Return(&cart.Cart{ID: 100, CustomerID: 8}, nil)

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		assert.ErrorIs(t, err, ErrCartNotFound)
		f.carts.AssertNotCalled(t, "ListItems", mock.Anything, mock.Anything)
	})

	t.Run("CompletedCart", func(t *testing.T) {
		f := newManagerFixture()
		f.carts.On("GetCart", mock.Anything, int64(100)).Return(&cart.Cart{ID: 100, CustomerID: 7, Completed: true}, nil)

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("MissingCart", func(t *testing.T) {
		f := newManagerFixture()
		f.carts.On("GetCart", mock.Anything, int64(100)).Return(nil, cart.ErrCartNotFound)

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("InvalidAddress", func(t *testing.T) {
		f := newManagerFixture()
		addr := usAddress()
		addr.City = ""
		addr.PostalCode = "ABC"

		_, err := f.manager.StartCheckout(context.Background(), startInput(addr))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "is required", verr.Fields["shippingAddress.city"])
		assert.Contains(t, verr.Fields, "shippingAddress.postalCode")
		f.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
	})

	t.Run("UnsupportedCountry", func(t *testing.T) {
		f := newManagerFixture()
		addr := usAddress()
		addr.Country = "MX"

		_, err := f.manager.StartCheckout(context.Background(), startInput(addr))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "unsupported country", verr.Fields["shippingAddress.country"])
	})

	t.Run("Maintenance", func(t *testing.T) {
		f := newManagerFixture()
		ctx := config.WithRuntime(context.Background(), config.Runtime{MaintenanceMode: true})

		_, err := f.manager.StartCheckout(ctx, startInput(usAddress()))
		assert.ErrorIs(t, err, ErrMaintenance)
		f.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
	})

	t.Run("GatewayFailureLeavesPendingSession", func(t *testing.T) {
		f := newManagerFixture()
		f.expectCart(exampleItems(), map[product.StockKey]int{{ProductID: 1}: 5, {ProductID: 2}: 5})
		f.ship.On("LoadConfigs", mock.Anything, []int64{10, 20}, shipping.CountryUS).Return(usConfigs(), nil)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("CreatePaymentLink", mock.Anything, mock.Anything).Return(nil, payment.ErrCircuitOpen)

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		assert.ErrorIs(t, err, payment.ErrCircuitOpen)
		f.repo.AssertCalled(t, "CreateSession", mock.Anything, mock.Anything)
		f.repo.AssertNotCalled(t, "SetPaymentReference", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SessionWriteFailsBeforeGateway", func(t *testing.T) {
		f := newManagerFixture()
		f.expectCart(exampleItems(), map[product.StockKey]int{{ProductID: 1}: 5, {ProductID: 2}: 5})
		f.ship.On("LoadConfigs", mock.Anything, []int64{10, 20}, shipping.CountryUS).Return(usConfigs(), nil)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(errors.New("db down"))

		_, err := f.manager.StartCheckout(context.Background(), startInput(usAddress()))
		assert.EqualError(t, err, "db down")
		f.gateway.AssertNotCalled(t, "CreatePaymentLink", mock.Anything, mock.Anything)
	})
}

func TestManager_StartDirectCharge(t *testing.T) {
	directInput := func(card payment.CardDetails) DirectChargeInput {
		return DirectChargeInput{StartInput: startInput(usAddress()), Card: card}
	}

	prepared := func(f *managerFixture) {
		f.expectCart(exampleItems(), map[product.StockKey]int{{ProductID: 1}: 5, {ProductID: 2}: 5})
		f.ship.On("LoadConfigs", mock.Anything, []int64{10, 20}, shipping.CountryUS).Return(usConfigs(), nil)
	}

	t.Run("ApprovedSettlesInline", func(t *testing.T) {
		f := newManagerFixture()
		prepared(f)

		var created *Session
		f.repo.On("CreateSession", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { created = args.Get(1).(*Session) }).
			Return(nil)
		f.gateway.On("Sale", mock.Anything, mock.MatchedBy(func(r payment.SaleRequest) bool {
			return r.AmountCents == 6002 && r.TransactionNumber == "sess-1" && r.Card.Number == "4111111111111111"
		})).Return(&payment.SaleResult{TransactionID: "txn-9", Verbiage: "APPROVED"}, nil)
		approved := PaymentInfo{
			Provider:   payment.ProviderName,
			Reference:  "txn-9",
			LastStatus: "approved",
		}
		f.repo.On("SetPaymentReference", mock.Anything, "sess-1", approved).Return(nil)
		f.repo.On("Settle", mock.Anything, mock.Anything, approved).Return(&Settlement{
			OrderIDs: []int64{11, 12},
			Orders:   []order.Order{{ID: 11}, {ID: 12}},
		}, nil)

		res, err := f.manager.StartDirectCharge(context.Background(), directInput(validCard()))
		require.NoError(t, err)

		assert.Equal(t, StatusPaid, res.Status)
		assert.Equal(t, []int64{11, 12}, res.OrderIDs)
		assert.False(t, res.AlreadySettled)

		require.NotNil(t, created)
		p := created.Snapshot.Pricing
		assert.Equal(t, money.Cents(5799), p.TotalCents)
		assert.Equal(t, money.Cents(203), p.CardFeeCents)
		assert.Equal(t, money.Cents(6002), p.AmountToChargeCents)
		assert.Equal(t, money.Cents(6002), created.AmountTotalCents)
		assert.Equal(t, MethodCard, created.Metadata.PaymentMethod)
		assert.True(t, strings.HasSuffix(created.Metadata.MaskedCard, "1111"))
		assert.NotContains(t, created.Metadata.MaskedCard, "41111111")

		assert.Equal(t, 1, f.notifier.count())
		assert.Equal(t, uint64(1), f.metrics.Settlements.Load())
	})

	t.Run("ApprovedButSettleFails", func(t *testing.T) {
		f := newManagerFixture()
		prepared(f)

		var stored *Session
		f.repo.On("CreateSession", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*Session) }).
			Return(nil)
		f.gateway.On("Sale", mock.Anything, mock.Anything).
			Return(&payment.SaleResult{TransactionID: "txn-9", AuthNumber: "A1"}, nil)
		approved := PaymentInfo{Provider: payment.ProviderName, Reference: "txn-9", LastStatus: "approved"}
		f.repo.On("SetPaymentReference", mock.Anything, "sess-1", approved).
			Run(func(mock.Arguments) { stored.Payment = approved }).
			Return(nil)
		f.repo.On("Settle", mock.Anything, mock.Anything, approved).
			Return(nil, errors.New("connection reset")).Once()
		f.repo.On("FlagReconciliation", mock.Anything, Reconciliation{
			SessionID:        "sess-1",
			PaymentReference: "txn-9",
			AmountCents:      6002,
			Shortfalls:       []StockShortfall{},
			Reason:           ReasonSettlementFailed,
		}).Return(int64(4), nil)

		res, err := f.manager.StartDirectCharge(context.Background(), directInput(validCard()))
		assert.Nil(t, res)
		assert.EqualError(t, err, "connection reset")
		f.repo.AssertCalled(t, "SetPaymentReference", mock.Anything, "sess-1", approved)
		f.repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, uint64(1), f.metrics.Reconciliations.Load())
		assert.Equal(t, 0, f.notifier.count())

		// The recorded approval lets a later poll finish the settlement.
		f.repo.On("GetSession", mock.Anything, "sess-1").Return(stored, nil)
		f.repo.On("Settle", mock.Anything, stored, approved).
			Return(&Settlement{OrderIDs: []int64{11, 12}, Orders: []order.Order{{ID: 11}, {ID: 12}}}, nil).Once()

		again, err := f.manager.engine.Confirm(context.Background(), "sess-1", 7)
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, again.Status)
		assert.Equal(t, []int64{11, 12}, again.OrderIDs)
		assert.Equal(t, 1, f.notifier.count())
		f.gateway.AssertNotCalled(t, "QueryPaymentLinks", mock.Anything, mock.Anything)
		f.repo.AssertExpectations(t)
	})

	t.Run("ApprovalNotRecordedStillSettles", func(t *testing.T) {
		f := newManagerFixture()
		prepared(f)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("Sale", mock.Anything, mock.Anything).
			Return(&payment.SaleResult{TransactionID: "txn-9", ResponseCode: 200}, nil)
		f.repo.On("SetPaymentReference", mock.Anything, "sess-1", mock.Anything).Return(errors.New("db down"))
		f.repo.On("Settle", mock.Anything, mock.Anything, mock.Anything).
			Return(&Settlement{OrderIDs: []int64{11}}, nil)

		res, err := f.manager.StartDirectCharge(context.Background(), directInput(validCard()))
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, res.Status)
	})

	t.Run("Maintenance", func(t *testing.T) {
		f := newManagerFixture()
		ctx := config.WithRuntime(context.Background(), config.Runtime{MaintenanceMode: true})

		_, err := f.manager.StartDirectCharge(ctx, directInput(validCard()))
		assert.ErrorIs(t, err, ErrMaintenance)
		f.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
		f.repo.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
		f.gateway.AssertNotCalled(t, "Sale", mock.Anything, mock.Anything)
	})

	t.Run("DeclineFailsSession", func(t *testing.T) {
		f := newManagerFixture()
		prepared(f)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("Sale", mock.Anything, mock.Anything).
			Return(&payment.SaleResult{TransactionID: "txn-d", ResponseCode: 402, Verbiage: "DECLINED"}, nil)
		f.repo.On("MarkFailed", mock.Anything, "sess-1", PaymentInfo{
			Provider:   payment.ProviderName,
			Reference:  "txn-d",
			LastStatus: "declined",
		}).Return(nil)

		res, err := f.manager.StartDirectCharge(context.Background(), directInput(validCard()))
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrPaymentDeclined)
		f.repo.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything, mock.Anything)
		f.repo.AssertExpectations(t)
		assert.Equal(t, 0, f.notifier.count())
		assert.Equal(t, uint64(1), f.metrics.Declines.Load())
	})

	t.Run("RejectedRequestFailsSession", func(t *testing.T) {
		f := newManagerFixture()
		prepared(f)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
		gwErr := &payment.GatewayError{StatusCode: 401, Body: "bad key"}
		f.gateway.On("Sale", mock.Anything, mock.Anything).Return(nil, gwErr)
		f.repo.On("MarkFailed", mock.Anything, "sess-1", PaymentInfo{
			Provider:   payment.ProviderName,
			LastStatus: "rejected",
		}).Return(nil)

		_, err := f.manager.StartDirectCharge(context.Background(), directInput(validCard()))
		assert.ErrorIs(t, err, gwErr)
		f.repo.AssertExpectations(t)
	})

	t.Run("TransientFailureLeavesSessionPending", func(t *testing.T) {
		f := newManagerFixture()
		prepared(f)
		f.repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("Sale", mock.Anything, mock.Anything).
			Return(nil, &payment.GatewayError{StatusCode: 503, Body: "unavailable", Transient: true})

		_, err := f.manager.StartDirectCharge(context.Background(), directInput(validCard()))
		assert.True(t, payment.IsTransient(err))
		f.repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
		f.repo.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InvalidCard", func(t *testing.T) {
		f := newManagerFixture()
		card := validCard()
		card.Number = "1234"
		card.ExpYear = 2020

		_, err := f.manager.StartDirectCharge(context.Background(), directInput(card))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "card.number")
		f.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
		f.gateway.AssertNotCalled(t, "Sale", mock.Anything, mock.Anything)
	})

	t.Run("ExpiredCard", func(t *testing.T) {
		f := newManagerFixture()
		card := validCard()
		card.ExpYear = 2026
		card.ExpMonth = 9

		_, err := f.manager.StartDirectCharge(context.Background(), directInput(card))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "card has expired", verr.Fields["card.expYear"])
	})
}

func TestManager_SnapshotSurvivesCatalogueChange(t *testing.T) {
	carts, stock, ship, gw := new(MockCartStore), new(MockStockReader), new(MockShipping), new(MockGateway)
	repo := newMemRepo(map[product.StockKey]int{{ProductID: 1}: 5, {ProductID: 2}: 5})
	notifier := &recordingNotifier{}
	engine := NewEngine(repo, gw, notifier, nil)
	manager := NewManager(Deps{
		Repo:     repo,
		Carts:    carts,
		Stock:    stock,
		Shipping: ship,
		Gateway:  gw,
		Engine:   engine,
	})
	manager.newID = func() string { return "sess-1" }

	items := exampleItems()
	carts.On("GetCart", mock.Anything, int64(100)).Return(&cart.Cart{ID: 100, CustomerID: 7}, nil)
	carts.On("ListItems", mock.Anything, int64(100)).Return(items, nil)
	stock.On("GetStock", mock.Anything, mock.Anything).
		Return(map[product.StockKey]int{{ProductID: 1}: 5, {ProductID: 2}: 5}, nil)
	ship.On("LoadConfigs", mock.Anything, []int64{10, 20}, shipping.CountryUS).Return(usConfigs(), nil)
	gw.On("CreatePaymentLink", mock.Anything, mock.Anything).
		Return(&payment.PaymentLink{ID: "link-abc", URL: "https://pay.example/l/abc"}, nil)
	gw.On("QueryPaymentLinks", mock.Anything, "sess-1").
		Return([]payment.LinkRecord{{ID: "link-abc", InvoiceNumber: "sess-1", Status: "1"}}, nil)

	_, err := manager.StartCheckout(context.Background(), startInput(usAddress()))
	require.NoError(t, err)

	// The catalogue reprices both products after the session was opened.
	items[0].UnitPriceCents = 4000
	items[1].UnitPriceCents = 100

	s, err := repo.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(5799), s.AmountTotalCents)

	res, err := engine.Confirm(context.Background(), "sess-1", 7)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Status)

	require.Equal(t, 1, notifier.count())
	orders := notifier.calls[0]
	require.Len(t, orders, 2)

	var total money.Cents
	for _, o := range orders {
		total += o.TotalCents
	}
	assert.Equal(t, money.Cents(5799), total)
	assert.Equal(t, money.Cents(2000), orders[0].SubtotalCents)
	assert.Equal(t, money.Cents(1000), orders[0].Items[0].UnitPriceCents)
	assert.Equal(t, money.Cents(2500), orders[1].SubtotalCents)
	assert.Equal(t, money.Cents(2500), orders[1].Items[0].UnitPriceCents)
}
