package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-be/internal/cart"
	"marketplace-be/internal/config"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/product"
	"marketplace-be/internal/shipping"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartStore is the part of the cart repository checkout reads.
type CartStore interface {
	GetCart(ctx context.Context, cartID int64) (*cart.Cart, error)
	ListItems(ctx context.Context, cartID int64) ([]cart.CartItem, error)
}

// StockReader gives advisory stock levels; settlement re-checks under lock.
type StockReader interface {
	GetStock(ctx context.Context, keys []product.StockKey) (map[product.StockKey]int, error)
}

type Deps struct {
	Repo     Repository
	Carts    CartStore
	Stock    StockReader
	Shipping shipping.Service
	Gateway  payment.Gateway
	Engine   *Engine
	Metrics  *metrics.Checkout

	// CardFeeRate is the surcharge applied to direct card charges.
	CardFeeRate float64
}

// Manager starts checkouts: it freezes the cart into a pending session and
// opens the payment with the gateway.
type Manager struct {
	repo        Repository
	carts       CartStore
	stock       StockReader
	shipping    shipping.Service
	gateway     payment.Gateway
	engine      *Engine
	metrics     *metrics.Checkout
	cardFeeRate float64

	now   func() time.Time
	newID func() string
}

func NewManager(d Deps) *Manager {
	m := d.Metrics
	if m == nil {
		m = metrics.NewCheckout()
	}
	return &Manager{
		repo:        d.Repo,
		carts:       d.Carts,
		stock:       d.Stock,
		shipping:    d.Shipping,
		gateway:     d.Gateway,
		engine:      d.Engine,
		metrics:     m,
		cardFeeRate: d.CardFeeRate,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// StartCheckout creates a pending session and a hosted payment link for it.
func (m *Manager) StartCheckout(ctx context.Context, in StartInput) (*StartResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "manager"),
		zap.String("method", "StartCheckout"),
		zap.Int64("cart_id", in.CartID),
	)

	s, err := m.prepare(ctx, in, MethodPaymentLink, 0)
	if err != nil {
		return nil, err
	}

	if err := m.repo.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	m.metrics.SessionsCreated.Inc()
	log = log.With(zap.String("session_id", s.ID))

	link, err := m.gateway.CreatePaymentLink(ctx, payment.LinkRequest{
		AmountCents:   s.AmountTotalCents,
		Description:   fmt.Sprintf("Order %s", s.ID),
		InvoiceNumber: s.ID,
	})
	if err != nil {
		log.Error("failed to create payment link", zap.Error(err))
		return nil, err
	}

	info := PaymentInfo{
		Provider:   payment.ProviderName,
		Reference:  link.ID,
		URL:        link.URL,
		LastStatus: "created",
	}
	if err := m.repo.SetPaymentReference(ctx, s.ID, info); err != nil {
		log.Error("failed to store payment reference", zap.Error(err))
		return nil, err
	}

	log.Info("checkout started", zap.String("amount", s.AmountTotalCents.Format()))

	return &StartResult{
		SessionID:        s.ID,
		PaymentReference: link.ID,
		PaymentURL:       link.URL,
		AmountTotal:      s.AmountTotalCents.Format(),
		Pricing:          s.Snapshot.Pricing,
	}, nil
}

// StartDirectCharge charges the card synchronously and settles on approval.
// The card details are passed to the gateway and dropped; only the masked
// number is stored.
func (m *Manager) StartDirectCharge(ctx context.Context, in DirectChargeInput) (*ConfirmResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "manager"),
		zap.String("method", "StartDirectCharge"),
		zap.Int64("cart_id", in.CartID),
	)

	fields, err := in.Card.Validate(m.now())
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: prefixed("card", fields)}
	}

	s, err := m.prepare(ctx, in.StartInput, MethodCard, m.cardFeeRate)
	if err != nil {
		return nil, err
	}
	s.Metadata.MaskedCard = in.Card.Masked()

	if err := m.repo.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	m.metrics.SessionsCreated.Inc()
	log = log.With(zap.String("session_id", s.ID))

	res, err := m.gateway.Sale(ctx, payment.SaleRequest{
		AmountCents:       s.AmountTotalCents,
		Card:              in.Card,
		TransactionNumber: s.ID,
	})
	if err != nil {
		// A definite rejection fails the session. Anything else may or may
		// not have charged the card, so the session stays pending.
		var gwErr *payment.GatewayError
		if errors.As(err, &gwErr) && !gwErr.Transient {
			m.markFailed(ctx, s.ID, PaymentInfo{Provider: payment.ProviderName, LastStatus: "rejected"})
		}
		log.Error("card sale failed", zap.Error(err))
		return nil, err
	}

	info := PaymentInfo{
		Provider:   payment.ProviderName,
		Reference:  res.Reference(),
		LastStatus: "approved",
	}

	if !res.Approved() {
		info.LastStatus = "declined"
		m.markFailed(ctx, s.ID, info)
		m.metrics.Declines.Inc()
		log.Info("card declined", zap.Int("response_code", res.ResponseCode))
		return nil, fmt.Errorf("%w: %s", ErrPaymentDeclined, res.Verbiage)
	}

	// Record the approval first so a failed settlement can be retried
	// from Confirm.
	if err := m.repo.SetPaymentReference(ctx, s.ID, info); err != nil {
		log.Error("failed to record card approval", zap.Error(err))
	}

	return m.engine.settle(ctx, s, info)
}

func (m *Manager) markFailed(ctx context.Context, sessionID string, info PaymentInfo) {
	if err := m.repo.MarkFailed(ctx, sessionID, info); err != nil {
		logger.FromCtx(ctx).Error("failed to mark session failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (m *Manager) checkAvailable(ctx context.Context) error {
	if config.RuntimeFrom(ctx).MaintenanceMode {
		return ErrMaintenance
	}
	return nil
}

// prepare runs every precondition and builds the session without writing
// anything. feeRate is zero for payment links.
func (m *Manager) prepare(ctx context.Context, in StartInput, method PaymentMethod, feeRate float64) (*Session, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "manager"),
		zap.String("method", "prepare"),
		zap.Int64("cart_id", in.CartID),
	)

	if err := m.checkAvailable(ctx); err != nil {
		return nil, err
	}

	fields, err := in.ShippingAddress.Validate()
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: prefixed("shippingAddress", fields)}
	}

	c, err := m.carts.GetCart(ctx, in.CartID)
	if errors.Is(err, cart.ErrCartNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.CustomerID != in.CustomerID || c.Completed {
		return nil, ErrCartNotFound
	}

	items, err := m.carts.ListItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	pricing := cart.Price(items)
	groups := snapshotGroups(pricing)
	snap := Snapshot{VendorGroups: groups}

	if err := m.checkStock(ctx, snap); err != nil {
		return nil, err
	}

	if err := m.quoteShipping(ctx, groups, in); err != nil {
		return nil, err
	}

	snap.ShippingAddress = in.ShippingAddress
	snap.Passthrough = in.Passthrough
	snap.Pricing = breakdown(groups, feeRate)

	cartID := c.ID
	s := &Session{
		ID:               m.newID(),
		CustomerID:       in.CustomerID,
		CartID:           &cartID,
		Status:           StatusPending,
		AmountTotalCents: snap.Pricing.AmountToChargeCents,
		Snapshot:         snap,
		Metadata: SessionMetadata{
			PaymentMethod: method,
			Passthrough:   in.Passthrough,
		},
		CreatedOrderIDs: []int64{},
	}

	log.Debug("session prepared",
		zap.Int("vendor_groups", len(groups)),
		zap.String("total", snap.Pricing.TotalCents.Format()),
		zap.String("card_fee", snap.Pricing.CardFeeCents.Format()),
	)
	return s, nil
}

// checkStock is advisory: nothing is reserved, settlement re-checks under
// lock.
func (m *Manager) checkStock(ctx context.Context, snap Snapshot) error {
	keys := sortedKeys(snap.demand())
	available, err := m.stock.GetStock(ctx, keys)
	if err != nil {
		return err
	}
	if short := snap.shortfalls(available); len(short) > 0 {
		return &StockConflictError{Items: short}
	}
	return nil
}

// quoteShipping fills ShippingCents on every group. The platform group is
// quoted against the config stored under vendor id 0. Every vendor that
// cannot deliver is reported, not just the first.
func (m *Manager) quoteShipping(ctx context.Context, groups []SnapshotGroup, in StartInput) error {
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, vendorKey(g.VendorID))
	}

	dest := in.ShippingAddress.Destination()
	configs, err := m.shipping.LoadConfigs(ctx, ids, dest.Country)
	if err != nil {
		return err
	}

	var unavailable []UnavailableVendor
	for i := range groups {
		g := &groups[i]
		cfg, ok := configs[vendorKey(g.VendorID)]
		if !ok {
			unavailable = append(unavailable, UnavailableVendor{VendorID: g.VendorID, Reason: ReasonNoShippingConfig})
			continue
		}

		fee, err := shipping.Quote(cfg, shipping.QuoteRequest{
			Destination: dest,
			WeightLbs:   g.WeightLbs,
			Transport:   in.Transport,
		})
		switch {
		case errors.Is(err, shipping.ErrUndeliverable), errors.Is(err, shipping.ErrUnsupportedCountry):
			unavailable = append(unavailable, UnavailableVendor{VendorID: g.VendorID, Reason: ReasonUndeliverable})
			continue
		case errors.Is(err, shipping.ErrInvalidConfig), errors.Is(err, shipping.ErrNoConfig):
			unavailable = append(unavailable, UnavailableVendor{VendorID: g.VendorID, Reason: ReasonInvalidShippingConfig})
			continue
		case err != nil:
			return err
		}
		g.ShippingCents = fee
	}

	if len(unavailable) > 0 {
		return &UndeliverableError{Vendors: unavailable}
	}
	return nil
}

func vendorKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func prefixed(prefix string, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[prefix+"."+k] = v
	}
	return out
}
