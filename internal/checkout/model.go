package checkout

import (
	"time"

	"marketplace-be/internal/address"
	"marketplace-be/internal/money"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/product"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// IsTerminal reports whether no further transition is legal.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusExpired
}

// CanTransitionTo allows only pending to one of the terminal states.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

type PaymentMethod string

const (
	MethodPaymentLink PaymentMethod = "payment_link"
	MethodCard        PaymentMethod = "card"
)

// SnapshotItem is one cart line as frozen at checkout start.
type SnapshotItem struct {
	CartItemID      int64       `json:"cartItemId"`
	ProductID       int64       `json:"productId"`
	VariantID       *int64      `json:"variantId,omitempty"`
	Name            string      `json:"name"`
	Quantity        int         `json:"quantity"`
	UnitPriceCents  money.Cents `json:"unitPriceCents"`
	TaxCentsPerUnit money.Cents `json:"taxCentsPerUnit"`
	WeightLbs       float64     `json:"weightLbs"`
	ImageURL        *string     `json:"imageUrl,omitempty"`
}

func (i SnapshotItem) StockKey() product.StockKey {
	return product.KeyFor(i.ProductID, i.VariantID)
}

type SnapshotGroup struct {
	VendorID      *int64         `json:"vendorId"`
	Items         []SnapshotItem `json:"items"`
	SubtotalCents money.Cents    `json:"subtotalCents"`
	TaxCents      money.Cents    `json:"taxCents"`
	ShippingCents money.Cents    `json:"shippingCents"`
	WeightLbs     float64        `json:"weightLbs"`
}

// TotalCents is what the vendor's order records as its total. The card fee
// is never part of it.
func (g SnapshotGroup) TotalCents() money.Cents {
	return g.SubtotalCents + g.TaxCents + g.ShippingCents
}

type PricingBreakdown struct {
	SubtotalCents       money.Cents `json:"subtotalCents"`
	TaxCents            money.Cents `json:"taxCents"`
	ShippingCents       money.Cents `json:"shippingCents"`
	TotalCents          money.Cents `json:"totalCents"`
	CardFeeRate         float64     `json:"cardFeeRate"`
	CardFeeCents        money.Cents `json:"cardFeeCents"`
	AmountToChargeCents money.Cents `json:"amountToChargeCents"`
}

// Snapshot is written once with the session and never updated. Settlement
// reads prices and quantities from it, not from the catalogue.
type Snapshot struct {
	VendorGroups    []SnapshotGroup   `json:"vendorGroups"`
	ShippingAddress address.Address   `json:"shippingAddress"`
	Pricing         PricingBreakdown  `json:"pricing"`
	Passthrough     order.Passthrough `json:"passthrough"`
}

type SessionMetadata struct {
	PaymentMethod PaymentMethod     `json:"paymentMethod"`
	MaskedCard    string            `json:"maskedCard,omitempty"`
	Passthrough   order.Passthrough `json:"passthrough"`
}

// PaymentInfo correlates the session with the gateway.
type PaymentInfo struct {
	Provider   string `json:"provider"`
	Reference  string `json:"reference"`
	URL        string `json:"url,omitempty"`
	LastStatus string `json:"lastStatus"`
}

type Session struct {
	ID               string
	CustomerID       int64
	CartID           *int64
	Status           Status
	AmountTotalCents money.Cents
	Snapshot         Snapshot
	Metadata         SessionMetadata
	Payment          PaymentInfo
	CreatedOrderIDs  []int64
	ProcessedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type StartInput struct {
	CustomerID      int64
	CartID          int64
	ShippingAddress address.Address
	Transport       string
	Passthrough     order.Passthrough
}

type DirectChargeInput struct {
	StartInput
	Card payment.CardDetails
}

type StartResult struct {
	SessionID        string           `json:"sessionId"`
	PaymentReference string           `json:"paymentReference"`
	PaymentURL       string           `json:"paymentUrl"`
	AmountTotal      string           `json:"amountTotal"`
	Pricing          PricingBreakdown `json:"pricing"`
}

type ConfirmResult struct {
	SessionID      string  `json:"sessionId"`
	Status         Status  `json:"status"`
	OrderIDs       []int64 `json:"orderIds"`
	AlreadySettled bool    `json:"alreadySettled"`
}

// StatusView is safe to show the client: no payment URL, no card data,
// and only the tail of the payment reference.
type StatusView struct {
	SessionID        string  `json:"sessionId"`
	Status           Status  `json:"status"`
	PaymentReference string  `json:"paymentReference"`
	AmountTotal      string  `json:"amountTotal"`
	OrderIDs         []int64 `json:"orderIds"`
}

// Settlement is the outcome of Repository.Settle.
type Settlement struct {
	OrderIDs       []int64
	Orders         []order.Order
	AlreadySettled bool
}

// Reconciliation records a charge that could not be turned into orders.
type Reconciliation struct {
	SessionID        string
	PaymentReference string
	AmountCents      money.Cents
	Shortfalls       []StockShortfall
	Reason           string
}

const (
	ReasonStockConflict    = "stock_conflict_after_payment"
	ReasonSettlementFailed = "settlement_failed_after_payment"
)
