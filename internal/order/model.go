package order

import (
	"time"

	"marketplace-be/internal/address"
	"marketplace-be/internal/money"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
)

// Passthrough is order-level data the customer supplied at checkout and
// that is carried onto every order unchanged.
type Passthrough struct {
	Locale         string           `json:"locale,omitempty"`
	BillingAddress *address.Address `json:"billingAddress,omitempty"`
	AcceptedTerms  bool             `json:"acceptedTerms"`
	Notes          string           `json:"notes,omitempty"`
}

type Metadata struct {
	ShippingAddress address.Address `json:"shippingAddress"`
	Passthrough

	PaymentMethod     string      `json:"paymentMethod"`
	PaymentProvider   string      `json:"paymentProvider"`
	PaymentReference  string      `json:"paymentReference"`
	CardFeeShareCents money.Cents `json:"cardFeeShareCents"`
}

type LineItemMetadata struct {
	TaxCentsPerUnit money.Cents `json:"taxCentsPerUnit"`
	WeightLbs       float64     `json:"weightLbs"`
	ImageURL        *string     `json:"imageUrl,omitempty"`
}

// LineItem freezes the quantity and price a customer paid, independent of
// the cart line it came from.
type LineItem struct {
	ID             int64            `json:"id"`
	OrderID        int64            `json:"orderId"`
	ProductID      *int64           `json:"productId,omitempty"`
	VariantID      *int64           `json:"variantId,omitempty"`
	Name           string           `json:"name"`
	Quantity       int              `json:"quantity"`
	UnitPriceCents money.Cents      `json:"unitPriceCents"`
	Metadata       LineItemMetadata `json:"metadata"`
}

// Order is one vendor's share of a settled checkout. TotalCents excludes
// the card fee, whose share lives in Metadata.
type Order struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customerId"`
	VendorID   *int64 `json:"vendorId,omitempty"`
	SessionID  string `json:"sessionId"`
	Status     Status `json:"status"`

	SubtotalCents money.Cents `json:"subtotalCents"`
	TaxCents      money.Cents `json:"taxCents"`
	ShippingCents money.Cents `json:"shippingCents"`
	TotalCents    money.Cents `json:"totalCents"`

	Metadata    Metadata             `json:"metadata"`
	StatusTimes map[Status]time.Time `json:"statusTimes"`

	PaidAt       *time.Time `json:"paidAt,omitempty"`
	ProcessingAt *time.Time `json:"processingAt,omitempty"`
	ShippedAt    *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Items []LineItem `json:"items"`
}
