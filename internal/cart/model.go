package cart

import (
	"time"

	"marketplace-be/internal/money"
	"marketplace-be/internal/product"
)

// Cart belongs to one customer. At most one incomplete cart exists per
// customer; it is completed exactly once, when its checkout settles.
type Cart struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customerId"`
	Completed  bool      `json:"completed"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ItemMetadata is the per-unit snapshot frozen when the line was priced.
type ItemMetadata struct {
	TaxCentsPerUnit money.Cents `json:"taxCentsPerUnit"`
	WeightLbs       float64     `json:"weightLbs"`
	ImageURL        *string     `json:"imageUrl,omitempty"`
}

type CartItem struct {
	ID             int64        `json:"id"`
	CartID         int64        `json:"cartId"`
	ProductID      int64        `json:"productId"`
	VariantID      *int64       `json:"variantId,omitempty"`
	VendorID       *int64       `json:"vendorId,omitempty"`
	Name           string       `json:"name"`
	Quantity       int          `json:"quantity"`
	UnitPriceCents money.Cents  `json:"unitPriceCents"`
	Metadata       ItemMetadata `json:"metadata"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func (i CartItem) StockKey() product.StockKey {
	return product.KeyFor(i.ProductID, i.VariantID)
}

type AddItemParams struct {
	CustomerID int64
	ProductID  int64
	VariantID  *int64
	Quantity   int
}

type UpdateItemParams struct {
	CustomerID int64
	ItemID     int64
	Quantity   int
}

// View is the customer's open cart with its aggregated pricing.
type View struct {
	Cart    *Cart      `json:"cart"`
	Items   []CartItem `json:"items"`
	Pricing Pricing    `json:"pricing"`
}
