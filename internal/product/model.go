package product

import "marketplace-be/internal/money"

type Product struct {
	ID       int64
	VendorID *int64 // nil for platform-owned products
	Name     string

	BaseCostCents money.Cents
	DutyCents     money.Cents
	MarginPercent float64
	TaxPercent    float64
	Taxable       bool

	WeightLbs float64
	ImageURL  *string
	StockQty  int
	Archived  bool
}

// Variant overrides product facts when set.
type Variant struct {
	ID            int64
	ProductID     int64
	Name          string
	BaseCostCents *money.Cents
	WeightLbs     *float64
	ImageURL      *string
	StockQty      int
	Archived      bool
}

// StockKey identifies the row that holds stock for a purchase: the variant
// when one is chosen, the product otherwise.
type StockKey struct {
	ProductID int64
	VariantID int64
}

func KeyFor(productID int64, variantID *int64) StockKey {
	k := StockKey{ProductID: productID}
	if variantID != nil {
		k.VariantID = *variantID
	}
	return k
}

func (k StockKey) HasVariant() bool {
	return k.VariantID != 0
}

// Less orders keys for deterministic row locking.
func (k StockKey) Less(o StockKey) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	return k.VariantID < o.VariantID
}
