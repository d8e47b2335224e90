package cart

import "marketplace-be/internal/money"

// VendorGroup aggregates the lines fulfilled by one vendor. A nil VendorID
// is the platform-owned group.
type VendorGroup struct {
	VendorID      *int64      `json:"vendorId"`
	Items         []CartItem  `json:"items"`
	SubtotalCents money.Cents `json:"subtotalCents"`
	TaxCents      money.Cents `json:"taxCents"`
	WeightLbs     float64     `json:"weightLbs"`
}

// Key returns the vendor id, or 0 for the platform group.
func (g VendorGroup) Key() int64 {
	if g.VendorID == nil {
		return 0
	}
	return *g.VendorID
}

type Pricing struct {
	VendorGroups  []VendorGroup `json:"vendorGroups"`
	SubtotalCents money.Cents   `json:"subtotalCents"`
	TaxCents      money.Cents   `json:"taxCents"`
}

// Price groups items by vendor in order of first appearance and sums the
// frozen unit price, tax and weight of each group. Nothing is re-priced.
func Price(items []CartItem) Pricing {
	var (
		out   Pricing
		index = make(map[int64]int)
	)

	for _, it := range items {
		key := int64(0)
		if it.VendorID != nil {
			key = *it.VendorID
		}

		i, ok := index[key]
		if !ok {
			i = len(out.VendorGroups)
			index[key] = i
			out.VendorGroups = append(out.VendorGroups, VendorGroup{VendorID: it.VendorID})
		}

		g := &out.VendorGroups[i]
		g.Items = append(g.Items, it)
		g.SubtotalCents += it.UnitPriceCents.MulQty(it.Quantity)
		g.TaxCents += it.Metadata.TaxCentsPerUnit.MulQty(it.Quantity)
		g.WeightLbs += it.Metadata.WeightLbs * float64(it.Quantity)
	}

	for _, g := range out.VendorGroups {
		out.SubtotalCents += g.SubtotalCents
		out.TaxCents += g.TaxCents
	}

	return out
}
