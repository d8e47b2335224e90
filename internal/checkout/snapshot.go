package checkout

import (
	"sort"

	"marketplace-be/internal/cart"
	"marketplace-be/internal/money"
	"marketplace-be/internal/product"
)

// snapshotGroups freezes the priced cart. Shipping is filled in by the
// caller, group by group.
func snapshotGroups(p cart.Pricing) []SnapshotGroup {
	groups := make([]SnapshotGroup, 0, len(p.VendorGroups))
	for _, g := range p.VendorGroups {
		sg := SnapshotGroup{
			VendorID:      g.VendorID,
			SubtotalCents: g.SubtotalCents,
			TaxCents:      g.TaxCents,
			WeightLbs:     g.WeightLbs,
			Items:         make([]SnapshotItem, 0, len(g.Items)),
		}
		for _, it := range g.Items {
			sg.Items = append(sg.Items, SnapshotItem{
				CartItemID:      it.ID,
				ProductID:       it.ProductID,
				VariantID:       it.VariantID,
				Name:            it.Name,
				Quantity:        it.Quantity,
				UnitPriceCents:  it.UnitPriceCents,
				TaxCentsPerUnit: it.Metadata.TaxCentsPerUnit,
				WeightLbs:       it.Metadata.WeightLbs,
				ImageURL:        it.Metadata.ImageURL,
			})
		}
		groups = append(groups, sg)
	}
	return groups
}

// breakdown totals the groups. A positive fee rate adds the card surcharge
// on top of the total; it is never folded into item prices.
func breakdown(groups []SnapshotGroup, feeRate float64) PricingBreakdown {
	var b PricingBreakdown
	for _, g := range groups {
		b.SubtotalCents += g.SubtotalCents
		b.TaxCents += g.TaxCents
		b.ShippingCents += g.ShippingCents
	}
	b.TotalCents = money.Sum(b.SubtotalCents, b.TaxCents, b.ShippingCents)
	if feeRate > 0 {
		b.CardFeeRate = feeRate
		b.CardFeeCents = b.TotalCents.MulRate(feeRate)
	}
	b.AmountToChargeCents = b.TotalCents + b.CardFeeCents
	return b
}

// demand sums requested quantity per stock row, so two lines drawing on
// the same row are checked together.
func (s Snapshot) demand() map[product.StockKey]int {
	out := map[product.StockKey]int{}
	for _, g := range s.VendorGroups {
		for _, it := range g.Items {
			out[it.StockKey()] += it.Quantity
		}
	}
	return out
}

func sortedKeys(demand map[product.StockKey]int) []product.StockKey {
	keys := make([]product.StockKey, 0, len(demand))
	for k := range demand {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// shortfalls lists, in snapshot order, each stock row that cannot cover
// its demand. Missing rows count as zero stock.
func (s Snapshot) shortfalls(available map[product.StockKey]int) []StockShortfall {
	demand := s.demand()
	seen := map[product.StockKey]bool{}

	var out []StockShortfall
	for _, g := range s.VendorGroups {
		for _, it := range g.Items {
			k := it.StockKey()
			if seen[k] {
				continue
			}
			seen[k] = true
			if have := available[k]; have < demand[k] {
				out = append(out, StockShortfall{
					ProductID: it.ProductID,
					VariantID: it.VariantID,
					Name:      it.Name,
					Requested: demand[k],
					Available: have,
				})
			}
		}
	}
	return out
}

func (s Snapshot) groupTotals() []money.Cents {
	out := make([]money.Cents, len(s.VendorGroups))
	for i, g := range s.VendorGroups {
		out[i] = g.TotalCents()
	}
	return out
}

// redact keeps the last four characters of a payment reference.
func redact(ref string) string {
	const keep = 4
	if ref == "" {
		return ""
	}
	if len(ref) <= keep {
		return "****"
	}
	return "****" + ref[len(ref)-keep:]
}
