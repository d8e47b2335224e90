package product

import "marketplace-be/internal/money"

// PriceQuote is the frozen per-unit pricing written onto a cart line.
type PriceQuote struct {
	UnitPriceCents  money.Cents
	TaxCentsPerUnit money.Cents
	WeightLbs       float64
	ImageURL        *string
}

// UnitPrice runs the pricing pipeline: (base cost + duty) marked up by the
// margin, then tax on the resulting price when the product is taxable.
func UnitPrice(p *Product, v *Variant) PriceQuote {
	base := p.BaseCostCents
	weight := p.WeightLbs
	image := p.ImageURL

	if v != nil {
		if v.BaseCostCents != nil {
			base = *v.BaseCostCents
		}
		if v.WeightLbs != nil {
			weight = *v.WeightLbs
		}
		if v.ImageURL != nil {
			image = v.ImageURL
		}
	}

	price := (base + p.DutyCents).MulRate(1 + p.MarginPercent/100)

	var tax money.Cents
	if p.Taxable && p.TaxPercent > 0 {
		tax = price.MulRate(p.TaxPercent / 100)
	}

	return PriceQuote{
		UnitPriceCents:  price,
		TaxCentsPerUnit: tax,
		WeightLbs:       weight,
		ImageURL:        image,
	}
}
