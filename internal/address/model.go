package address

import "marketplace-be/internal/shipping"

// Address is a shipping or billing address as entered at checkout. Which
// fields are required depends on the country.
type Address struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required,min=7,max=20"`

	Address1 string  `json:"address1" validate:"required"`
	Address2 *string `json:"address2,omitempty"`

	City         string            `json:"city,omitempty"`
	Province     string            `json:"province,omitempty"`
	Municipality string            `json:"municipality,omitempty"`
	AreaType     shipping.AreaType `json:"areaType,omitempty"`
	PostalCode   string            `json:"postalCode,omitempty"`
	Country      shipping.Country  `json:"country" validate:"required"`
}

// Destination is the part of the address the shipping resolver reads.
func (a Address) Destination() shipping.Destination {
	return shipping.Destination{
		Country:      a.Country,
		Province:     a.Province,
		Municipality: a.Municipality,
		AreaType:     a.AreaType,
	}
}
