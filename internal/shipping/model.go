package shipping

import (
	"marketplace-be/internal/money"
)

type Country string

const (
	CountryUS Country = "US"
	CountryCU Country = "CU"
)

type Mode string

const (
	ModeFixed  Mode = "fixed"
	ModeWeight Mode = "weight"
)

// ZoneKey is the Cuban (province class x area type) rate bucket.
type ZoneKey string

const (
	ZoneHavanaCity    ZoneKey = "havana_city"
	ZoneHavanaOther   ZoneKey = "havana_other"
	ZoneProvinceCity  ZoneKey = "province_city"
	ZoneProvinceRural ZoneKey = "province_rural"
)

var AllZones = []ZoneKey{ZoneHavanaCity, ZoneHavanaOther, ZoneProvinceCity, ZoneProvinceRural}

type AreaType string

const (
	AreaCity      AreaType = "city"
	AreaMunicipio AreaType = "municipio"
	AreaRural     AreaType = "rural"
)

// VendorConfig holds one vendor's rate rules for one destination country.
// At most one active row exists per (VendorID, Country).
type VendorConfig struct {
	ID       int64   `json:"id"`
	VendorID int64   `json:"vendor_id"`
	Country  Country `json:"country"`
	Mode     Mode    `json:"mode"`
	Active   bool    `json:"active"`

	// US
	FlatCents money.Cents `json:"flat_cents"`

	// CU, fixed mode
	ZoneFlatCents map[ZoneKey]money.Cents `json:"zone_flat_cents,omitempty"`

	// CU, weight mode
	ZoneBaseCents      map[ZoneKey]money.Cents `json:"zone_base_cents,omitempty"`
	RatePerLbCents     money.Cents             `json:"rate_per_lb_cents"`
	TransportRateCents map[string]money.Cents  `json:"transport_rate_cents,omitempty"`
	MinFeeCents        money.Cents             `json:"min_fee_cents"`

	// Applies to every mode when both are set.
	OverweightThresholdLbs float64     `json:"overweight_threshold_lbs"`
	OverweightFeeCents     money.Cents `json:"overweight_fee_cents"`

	// Empty means the vendor delivers anywhere in the country.
	AllowedAreas []string `json:"allowed_areas,omitempty"`
}

// Destination is where a vendor group is being shipped.
type Destination struct {
	Country      Country
	Province     string
	Municipality string
	AreaType     AreaType
}

type QuoteRequest struct {
	Destination
	WeightLbs float64
	Transport string
}
