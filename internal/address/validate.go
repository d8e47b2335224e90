package address

import (
	"regexp"
	"strings"

	"marketplace-be/internal/shipping"
	"marketplace-be/internal/validation"
)

var usZip = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// Validate returns field-level problems keyed by JSON field name. A nil map
// means the address is deliverable in principle for its country.
func (a Address) Validate() (map[string]string, error) {
	fields, err := validation.Struct(a)
	if err != nil {
		return nil, err
	}

	add := func(field, msg string) {
		if fields == nil {
			fields = map[string]string{}
		}
		if _, exists := fields[field]; !exists {
			fields[field] = msg
		}
	}
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch a.Country {
	case shipping.CountryUS:
		if blank(a.City) {
			add("city", "is required")
		}
		if blank(a.Province) {
			add("province", "is required")
		}
		if !usZip.MatchString(strings.TrimSpace(a.PostalCode)) {
			add("postalCode", "must be a 5 digit ZIP or ZIP+4")
		}
	case shipping.CountryCU:
		if blank(a.Province) {
			add("province", "is required")
		}
		if blank(a.Municipality) {
			add("municipality", "is required")
		}
		switch a.AreaType {
		case shipping.AreaCity, shipping.AreaMunicipio, shipping.AreaRural:
		default:
			add("areaType", "must be one of: city municipio rural")
		}
	case "":
	default:
		add("country", "unsupported country")
	}

	return fields, nil
}
