package shipping

import (
	"fmt"
	"strings"
	"unicode"

	"marketplace-be/internal/money"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var havanaNames = map[string]bool{
	"havana":              true,
	"la habana":           true,
	"habana":              true,
	"ciudad de la habana": true,
	"la havana":           true,
}

// Quote computes the delivery fee for one vendor group. It never returns a
// zero fee for a destination the vendor cannot serve; that case is
// ErrUndeliverable.
func Quote(cfg *VendorConfig, req QuoteRequest) (money.Cents, error) {
	if cfg == nil {
		return 0, ErrNoConfig
	}
	if req.WeightLbs < 0 {
		return 0, ErrInvalidWeight
	}
	if cfg.Country != req.Country {
		return 0, fmt.Errorf("%w: config for %s, destination %s", ErrInvalidConfig, cfg.Country, req.Country)
	}
	if !AreaAllowed(cfg.AllowedAreas, req.Destination) {
		return 0, ErrUndeliverable
	}

	var fee money.Cents
	switch req.Country {
	case CountryUS:
		fee = cfg.FlatCents

	case CountryCU:
		zone := ResolveZone(req.Province, req.AreaType)
		switch cfg.Mode {
		case ModeFixed:
			fee = cfg.ZoneFlatCents[zone]
		case ModeWeight:
			rate := cfg.RatePerLbCents
			if override, ok := cfg.TransportRateCents[strings.ToLower(req.Transport)]; ok && req.Transport != "" {
				rate = override
			}
			fee = cfg.ZoneBaseCents[zone] + money.FromFloat(float64(rate)*req.WeightLbs/100)
			if fee < cfg.MinFeeCents {
				fee = cfg.MinFeeCents
			}
		default:
			return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
		}

	default:
		return 0, ErrUnsupportedCountry
	}

	if cfg.OverweightThresholdLbs > 0 && cfg.OverweightFeeCents > 0 && req.WeightLbs > cfg.OverweightThresholdLbs {
		fee += cfg.OverweightFeeCents
	}

	return fee, nil
}

// ResolveZone maps a Cuban province and area type onto one of the four
// zone keys.
func ResolveZone(province string, areaType AreaType) ZoneKey {
	havana := havanaNames[normalize(province)]
	city := AreaType(normalize(string(areaType))) == AreaCity

	switch {
	case havana && city:
		return ZoneHavanaCity
	case havana:
		return ZoneHavanaOther
	case city:
		return ZoneProvinceCity
	default:
		return ZoneProvinceRural
	}
}

// AreaAllowed reports whether dest is on the allow-list. An empty list
// allows everything.
func AreaAllowed(allowed []string, dest Destination) bool {
	if len(allowed) == 0 {
		return true
	}

	province := normalize(dest.Province)
	municipality := normalize(dest.Municipality)
	candidates := []string{province}
	if municipality != "" {
		candidates = append(candidates, municipality, province+"/"+municipality)
	}

	for _, entry := range allowed {
		e := normalize(entry)
		if e == "" {
			continue
		}
		for _, c := range candidates {
			if c != "" && c == e {
				return true
			}
		}
	}
	return false
}

// Validate checks a config before it is stored.
func (c *VendorConfig) Validate() error {
	if c.VendorID < 0 {
		return fmt.Errorf("%w: bad vendor id", ErrInvalidConfig)
	}

	switch c.Country {
	case CountryUS:
		if c.FlatCents < 0 {
			return fmt.Errorf("%w: negative flat fee", ErrInvalidConfig)
		}
	case CountryCU:
		if c.Mode != ModeFixed && c.Mode != ModeWeight {
			return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
		}
		for zone, v := range c.ZoneFlatCents {
			if !validZone(zone) || v < 0 {
				return fmt.Errorf("%w: bad flat amount for zone %q", ErrInvalidConfig, zone)
			}
		}
		for zone, v := range c.ZoneBaseCents {
			if !validZone(zone) || v < 0 {
				return fmt.Errorf("%w: bad base amount for zone %q", ErrInvalidConfig, zone)
			}
		}
		if c.RatePerLbCents < 0 || c.MinFeeCents < 0 {
			return fmt.Errorf("%w: negative weight rate", ErrInvalidConfig)
		}
	default:
		return ErrUnsupportedCountry
	}

	if c.OverweightThresholdLbs < 0 || c.OverweightFeeCents < 0 {
		return fmt.Errorf("%w: negative over-weight rule", ErrInvalidConfig)
	}
	return nil
}

func validZone(z ZoneKey) bool {
	for _, k := range AllZones {
		if k == z {
			return true
		}
	}
	return false
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases, strips accents and collapses inner whitespace.
func normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
