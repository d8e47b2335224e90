package transport

import (
	"net/http"
	"strings"

	"marketplace-be/internal/address"
	"marketplace-be/internal/money"
	"marketplace-be/internal/shipping"

	"github.com/go-chi/chi/v5"
)

type QuoteRequestDTO struct {
	VendorID        int64           `json:"vendorId" validate:"min=0"`
	ShippingAddress address.Address `json:"shippingAddress" validate:"-"`
	WeightLbs       float64         `json:"weightLbs" validate:"min=0"`
	Transport       string          `json:"transport,omitempty" validate:"omitempty,oneof=air sea"`
}

type QuoteResponseDTO struct {
	VendorID      int64       `json:"vendorId"`
	ShippingCents money.Cents `json:"shippingCents"`
	Shipping      string      `json:"shipping"`
}

// Quote prices shipping for one vendor. Vendor id 0 is the platform's
// own config.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequestDTO
	if !decode(w, r, &req) {
		return
	}

	fields, err := req.ShippingAddress.Validate()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if fields != nil {
		respondValidation(w, prefixed("shippingAddress.", fields))
		return
	}

	cents, err := h.shipping.QuoteVendor(r.Context(), req.VendorID, shipping.QuoteRequest{
		Destination: req.ShippingAddress.Destination(),
		WeightLbs:   req.WeightLbs,
		Transport:   req.Transport,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, QuoteResponseDTO{
		VendorID:      req.VendorID,
		ShippingCents: cents,
		Shipping:      cents.Format(),
	})
}

// SaveShippingConfig replaces the vendor's active config for a country.
// Only admins and the vendor's own staff may change it.
func (h *Handler) SaveShippingConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	vendorID, ok := int64Param(w, r, "vendorID")
	if !ok {
		return
	}
	if !p.IsAdmin() && !p.ActsFor(&vendorID) {
		RespondError(w, http.StatusForbidden, "forbidden", "not allowed to manage this vendor")
		return
	}

	var cfg shipping.VendorConfig
	if !decode(w, r, &cfg) {
		return
	}
	cfg.VendorID = vendorID
	cfg.Country = shipping.Country(strings.ToUpper(chi.URLParam(r, "country")))
	cfg.Active = true

	if err := h.shipping.SaveConfig(r.Context(), &cfg); err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}

func prefixed(prefix string, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[prefix+k] = v
	}
	return out
}
