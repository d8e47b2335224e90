package transport

import (
	"net/http"

	"marketplace-be/internal/address"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"

	"github.com/go-chi/chi/v5"
)

// CheckoutRequestDTO carries the cart to check out plus the fields copied
// verbatim onto every resulting order.
type CheckoutRequestDTO struct {
	CartID          int64            `json:"cartId" validate:"required,gt=0"`
	ShippingAddress address.Address  `json:"shippingAddress" validate:"-"`
	Transport       string           `json:"transport,omitempty" validate:"omitempty,oneof=air sea"`
	Locale          string           `json:"locale,omitempty"`
	BillingAddress  *address.Address `json:"billingAddress,omitempty" validate:"-"`
	AcceptedTerms   bool             `json:"acceptedTerms"`
	Notes           string           `json:"notes,omitempty" validate:"max=1000"`
}

type DirectChargeRequestDTO struct {
	CheckoutRequestDTO
	Card payment.CardDetails `json:"card" validate:"-"`
}

func (d CheckoutRequestDTO) input(customerID int64) checkout.StartInput {
	return checkout.StartInput{
		CustomerID:      customerID,
		CartID:          d.CartID,
		ShippingAddress: d.ShippingAddress,
		Transport:       d.Transport,
		Passthrough: order.Passthrough{
			Locale:         d.Locale,
			BillingAddress: d.BillingAddress,
			AcceptedTerms:  d.AcceptedTerms,
			Notes:          d.Notes,
		},
	}
}

// StartCheckout opens a payment-link session.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CheckoutRequestDTO
	if !decode(w, r, &req) || !validBilling(w, r, req.BillingAddress) {
		return
	}

	res, err := h.checkout.StartCheckout(r.Context(), req.input(p.CustomerID))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

func (h *Handler) StartDirectCharge(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req DirectChargeRequestDTO
	if !decodeJSON(w, r, &req) || !validate(w, &req.CheckoutRequestDTO) || !validBilling(w, r, req.BillingAddress) {
		return
	}

	res, err := h.checkout.StartDirectCharge(r.Context(), checkout.DirectChargeInput{
		StartInput: req.input(p.CustomerID),
		Card:       req.Card,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// validBilling checks the optional billing address. The shipping address
// is checked by the checkout manager.
func validBilling(w http.ResponseWriter, r *http.Request, a *address.Address) bool {
	if a == nil {
		return true
	}
	fields, err := a.Validate()
	if err != nil {
		respondErr(w, r, err)
		return false
	}
	if fields != nil {
		respondValidation(w, prefixed("billingAddress.", fields))
		return false
	}
	return true
}

// Confirm is the client poll after returning from the hosted payment page.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	res, err := h.sessions.Confirm(r.Context(), chi.URLParam(r, "sessionID"), p.CustomerID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	p, ok := principal(w, r)
	if !ok {
		return
	}

	view, err := h.sessions.GetStatus(r.Context(), chi.URLParam(r, "sessionID"), p.CustomerID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}
