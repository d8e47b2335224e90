package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"marketplace-be/internal/auth"
	"marketplace-be/internal/cart"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/metrics"
	"marketplace-be/internal/middleware"
	"marketplace-be/internal/order"
	"marketplace-be/internal/shipping"
	"marketplace-be/internal/validation"

	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 1 << 20

// CheckoutStarter opens checkout sessions.
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, in checkout.StartInput) (*checkout.StartResult, error)
	StartDirectCharge(ctx context.Context, in checkout.DirectChargeInput) (*checkout.ConfirmResult, error)
}

// SessionConfirmer confirms sessions on client poll and reports status.
type SessionConfirmer interface {
	Confirm(ctx context.Context, sessionID string, customerID int64) (*checkout.ConfirmResult, error)
	GetStatus(ctx context.Context, sessionID string, customerID int64) (*checkout.StatusView, error)
}

type Deps struct {
	Carts       cart.Service
	Shipping    shipping.Service
	Checkout    CheckoutStarter
	Sessions    SessionConfirmer
	Orders      order.Service
	Metrics     *metrics.Checkout
	InternalKey string
}

type Handler struct {
	carts       cart.Service
	shipping    shipping.Service
	checkout    CheckoutStarter
	sessions    SessionConfirmer
	orders      order.Service
	metrics     *metrics.Checkout
	internalKey string
}

func NewHandler(d Deps) *Handler {
	m := d.Metrics
	if m == nil {
		m = metrics.NewCheckout()
	}
	return &Handler{
		carts:       d.Carts,
		shipping:    d.Shipping,
		checkout:    d.Checkout,
		sessions:    d.Sessions,
		orders:      d.Orders,
		metrics:     m,
		internalKey: d.InternalKey,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics is only served to internal callers presenting the service key.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(middleware.ServiceAuthHeader)
	if h.internalKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.internalKey)) != 1 {
		RespondError(w, http.StatusUnauthorized, "unauthorized", "service authentication required")
		return
	}
	RespondJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// principal returns the authenticated caller or writes a 401.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok || p.CustomerID == 0 {
		RespondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return auth.Principal{}, false
	}
	return p, true
}

// decode reads a JSON body into dst and runs struct validation on it.
// It writes the error response itself and reports whether to continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeJSON(w, r, dst) && validate(w, dst)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			RespondError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
		case errors.Is(err, io.EOF):
			RespondError(w, http.StatusBadRequest, "invalid_request", "empty request body")
		default:
			RespondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		}
		return false
	}
	return true
}

func validate(w http.ResponseWriter, v any) bool {
	fields, err := validation.Struct(v)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if fields != nil {
		respondValidation(w, fields)
		return false
	}
	return true
}

func respondValidation(w http.ResponseWriter, fields map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error: "validation failed", Code: "validation_failed", Fields: fields,
	})
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
