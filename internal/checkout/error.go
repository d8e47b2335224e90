package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionNotFound   = errors.New("checkout session not found")
	ErrCartNotFound      = errors.New("cart not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrForbidden         = errors.New("forbidden")
	ErrMaintenance       = errors.New("checkout is temporarily unavailable")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrSessionNotPending = errors.New("checkout session is not pending")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

type StockShortfall struct {
	ProductID int64  `json:"productId"`
	VariantID *int64 `json:"variantId,omitempty"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type StockConflictError struct {
	Items []StockShortfall
}

func (e *StockConflictError) Error() string {
	names := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		names = append(names, it.Name)
	}
	return fmt.Sprintf("insufficient stock: %s", strings.Join(names, ", "))
}

const (
	ReasonNoShippingConfig      = "no_shipping_config"
	ReasonUndeliverable         = "undeliverable"
	ReasonInvalidShippingConfig = "invalid_shipping_config"
)

type UnavailableVendor struct {
	VendorID *int64 `json:"vendorId"`
	Reason   string `json:"reason"`
}

type UndeliverableError struct {
	Vendors []UnavailableVendor
}

func (e *UndeliverableError) Error() string {
	return fmt.Sprintf("%d vendor(s) cannot deliver to the shipping address", len(e.Vendors))
}

// SettlementConflictError means the gateway took the money but stock ran
// out before settlement. The session stays pending and a reconciliation
// record exists when ReconciliationID is non-zero.
type SettlementConflictError struct {
	SessionID        string
	Shortfalls       []StockShortfall
	ReconciliationID int64
}

func (e *SettlementConflictError) Error() string {
	return fmt.Sprintf("session %s paid but could not be settled: stock conflict", e.SessionID)
}
