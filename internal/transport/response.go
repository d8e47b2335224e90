package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"marketplace-be/internal/cart"
	"marketplace-be/internal/checkout"
	"marketplace-be/internal/logger"
	"marketplace-be/internal/order"
	"marketplace-be/internal/payment"
	"marketplace-be/internal/product"
	"marketplace-be/internal/shipping"

	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details any               `json:"details,omitempty"`
}

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L().Error("failed to encode response", zap.Error(err))
	}
}

func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondErr maps a domain error onto a status and a structured body.
// Unknown errors are logged and reported as a bare 500.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *checkout.ValidationError
		stock       *checkout.StockConflictError
		undeliver   *checkout.UndeliverableError
		settlement  *checkout.SettlementConflictError
		gatewayFail *payment.GatewayError
	)

	switch {
	case errors.As(err, &validation):
		RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "validation failed", Code: "validation_failed", Fields: validation.Fields,
		})
	case errors.As(err, &settlement):
		RespondJSON(w, http.StatusConflict, ErrorResponse{
			Error: "payment received but the order could not be completed",
			Code:  "settlement_conflict",
			Details: map[string]any{
				"sessionId":        settlement.SessionID,
				"shortfalls":       settlement.Shortfalls,
				"reconciliationId": settlement.ReconciliationID,
			},
		})
	case errors.As(err, &stock):
		RespondJSON(w, http.StatusConflict, ErrorResponse{
			Error: "insufficient stock", Code: "insufficient_stock", Details: stock.Items,
		})
	case errors.As(err, &undeliver):
		RespondJSON(w, http.StatusConflict, ErrorResponse{
			Error: "some vendors cannot deliver to this address", Code: "vendors_unavailable", Details: undeliver.Vendors,
		})

	case errors.Is(err, checkout.ErrPaymentDeclined):
		RespondError(w, http.StatusPaymentRequired, "payment_declined", err.Error())
	case errors.Is(err, checkout.ErrMaintenance), errors.Is(err, payment.ErrCircuitOpen):
		RespondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.As(err, &gatewayFail), errors.Is(err, payment.ErrMalformedPayload):
		logger.FromCtx(r.Context()).Error("payment gateway error", zap.Error(err))
		RespondError(w, http.StatusBadGateway, "gateway_error", "payment gateway error")
	case errors.Is(err, context.DeadlineExceeded):
		RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")

	case errors.Is(err, checkout.ErrSessionNotFound),
		errors.Is(err, checkout.ErrCartNotFound),
		errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrCartItemNotFound),
		errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, product.ErrVariantNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, shipping.ErrNoConfig):
		RespondError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, checkout.ErrForbidden), errors.Is(err, order.ErrForbidden):
		RespondError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, checkout.ErrSessionNotPending),
		errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, cart.ErrCartItemAlreadyExist),
		errors.Is(err, product.ErrUnavailable),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, shipping.ErrUndeliverable):
		RespondError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, shipping.ErrInvalidConfig),
		errors.Is(err, shipping.ErrUnsupportedCountry),
		errors.Is(err, shipping.ErrInvalidWeight):
		RespondError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())

	default:
		logger.FromCtx(r.Context()).Error("unhandled error",
			zap.String("path", r.URL.Path), zap.Error(err))
		RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
