package payment

import (
	"errors"
	"fmt"
)

var (
	ErrCircuitOpen      = errors.New("payment gateway temporarily unavailable")
	ErrMalformedPayload = errors.New("malformed gateway response")
	ErrInvalidCard      = errors.New("invalid card details")
)

// GatewayError is a failed exchange with the gateway. Transient errors are
// retried by the client; the rest are surfaced immediately.
type GatewayError struct {
	StatusCode int
	Body       string
	Transient  bool
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gateway error: %s", e.Body)
	}
	return fmt.Sprintf("gateway error: status %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Transient
	}
	return false
}
