package order

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("not allowed to access this order")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidStatus     = errors.New("invalid order status")
)
