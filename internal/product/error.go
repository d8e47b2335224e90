package product

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrUnavailable     = errors.New("product is not available for purchase")
)
