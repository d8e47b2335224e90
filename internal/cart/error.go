package cart

import "errors"

var (
	// -- Validation & Input --
	ErrInvalidQuantity = errors.New("invalid cart quantity")

	// -- Resource State --
	ErrCartNotFound         = errors.New("cart not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrCartItemAlreadyExist = errors.New("cart item already exists")
	ErrInsufficientStock    = errors.New("insufficient stock")

	// -- Constants (External Systems) --
	PgUniqueViolation = "23505"
)
