package shipping

import "errors"

var (
	ErrUndeliverable      = errors.New("vendor does not deliver to destination")
	ErrNoConfig           = errors.New("no active shipping config for vendor")
	ErrUnsupportedCountry = errors.New("unsupported destination country")
	ErrInvalidConfig      = errors.New("invalid shipping config")
	ErrInvalidWeight      = errors.New("invalid shipment weight")
)
