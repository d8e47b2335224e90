package payment

import (
	"strings"
	"time"

	"marketplace-be/internal/validation"
)

// CardDetails are passed straight to the gateway and never persisted.
type CardDetails struct {
	Number     string `json:"number" validate:"required,credit_card"`
	ExpMonth   int    `json:"expMonth" validate:"required,min=1,max=12"`
	ExpYear    int    `json:"expYear" validate:"required,min=2000"`
	CVV        string `json:"cvv" validate:"required,numeric,min=3,max=4"`
	HolderName string `json:"holderName" validate:"required"`
}

// Validate returns field-level problems, including an expiry in the past.
func (c CardDetails) Validate(now time.Time) (map[string]string, error) {
	fields, err := validation.Struct(c)
	if err != nil {
		return nil, err
	}

	if fields["expMonth"] == "" && fields["expYear"] == "" {
		y, m := now.Year(), int(now.Month())
		if c.ExpYear < y || (c.ExpYear == y && c.ExpMonth < m) {
			if fields == nil {
				fields = map[string]string{}
			}
			fields["expYear"] = "card has expired"
		}
	}

	return fields, nil
}

// Masked keeps the last four digits of the card number.
func (c CardDetails) Masked() string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, c.Number)
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
