package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is an amount of USD expressed in integer cents.
type Cents int64

var ErrInvalidAmount = errors.New("invalid amount")

// FromFloat converts a dollar amount to cents, rounding half up.
func FromFloat(dollars float64) Cents {
	return Cents(roundHalfUp(dollars * 100))
}

// FromDecimal parses a decimal dollar string such as "12.5" or "-3.005".
// Digits beyond the cent are rounded half up.
func FromDecimal(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	frac += "000"
	cents, _ := strconv.ParseInt(frac[:2], 10, 64)
	if frac[2] >= '5' {
		cents++
	}

	total := Cents(w*100 + cents)
	if neg {
		total = -total
	}
	return total, nil
}

// MulQty multiplies a unit amount by a quantity.
func (c Cents) MulQty(qty int) Cents {
	return c * Cents(qty)
}

// MulRate applies a fractional rate (0.035 for 3.5%), rounding half up.
func (c Cents) MulRate(rate float64) Cents {
	return Cents(roundHalfUp(float64(c) * rate))
}

// Format renders the amount as a two-decimal string without a currency sign.
func (c Cents) Format() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (c Cents) String() string {
	return c.Format()
}

// Sum adds all amounts.
func Sum(amounts ...Cents) Cents {
	var total Cents
	for _, a := range amounts {
		total += a
	}
	return total
}

// Allocate splits total across parts proportionally to their weights.
// The result always sums to total; the rounding remainder goes to the
// last non-zero weight.
func Allocate(total Cents, weights []Cents) []Cents {
	out := make([]Cents, len(weights))
	if len(weights) == 0 {
		return out
	}

	var sum Cents
	last := -1
	for i, w := range weights {
		if w > 0 {
			sum += w
			last = i
		}
	}
	if sum == 0 {
		out[len(out)-1] = total
		return out
	}

	var assigned Cents
	for i, w := range weights {
		if w <= 0 || i == last {
			continue
		}
		share := Cents(roundHalfUp(float64(total) * float64(w) / float64(sum)))
		out[i] = share
		assigned += share
	}
	out[last] = total - assigned
	return out
}

// roundHalfUp rounds to the nearest integer, halves away from zero.
// The small epsilon absorbs binary representation error such as
// 1.005*100 = 100.49999999999999.
func roundHalfUp(v float64) int64 {
	const eps = 1e-9
	if v < 0 {
		return -int64(math.Floor(-v + 0.5 + eps))
	}
	return int64(math.Floor(v + 0.5 + eps))
}
