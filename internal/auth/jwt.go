package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Role     string `json:"role"`
	VendorID *int64 `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 access token and returns its principal.
func ParseToken(secret []byte, token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if role == RoleVendor && claims.VendorID == nil {
		return Principal{}, fmt.Errorf("%w: vendor staff without vendor", ErrInvalidToken)
	}

	p := Principal{CustomerID: id, Role: role}
	if role == RoleVendor {
		p.VendorID = claims.VendorID
	}
	return p, nil
}

// IssueToken signs an access token for p.
func IssueToken(secret []byte, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:     string(p.Role),
		VendorID: p.VendorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.CustomerID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
