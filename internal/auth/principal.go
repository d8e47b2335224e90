package auth

import (
	"context"
	"errors"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleDelivery Role = "delivery"
	RoleAdmin    Role = "admin"
)

var ErrInvalidRole = errors.New("invalid role")

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleVendor, RoleDelivery, RoleAdmin:
		return r, nil
	case "":
		return RoleCustomer, nil
	default:
		return "", ErrInvalidRole
	}
}

// Principal is the authenticated caller. VendorID is set only for vendor
// staff and names the vendor they act for.
type Principal struct {
	CustomerID int64
	Role       Role
	VendorID   *int64
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ActsFor reports whether p is staff of the given vendor.
func (p Principal) ActsFor(vendorID *int64) bool {
	if p.Role != RoleVendor || p.VendorID == nil || vendorID == nil {
		return false
	}
	return *p.VendorID == *vendorID
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
