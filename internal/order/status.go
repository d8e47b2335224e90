package order

import "marketplace-be/internal/auth"

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusPaid:       1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// stampColumns names the timestamp column each status sets.
var stampColumns = map[Status]string{
	StatusPaid:       "paid_at",
	StatusProcessing: "processing_at",
	StatusShipped:    "shipped_at",
	StatusDelivered:  "delivered_at",
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusRank[st]; !ok {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// CanTransition reports whether p may move o from its current status to
// next. Vendor staff drive fulfilment of their own vendor's orders,
// delivery staff confirm delivery, admins may make any forward move.
func CanTransition(p auth.Principal, o *Order, next Status) bool {
	from := o.Status
	if statusRank[next] <= statusRank[from] {
		return false
	}

	switch p.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleVendor:
		if !p.ActsFor(o.VendorID) {
			return false
		}
		return (from == StatusPaid && next == StatusProcessing) ||
			(from == StatusProcessing && next == StatusShipped)
	case auth.RoleDelivery:
		return from == StatusShipped && next == StatusDelivered
	default:
		return false
	}
}

// CanView reports whether p may read o.
func CanView(p auth.Principal, o *Order) bool {
	switch p.Role {
	case auth.RoleAdmin, auth.RoleDelivery:
		return true
	case auth.RoleVendor:
		return p.ActsFor(o.VendorID) || o.CustomerID == p.CustomerID
	default:
		return o.CustomerID == p.CustomerID
	}
}
