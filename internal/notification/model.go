package notification

import (
	"marketplace-be/internal/money"
	"marketplace-be/internal/order"
)

type Recipient string

const (
	RecipientCustomer Recipient = "customer"
	RecipientVendor   Recipient = "vendor"
)

const KindOrderPaid = "order_paid"

// Message is what the email renderer consumes. It names the order rather
// than carrying addresses, so the renderer looks up its own contact data.
type Message struct {
	Kind       string      `json:"kind"`
	Recipient  Recipient   `json:"recipient"`
	OrderID    int64       `json:"orderId"`
	SessionID  string      `json:"sessionId"`
	CustomerID int64       `json:"customerId"`
	VendorID   *int64      `json:"vendorId,omitempty"`
	TotalCents money.Cents `json:"totalCents"`
	Total      string      `json:"total"`
	ItemCount  int         `json:"itemCount"`
	Locale     string      `json:"locale,omitempty"`
}

func orderPaidMessages(o order.Order) []Message {
	items := 0
	for _, it := range o.Items {
		items += it.Quantity
	}
	base := Message{
		Kind:       KindOrderPaid,
		OrderID:    o.ID,
		SessionID:  o.SessionID,
		CustomerID: o.CustomerID,
		VendorID:   o.VendorID,
		TotalCents: o.TotalCents,
		Total:      o.TotalCents.Format(),
		ItemCount:  items,
		Locale:     o.Metadata.Locale,
	}

	customer, vendor := base, base
	customer.Recipient = RecipientCustomer
	vendor.Recipient = RecipientVendor
	return []Message{customer, vendor}
}
