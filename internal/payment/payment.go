package payment

import "context"

// Gateway is the external card-payment provider.
type Gateway interface {
	// CreatePaymentLink opens a hosted payment page tagged with the
	// invoice number used as the correlation key.
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*PaymentLink, error)
	// QueryPaymentLinks lists the payment links carrying an invoice number.
	QueryPaymentLinks(ctx context.Context, invoiceNumber string) ([]LinkRecord, error)
	// Sale charges a card synchronously.
	Sale(ctx context.Context, req SaleRequest) (*SaleResult, error)
}
