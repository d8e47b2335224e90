package payment

import (
	"bytes"
	"encoding/json"
	"strings"

	"marketplace-be/internal/money"
)

const ProviderName = "CARDGATE"

type LinkRequest struct {
	AmountCents   money.Cents
	Description   string
	InvoiceNumber string
}

// PaymentLink is a hosted payment page. URL already carries the return
// URL parameter.
type PaymentLink struct {
	ID  string
	URL string
}

// LinkStatus is the gateway's status field, sent either as a number or as
// a string.
type LinkStatus string

func (s *LinkStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = LinkStatus(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = LinkStatus(n.String())
	return nil
}

// Paid reports the settled state: status 1 or the literal "paid".
func (s LinkStatus) Paid() bool {
	v := strings.TrimSpace(string(s))
	return v == "1" || strings.EqualFold(v, "paid")
}

type LinkRecord struct {
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoiceNumber"`
	Status        LinkStatus `json:"status"`
}

// FindLink returns the record whose invoice number and id both match.
func FindLink(records []LinkRecord, invoiceNumber, linkID string) (LinkRecord, bool) {
	for _, r := range records {
		if r.InvoiceNumber == invoiceNumber && r.ID == linkID {
			return r, true
		}
	}
	return LinkRecord{}, false
}

type SaleRequest struct {
	AmountCents       money.Cents
	Card              CardDetails
	TransactionNumber string
}

type SaleResult struct {
	TransactionID string `json:"transactionId"`
	ResponseCode  int    `json:"responseCode"`
	Verbiage      string `json:"verbiage"`
	AuthNumber    string `json:"authNumber"`
}

const approvedResponseCode = 200

// Approved is true on any approval signal: the success code, approval
// verbiage, or an authorization number.
func (r SaleResult) Approved() bool {
	if r.ResponseCode == approvedResponseCode {
		return true
	}
	if strings.Contains(strings.ToUpper(r.Verbiage), "APPROV") {
		return true
	}
	return strings.TrimSpace(r.AuthNumber) != ""
}

// Reference is the gateway transaction id, falling back to the
// authorization number.
func (r SaleResult) Reference() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	return r.AuthNumber
}
