package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentKindPayment  PaymentKind = "PAYMENT"
	PaymentKindReversal PaymentKind = "REVERSAL"
)

// Payment is an append-only ledger entry. A reversal compensates an earlier
// payment; its Amount is stored positive and counts negative.
type Payment struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	TripID            int64           `json:"trip_id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            string          `json:"method"`
	Note              string          `json:"note"`
	PaidAt            time.Time       `json:"paid_at"`
	Kind              PaymentKind     `json:"kind"`
	ReversesPaymentID *int64          `json:"reverses_payment_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// SignedAmount is the contribution of the entry to the order's received total.
func (p *Payment) SignedAmount() decimal.Decimal {
	if p.Kind == PaymentKindReversal {
		return p.Amount.Neg()
	}
	return p.Amount
}

// SumPayments returns the signed total of entries.
func SumPayments(payments []*Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.SignedAmount())
	}
	return total
}

// ProcessPaymentRequest is the body of a payment request.
type ProcessPaymentRequest struct {
	OrderID int64           `json:"order_id"`
	TripID  int64           `json:"trip_id"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Note    string          `json:"note"`
}

// LinkOrdersRequest is the body of a trip-linking request.
type LinkOrdersRequest struct {
	OrderIDs []int64 `json:"order_ids"`
}

// ReversePaymentRequest is the body of a payment reversal request.
type ReversePaymentRequest struct {
	Note string `json:"note"`
}
