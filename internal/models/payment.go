package models

import "time"

// CheckoutSession is returned by /payment/create-checkout-session.
type CheckoutSession struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// Payment is the record confirmed by /payment/verify-session. Amount is in
// the smallest currency unit.
type Payment struct {
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	PaymentDate time.Time `json:"paymentDate"`
	Status      string    `json:"status,omitempty"`
}

// Major returns the amount in whole currency units.
func (p Payment) Major() float64 { return float64(p.Amount) / 100 }
