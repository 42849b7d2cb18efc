package models

import "time"

// Transaction statuses
const (
	TxnPending = "pending"
	TxnSuccess = "success"
	TxnFailed  = "failed"
)

// Transaction records one subscription payment attempt
type Transaction struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	TransactionID string    `json:"transaction_id"` // gateway order ID, e.g. TXN-42-1A2B3C4D
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"` // pending, success, failed
	PaymentMethod string    `json:"payment_method,omitempty"`
	Tier          string    `json:"tier"`          // tier purchased
	DurationDays  int       `json:"duration_days"` // subscription length
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreatePaymentRequest is the request body for starting a payment
type CreatePaymentRequest struct {
	Amount       float64 `json:"amount"`
	Tier         string  `json:"tier,omitempty"`
	DurationDays int     `json:"duration_days,omitempty"`
}

// CreatePaymentResponse is returned after a charge is registered with
// the payment gateway
type CreatePaymentResponse struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	PaymentURL    string  `json:"payment_url"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// PaymentNotification is the webhook payload sent by the payment gateway
type PaymentNotification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
	SignatureKey      string `json:"signature_key,omitempty"`
	StatusCode        string `json:"status_code,omitempty"`
	GrossAmount       string `json:"gross_amount,omitempty"`
}
