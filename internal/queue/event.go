// Package queue defines message payloads exchanged over the message
// broker.
package queue

// BookingConfirmedEvent is published when a vendor booking completes.
// It carries enough information for downstream consumers to log or
// notify without querying the primary store.
type BookingConfirmedEvent struct {
	SpotID        string   `json:"spot_id"`
	CustomerName  string   `json:"customer_name"`
	Email         string   `json:"email"`
	CompanyName   string   `json:"company_name,omitempty"`
	Addons        []string `json:"addons,omitempty"`
	TotalAmount   float64  `json:"total_amount"`
	TransactionID string   `json:"transaction_id"`
	ConfirmedAt   string   `json:"confirmed_at"`
}

// PaymentOrphanedEvent is published when a charge completed but the
// reservation was lost to a concurrent booking. The transaction id is
// recorded so an operator can match the orphaned payment to its spot
// and refund or re-seat the vendor manually.
type PaymentOrphanedEvent struct {
	SpotID        string  `json:"spot_id"`
	Email         string  `json:"email"`
	TotalAmount   float64 `json:"total_amount"`
	TransactionID string  `json:"transaction_id"`
	OccurredAt    string  `json:"occurred_at"`
}
