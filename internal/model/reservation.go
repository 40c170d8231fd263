package model

import "time"

// Addon is an optional extra a vendor can attach to a booking, such
// as electricity or an additional table. Selected add-ons contribute
// their price to the reservation total.
//
// Fields:
//
//	Name  – display name, unique within a booking form.
//	Price – price in the same currency unit as the spot base price.
type Addon struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Reservation records a completed (or admin-forced) claim on exactly
// one spot. Reservations are persisted keyed by spot id, which
// enforces the at-most-one-active-reservation invariant structurally.
// A reservation is never mutated in place; releasing removes the
// entry and any correction is a full replace.
//
// Fields:
//
//	SpotID              – id of the claimed spot.
//	CustomerName        – required contact name.
//	Email               – required contact email.
//	Phone               – required contact phone.
//	Website             – optional vendor website.
//	CompanyName         – optional company name.
//	BusinessDescription – optional description of the business.
//	Addons              – add-ons selected at booking time.
//	TotalAmount         – base price plus add-on prices at booking time.
//	Paid                – whether a payment was captured.
//	TransactionID       – payment provider reference, present iff Paid.
//	CreatedAt           – creation timestamp (UTC).
type Reservation struct {
	SpotID              string    `json:"spotId"`
	CustomerName        string    `json:"customerName"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	Website             string    `json:"website,omitempty"`
	CompanyName         string    `json:"companyName,omitempty"`
	BusinessDescription string    `json:"businessDescription,omitempty"`
	Addons              []Addon   `json:"addons,omitempty"`
	TotalAmount         float64   `json:"totalAmount"`
	Paid                bool      `json:"paid"`
	TransactionID       string    `json:"transactionId,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}
