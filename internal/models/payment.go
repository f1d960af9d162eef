package models

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ParsePaymentStatus maps gateway spellings onto the closed set. "completed" is an alias of paid;
// cancelled/expired payments are failures. Anything unrecognised is still pending.
func ParsePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "completed", "success", "succeeded":
		return PaymentPaid
	case "failed", "cancelled", "canceled", "expired", "rejected":
		return PaymentFailed
	case "refunded":
		return PaymentRefunded
	default:
		return PaymentPending
	}
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded
}

type Payment struct {
	ID               string        `json:"id"`
	Status           PaymentStatus `json:"status"`
	StatusRaw        string        `json:"statusRaw,omitempty"`
	Amount           float64       `json:"amount"`
	BookingID        string        `json:"bookingId"`
	BookingKind      string        `json:"bookingKind,omitempty"`
	BookingReference string        `json:"bookingReference,omitempty"`
	PaymentMethod    string        `json:"paymentMethod,omitempty"`
	QRCodeURL        string        `json:"qrCodeUrl,omitempty"`
	FailureReason    string        `json:"failureReason,omitempty"`
	CreatedAt        *time.Time    `json:"createdAt,omitempty"`
}

// PaymentCreateInput is what the client sends when it first navigates to payment for a booking.
type PaymentCreateInput struct {
	BookingID     string  `json:"bookingId"`
	BookingKind   Kind    `json:"bookingKind"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"paymentMethod"`

	// Replaces is the failed payment this one retries; it is not sent to the backend.
	Replaces string `json:"-"`
}

// PaymentOutcome is the write-once terminal record kept in the ledger.
type PaymentOutcome struct {
	PaymentID   string        `json:"paymentId"`
	BookingID   string        `json:"bookingId"`
	BookingKind Kind          `json:"bookingKind"`
	Status      PaymentStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Amount      float64       `json:"amount"`
	SettledAt   time.Time     `json:"settledAt"`
	CreatedAt   time.Time     `json:"createdAt"`
}
