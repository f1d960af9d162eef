package messages

import "time"

const TopicPaymentSettled = "payment.settled"

// PaymentSettled публикуется один раз, когда платёжная сессия дошла до терминального состояния.
type PaymentSettled struct {
	MessageID   string    `json:"message_id"`
	PaymentID   string    `json:"payment_id"`
	BookingID   string    `json:"booking_id,omitempty"`
	BookingKind string    `json:"booking_kind"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Amount      float64   `json:"amount"`
	SettledAt   time.Time `json:"settled_at"`
}
