package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/TripBox/internal/models"
	"github.com/pkg/errors"
)

// ErrUnsuccessful is returned by helpers when an envelope came back with success=false.
var ErrUnsuccessful = errors.New("gateway: unsuccessful response")

// BookingsEnvelope is the generic "my bookings" response: { success, data, message }.
type BookingsEnvelope struct {
	Success bool                `json:"success"`
	Data    []models.RawBooking `json:"data"`
	Message string              `json:"message,omitempty"`
}

type PaymentEnvelope struct {
	Success bool           `json:"success"`
	Data    models.Payment `json:"data"`
	Message string         `json:"message,omitempty"`
}

// Err turns a failed envelope into an error carrying its message.
func (e BookingsEnvelope) Err() error {
	if e.Success {
		return nil
	}
	return errors.Wrap(ErrUnsuccessful, messageOr(e.Message))
}

func (e PaymentEnvelope) Err() error {
	if e.Success {
		return nil
	}
	return errors.Wrap(ErrUnsuccessful, messageOr(e.Message))
}

type BookingSource interface {
	ListBookings(ctx context.Context, kind models.Kind, token string) (BookingsEnvelope, error)
}

type PaymentGateway interface {
	GetPayment(ctx context.Context, token, paymentID string) (PaymentEnvelope, error)
	CheckPayment(ctx context.Context, token, paymentID string) (PaymentEnvelope, error)
	CreatePayment(ctx context.Context, token string, in models.PaymentCreateInput) (PaymentEnvelope, error)
}

type Client interface {
	BookingSource
	PaymentGateway
}

// PaymentFromRaw maps a loosely shaped payment document onto models.Payment.
func PaymentFromRaw(r models.RawBooking) models.Payment {
	p := models.Payment{}
	p.ID = firstString(r, "_id", "id", "paymentId")
	p.StatusRaw = firstString(r, "status", "paymentStatus")
	p.Status = models.ParsePaymentStatus(p.StatusRaw)
	if n, ok := r.Number("amount"); ok && n > 0 {
		p.Amount = n
	}
	p.BookingID = firstString(r, "bookingId", "booking")
	if p.BookingID == "" {
		if b, ok := r.Object("booking"); ok {
			p.BookingID = firstString(b, "_id", "id")
			if p.BookingReference == "" {
				p.BookingReference = firstString(b, "bookingReference")
			}
		}
	}
	p.BookingKind = firstString(r, "bookingKind", "bookingType", "bookingModel", "type")
	if ref := firstString(r, "bookingReference", "reference"); ref != "" {
		p.BookingReference = ref
	}
	p.PaymentMethod = firstString(r, "paymentMethod", "method")
	p.QRCodeURL = firstString(r, "qrCodeUrl", "qrCode", "qrUrl")
	p.FailureReason = firstString(r, "failureReason", "reason")
	if s := firstString(r, "createdAt"); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t = t.UTC()
			p.CreatedAt = &t
		}
	}
	return p
}

func firstString(r models.RawBooking, keys ...string) string {
	for _, k := range keys {
		if s, ok := r.String(k); ok {
			return s
		}
	}
	return ""
}

func messageOr(m string) string {
	if strings.TrimSpace(m) == "" {
		return "no message"
	}
	return m
}
