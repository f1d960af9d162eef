package pgpayments

import (
	"context"
	"time"

	"github.com/BearBump/TripBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type OutcomeInput struct {
	MessageID   string
	PaymentID   string
	BookingID   string
	BookingKind models.Kind
	Status      models.PaymentStatus
	Reason      string
	Amount      float64
	SettledAt   time.Time
}

// ApplyOutcome stores the first terminal outcome of a payment. Later outcomes for the same payment
// (redelivery, a second API instance) are ignored: applied is false.
func (s *Storage) ApplyOutcome(ctx context.Context, in OutcomeInput) (bool, error) {
	if in.PaymentID == "" {
		return false, errors.New("payment_id is required")
	}
	if !in.Status.Terminal() {
		return false, errors.Errorf("status %q is not terminal", in.Status)
	}
	if in.SettledAt.IsZero() {
		in.SettledAt = time.Now().UTC()
	}

	tag, err := s.db.Exec(ctx, `
INSERT INTO payment_outcomes (
  payment_id, message_id, booking_id, booking_kind, status, reason, amount, settled_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (payment_id) DO NOTHING
`, in.PaymentID, in.MessageID, in.BookingID, string(in.BookingKind), string(in.Status), in.Reason, in.Amount, in.SettledAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "insert outcome")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) GetOutcome(ctx context.Context, paymentID string) (*models.PaymentOutcome, error) {
	var o models.PaymentOutcome
	var kind, status string
	err := s.db.QueryRow(ctx, `
SELECT payment_id, booking_id, booking_kind, status, reason, amount::float8, settled_at, created_at
FROM payment_outcomes
WHERE payment_id = $1
`, paymentID).Scan(&o.PaymentID, &o.BookingID, &kind, &status, &o.Reason, &o.Amount, &o.SettledAt, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select outcome")
	}
	o.BookingKind = models.Kind(kind)
	o.Status = models.PaymentStatus(status)
	o.SettledAt = o.SettledAt.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

// ListBookingOutcomes returns the settled payments of one booking, newest first.
func (s *Storage) ListBookingOutcomes(ctx context.Context, kind models.Kind, bookingID string) ([]*models.PaymentOutcome, error) {
	rows, err := s.db.Query(ctx, `
SELECT payment_id, booking_id, booking_kind, status, reason, amount::float8, settled_at, created_at
FROM payment_outcomes
WHERE booking_kind = $1 AND booking_id = $2
ORDER BY settled_at DESC
`, string(kind), bookingID)
	if err != nil {
		return nil, errors.Wrap(err, "select outcomes")
	}
	defer rows.Close()

	out := []*models.PaymentOutcome{}
	for rows.Next() {
		var o models.PaymentOutcome
		var k, status string
		if err := rows.Scan(&o.PaymentID, &o.BookingID, &k, &status, &o.Reason, &o.Amount, &o.SettledAt, &o.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan outcome")
		}
		o.BookingKind = models.Kind(k)
		o.Status = models.PaymentStatus(status)
		out = append(out, &o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
