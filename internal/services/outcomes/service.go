package outcomes

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/TripBox/internal/broker/messages"
	"github.com/BearBump/TripBox/internal/cache"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/storage/pgpayments"
	"github.com/pkg/errors"
)

var ErrNotFound = pgpayments.ErrNotFound

//go:generate mockery --name Repository --output ./mocks --outpkg mocks --structname MockRepository --filename repository.go
type Repository interface {
	ApplyOutcome(ctx context.Context, in pgpayments.OutcomeInput) (bool, error)
	GetOutcome(ctx context.Context, paymentID string) (*models.PaymentOutcome, error)
	ListBookingOutcomes(ctx context.Context, kind models.Kind, bookingID string) ([]*models.PaymentOutcome, error)
}

// Service is the read/write side of the settled payments ledger.
type Service struct {
	repo  Repository
	cache cache.BytesCache
	ttl   time.Duration
}

func New(repo Repository, c cache.BytesCache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl}
}

func (s *Service) Get(ctx context.Context, paymentID string) (*models.PaymentOutcome, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("paymentId is required")
	}

	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, cache.OutcomeKey(paymentID)); err == nil && ok {
			var o models.PaymentOutcome
			if json.Unmarshal(b, &o) == nil {
				return &o, nil
			}
		}
	}

	o, err := s.repo.GetOutcome(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, o)
	return o, nil
}

func (s *Service) ListForBooking(ctx context.Context, kind models.Kind, bookingID string) ([]*models.PaymentOutcome, error) {
	kind = models.ParseKind(string(kind))
	if !kind.Known() {
		return nil, errors.New("kind must be tour, hotel or flight")
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, errors.New("bookingId is required")
	}
	return s.repo.ListBookingOutcomes(ctx, kind, bookingID)
}

// ApplyKafkaSettled records a payment.settled message. Redelivered or late messages for an already
// settled payment are acknowledged without changes.
func (s *Service) ApplyKafkaSettled(ctx context.Context, msg messages.PaymentSettled) error {
	if msg.PaymentID == "" {
		return errors.New("payment_id is required")
	}
	status := models.ParsePaymentStatus(msg.Status)
	if !status.Terminal() {
		// не ретраим: такое сообщение никогда не станет валидным
		slog.Warn("skip non-terminal payment.settled", "payment_id", msg.PaymentID, "status", msg.Status)
		return nil
	}
	if msg.SettledAt.IsZero() {
		msg.SettledAt = time.Now().UTC()
	}

	applied, err := s.repo.ApplyOutcome(ctx, pgpayments.OutcomeInput{
		MessageID:   msg.MessageID,
		PaymentID:   msg.PaymentID,
		BookingID:   msg.BookingID,
		BookingKind: models.ParseKind(msg.BookingKind),
		Status:      status,
		Reason:      msg.Reason,
		Amount:      msg.Amount,
		SettledAt:   msg.SettledAt,
	})
	if err != nil {
		return err
	}
	if !applied {
		slog.Info("payment outcome already recorded", "payment_id", msg.PaymentID, "message_id", msg.MessageID)
	}
	return nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *Service) store(ctx context.Context, o *models.PaymentOutcome) {
	if !s.cacheEnabled() || o == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, cache.OutcomeKey(o.PaymentID), b, s.ttl)
}
