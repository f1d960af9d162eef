package payments

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/TripBox/internal/broker/messages"
	"github.com/BearBump/TripBox/internal/cache"
	"github.com/BearBump/TripBox/internal/integrations/gateway"
	"github.com/BearBump/TripBox/internal/metrics"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/paysession"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrSessionNotFound = errors.New("payment session not found")
	ErrInvalidInput    = errors.New("invalid payment request")
)

// DefaultRetention is how long a terminal session stays readable after it settles.
const DefaultRetention = 10 * time.Minute

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service keeps one reconciliation session per payment id for the lifetime of a payment view.
type Service struct {
	gw       gateway.PaymentGateway
	cache    cache.BytesCache
	rl       cache.Limiter
	producer Producer
	metrics  *metrics.Registry

	topic          string
	countdown      time.Duration
	pollInterval   time.Duration
	grace          time.Duration
	pollsPerMinute int64
	linkTTL        time.Duration
	retention      time.Duration

	mu       sync.Mutex
	sessions map[string]*paysession.Session
}

func New(gw gateway.PaymentGateway, c cache.BytesCache, rl cache.Limiter, producer Producer) *Service {
	return &Service{
		gw:           gw,
		cache:        c,
		rl:           rl,
		producer:     producer,
		topic:        messages.TopicPaymentSettled,
		countdown:    paysession.DefaultCountdown,
		pollInterval: paysession.DefaultPollInterval,
		grace:        paysession.DefaultGrace,
		linkTTL:      24 * time.Hour,
		retention:    DefaultRetention,
		sessions:     map[string]*paysession.Session{},
	}
}

func (s *Service) WithSettings(countdown, pollInterval, grace time.Duration, pollsPerMinute int64, linkTTL time.Duration) *Service {
	if countdown > 0 {
		s.countdown = countdown
	}
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if grace > 0 {
		s.grace = grace
	}
	if pollsPerMinute > 0 {
		s.pollsPerMinute = pollsPerMinute
	}
	if linkTTL > 0 {
		s.linkTTL = linkTTL
	}
	return s
}

// WithRetention sets how long a terminal session is kept for views that never close it.
func (s *Service) WithRetention(d time.Duration) *Service {
	if d > 0 {
		s.retention = d
	}
	return s
}

func (s *Service) WithTopic(topic string) *Service {
	if topic != "" {
		s.topic = topic
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.Registry) *Service {
	s.metrics = m
	return s
}

// Open lazily creates the payment for a booking and starts reconciling it. A booking that already
// has a live or settled payment gets that payment back; a failed one is replaced by a new payment.
func (s *Service) Open(ctx context.Context, token string, in models.PaymentCreateInput) (paysession.Snapshot, error) {
	in.BookingID = strings.TrimSpace(in.BookingID)
	if in.BookingID == "" {
		return paysession.Snapshot{}, errors.WithMessage(ErrInvalidInput, "bookingId is required")
	}
	in.BookingKind = models.ParseKind(string(in.BookingKind))
	if !in.BookingKind.Known() {
		return paysession.Snapshot{}, errors.WithMessage(ErrInvalidInput, "bookingKind must be tour, hotel or flight")
	}
	if in.Amount < 0 {
		return paysession.Snapshot{}, errors.WithMessage(ErrInvalidInput, "amount must not be negative")
	}

	linkKey := cache.PaymentLinkKey(string(in.BookingKind), in.BookingID)
	if id := s.linkedPayment(ctx, linkKey); id != "" {
		snap, err := s.Attach(ctx, token, id)
		if err == nil && snap.State != models.PaymentFailed {
			return snap, nil
		}
		// повторная попытка оплаты: старую сессию закрываем, создаём новый платёж под новым ключом
		s.Close(id)
		in.Replaces = id
	}

	env, err := s.gw.CreatePayment(ctx, token, in)
	if err == nil {
		err = env.Err()
	}
	if err != nil {
		return paysession.Snapshot{}, errors.Wrap(err, "create payment")
	}
	if env.Data.ID == "" {
		return paysession.Snapshot{}, errors.New("create payment: gateway returned no payment id")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, linkKey, []byte(env.Data.ID), s.linkTTL); err != nil {
			slog.Warn("store payment link", "booking_id", in.BookingID, "error", err.Error())
		}
	}
	return s.Attach(ctx, token, env.Data.ID)
}

func (s *Service) linkedPayment(ctx context.Context, key string) string {
	if s.cache == nil {
		return ""
	}
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return ""
	}
	return string(b)
}

// Attach returns the session for paymentID, starting one if needed.
func (s *Service) Attach(ctx context.Context, token, paymentID string) (paysession.Snapshot, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return paysession.Snapshot{}, errors.WithMessage(ErrInvalidInput, "paymentId is required")
	}

	s.mu.Lock()
	if sess, ok := s.sessions[paymentID]; ok {
		s.mu.Unlock()
		return sess.Snapshot(), nil
	}
	var sess *paysession.Session
	sess = paysession.New(s.gw, token, paymentID).
		WithSettings(s.countdown, s.pollInterval, s.grace).
		WithMetrics(s.metrics).
		WithPollGuard(s.pollGuard(paymentID)).
		OnTerminal(func(snap paysession.Snapshot) {
			s.settled(snap)
			s.dropLater(paymentID, sess)
		}).
		OnPaid(func(c paysession.Confirmation) { s.confirmed(token, c) })
	s.sessions[paymentID] = sess
	s.mu.Unlock()

	snap, err := sess.Start(ctx)
	if err != nil {
		s.remove(paymentID, sess)
		return paysession.Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) Get(paymentID string) (paysession.Snapshot, error) {
	sess, err := s.session(paymentID)
	if err != nil {
		return paysession.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) Refresh(ctx context.Context, paymentID string) (paysession.Snapshot, error) {
	sess, err := s.session(paymentID)
	if err != nil {
		return paysession.Snapshot{}, err
	}
	return sess.Refresh(ctx)
}

func (s *Service) MarkQRUnavailable(paymentID string) (paysession.Snapshot, error) {
	sess, err := s.session(paymentID)
	if err != nil {
		return paysession.Snapshot{}, err
	}
	return sess.MarkQRUnavailable()
}

// Close tears a payment view down: both timers and any pending confirmation stop.
func (s *Service) Close(paymentID string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[paymentID]
	delete(s.sessions, paymentID)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
	return ok
}

func (s *Service) Shutdown() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = map[string]*paysession.Session{}
	s.mu.Unlock()
	for _, sess := range all {
		sess.Close()
	}
}

func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) session(paymentID string) (*paysession.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[paymentID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) remove(paymentID string, sess *paysession.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[paymentID]; ok && cur == sess {
		delete(s.sessions, paymentID)
		return true
	}
	return false
}

// dropLater forgets a terminal session once the retention period is over, unless the view has
// already closed it or a newer session took its place.
func (s *Service) dropLater(paymentID string, sess *paysession.Session) {
	time.AfterFunc(s.retention, func() {
		if s.remove(paymentID, sess) {
			sess.Close()
			slog.Debug("terminal payment session dropped", "payment_id", paymentID)
		}
	})
}

// pollGuard shares the poll budget of a payment across API instances. Redis errors fail open.
func (s *Service) pollGuard(paymentID string) paysession.PollGuard {
	if s.rl == nil || s.pollsPerMinute <= 0 {
		return nil
	}
	return func(ctx context.Context) bool {
		allowed, n, err := s.rl.Allow(ctx, cache.PaymentPollKey(paymentID), s.pollsPerMinute, time.Minute)
		if err != nil {
			slog.Warn("payment poll rate limiter", "payment_id", paymentID, "error", err.Error())
			return true
		}
		if !allowed {
			slog.Warn("payment poll rate limit exceeded", "payment_id", paymentID, "count", n)
		}
		return allowed
	}
}

func (s *Service) settled(snap paysession.Snapshot) {
	if s.producer == nil {
		return
	}
	msg := messages.PaymentSettled{
		MessageID:   uuid.NewString(),
		PaymentID:   snap.PaymentID,
		BookingID:   snap.Payment.BookingID,
		BookingKind: string(paysession.InferKind(snap.Payment)),
		Status:      string(snap.State),
		Reason:      snap.Reason,
		Amount:      snap.Payment.Amount,
		SettledAt:   time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal payment settled", "payment_id", snap.PaymentID, "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Kafka может быть не готова сразу после старта: несколько попыток.
	var pubErr error
	for i := 0; i < 3; i++ {
		if pubErr = s.producer.Publish(ctx, s.topic, []byte(snap.PaymentID), b); pubErr == nil {
			return
		}
		time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
	}
	slog.Error("publish payment settled", "payment_id", snap.PaymentID, "error", pubErr.Error())
}

// confirmed drops the cached bookings of the payer: the booking status has changed.
func (s *Service) confirmed(token string, c paysession.Confirmation) {
	slog.Info("payment confirmed", "payment_id", c.PaymentID, "booking_id", c.BookingID, "kind", c.Kind)
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, cache.BookingViewKey(token)); err != nil {
		slog.Warn("invalidate booking views", "error", err.Error())
	}
}
