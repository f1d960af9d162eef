// Package paysession drives one payment through pending → {paid | failed | refunded}.
//
// A session owns two periodic activities: a countdown ticking once per Tick and a status poll once per
// PollInterval. Both live in a single goroutine and stop together when the session reaches a terminal
// state or is closed. Nothing mutates the session after Close.
package paysession

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/TripBox/internal/integrations/gateway"
	"github.com/BearBump/TripBox/internal/metrics"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/classifier"
	"github.com/pkg/errors"
)

var (
	ErrClosed         = errors.New("payment session closed")
	ErrAlreadyStarted = errors.New("payment session already started")
)

// ReasonExpired is the failure reason set when the countdown runs out.
const ReasonExpired = "expired"

const (
	DefaultCountdown    = 300 * time.Second
	DefaultPollInterval = 10 * time.Second
	DefaultTick         = time.Second
	DefaultGrace        = 1500 * time.Millisecond
)

// Confirmation is the one-shot follow-up emitted after a successful payment.
type Confirmation struct {
	PaymentID string      `json:"paymentId"`
	BookingID string      `json:"bookingId"`
	Kind      models.Kind `json:"kind"`
	At        time.Time   `json:"at"`
}

type Snapshot struct {
	PaymentID     string               `json:"paymentId"`
	State         models.PaymentStatus `json:"state"`
	Remaining     time.Duration        `json:"-"`
	RemainingSec  int                  `json:"remainingSeconds"`
	Reason        string               `json:"reason,omitempty"`
	Payment       models.Payment       `json:"payment"`
	QRUnavailable bool                 `json:"qrUnavailable"`
	LastError     string               `json:"lastError,omitempty"`
	Polls         int                  `json:"polls"`
	SkippedPolls  int                  `json:"skippedPolls"`
	Confirmation  *Confirmation        `json:"confirmation,omitempty"`
	Closed        bool                 `json:"closed"`
}

// PollGuard decides whether a scheduled poll may go out. A denied poll is skipped.
type PollGuard func(ctx context.Context) bool

type Session struct {
	gw    gateway.PaymentGateway
	token string
	id    string

	countdown    time.Duration
	pollInterval time.Duration
	tick         time.Duration
	grace        time.Duration

	guard      PollGuard
	metrics    *metrics.Registry
	onTerminal func(Snapshot)
	onPaid     func(Confirmation)

	mu       sync.Mutex
	snap     Snapshot
	started  bool
	closed   bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	followUp *time.Timer

	terminalOnce sync.Once
	terminalCh   chan struct{}
}

func New(gw gateway.PaymentGateway, token, paymentID string) *Session {
	return &Session{
		gw:           gw,
		token:        token,
		id:           paymentID,
		countdown:    DefaultCountdown,
		pollInterval: DefaultPollInterval,
		tick:         DefaultTick,
		grace:        DefaultGrace,
		snap: Snapshot{
			PaymentID:    paymentID,
			State:        models.PaymentPending,
			Remaining:    DefaultCountdown,
			RemainingSec: int(DefaultCountdown / time.Second),
		},
		terminalCh: make(chan struct{}),
	}
}

func (s *Session) WithSettings(countdown, pollInterval, grace time.Duration) *Session {
	if countdown > 0 {
		s.countdown = countdown
		s.setRemaining(countdown)
	}
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if grace > 0 {
		s.grace = grace
	}
	return s
}

// WithTick sets the countdown resolution (one second by default).
func (s *Session) WithTick(d time.Duration) *Session {
	if d > 0 {
		s.tick = d
	}
	return s
}

func (s *Session) WithPollGuard(g PollGuard) *Session {
	s.guard = g
	return s
}

func (s *Session) WithMetrics(m *metrics.Registry) *Session {
	s.metrics = m
	return s
}

// OnTerminal is called once, outside the session lock, when a terminal state is reached.
// It may run on the loop goroutine, so it must not call Close.
func (s *Session) OnTerminal(fn func(Snapshot)) *Session {
	s.onTerminal = fn
	return s
}

// OnPaid is called once, Grace after the payment is seen as paid, unless the session was closed meanwhile.
func (s *Session) OnPaid(fn func(Confirmation)) *Session {
	s.onPaid = fn
	return s
}

func (s *Session) ID() string { return s.id }

// Start fetches the payment once. An already terminal payment enters its terminal state without
// starting the countdown or polling. A failed initial fetch keeps the session pending and polling.
// The periodic activities outlive ctx; they stop on a terminal state or Close.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return Snapshot{}, ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	p, err := s.fetch(ctx, s.gw.GetPayment)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if err != nil {
		s.snap.LastError = err.Error()
		slog.Warn("payment initial fetch failed", "payment_id", s.id, "error", err.Error())
	} else {
		s.snap.Payment = mergePayment(s.snap.Payment, p)
		if p.Status.Terminal() {
			fire := s.enterTerminalLocked(p.Status, failureReason(p))
			snap := s.snapshotLocked()
			s.mu.Unlock()
			fire()
			return snap, nil
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	go s.run(loopCtx)
	return snap, nil
}

type pollResult struct {
	payment models.Payment
	err     error
}

func (s *Session) run(ctx context.Context) {
	defer close(s.loopDone)

	tick := time.NewTicker(s.tick)
	defer tick.Stop()
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()

	results := make(chan pollResult, 1)
	inFlight := false

	for {
		select {
		case <-ctx.Done():
			return

		case r := <-results:
			inFlight = false
			if s.apply(r) {
				return
			}

		case <-poll.C:
			if inFlight {
				continue
			}
			if s.guard != nil && !s.guard(ctx) {
				s.skipPoll()
				continue
			}
			inFlight = true
			go func() {
				p, err := s.fetch(ctx, s.gw.CheckPayment)
				select {
				case results <- pollResult{payment: p, err: err}:
				case <-ctx.Done():
				}
			}()

		case <-tick.C:
			if s.countDown() > 0 {
				continue
			}
			s.expireAfterPending(results)
			return
		}
	}
}

// expireAfterPending: результат опроса, пришедший в тот же тик, важнее истечения таймера.
func (s *Session) expireAfterPending(results <-chan pollResult) {
	select {
	case r := <-results:
		if s.apply(r) {
			return
		}
	default:
	}
	s.expire()
}

type fetchFunc func(ctx context.Context, token, paymentID string) (gateway.PaymentEnvelope, error)

func (s *Session) fetch(ctx context.Context, fn fetchFunc) (models.Payment, error) {
	env, err := fn(ctx, s.token, s.id)
	if err == nil {
		err = env.Err()
	}
	if err != nil {
		return models.Payment{}, errors.Wrap(err, "fetch payment")
	}
	return env.Data, nil
}

// apply folds one poll or refresh result into the session; it reports whether the session is done.
func (s *Session) apply(r pollResult) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	if s.snap.State.Terminal() {
		s.mu.Unlock()
		return true
	}
	s.snap.Polls++
	if r.err != nil {
		s.snap.LastError = r.err.Error()
		s.mu.Unlock()
		s.metrics.ObservePoll("error")
		return false
	}
	s.snap.LastError = ""
	s.snap.Payment = mergePayment(s.snap.Payment, r.payment)
	if !r.payment.Status.Terminal() {
		s.mu.Unlock()
		s.metrics.ObservePoll("pending")
		return false
	}
	fire := s.enterTerminalLocked(r.payment.Status, failureReason(r.payment))
	s.mu.Unlock()
	s.metrics.ObservePoll(string(r.payment.Status))
	fire()
	return true
}

func (s *Session) skipPoll() {
	s.mu.Lock()
	if !s.closed {
		s.snap.SkippedPolls++
	}
	s.mu.Unlock()
	s.metrics.ObservePoll("denied")
}

// countDown decrements the countdown by one tick and returns what is left.
func (s *Session) countDown() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.snap.State.Terminal() {
		return 0
	}
	left := s.snap.Remaining - s.tick
	if left < 0 {
		left = 0
	}
	s.setRemainingLocked(left)
	return left
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.closed || s.snap.State.Terminal() {
		s.mu.Unlock()
		return
	}
	s.setRemainingLocked(0)
	fire := s.enterTerminalLocked(models.PaymentFailed, ReasonExpired)
	s.mu.Unlock()
	fire()
}

// enterTerminalLocked switches state and returns the callbacks to run once the lock is released.
func (s *Session) enterTerminalLocked(status models.PaymentStatus, reason string) func() {
	from := s.snap.State
	s.snap.State = status
	if status == models.PaymentFailed {
		s.snap.Reason = reason
	}
	if s.snap.Payment.ID == "" {
		s.snap.Payment.ID = s.id
	}
	s.snap.Payment.Status = status
	if s.cancel != nil {
		s.cancel()
	}
	if status == models.PaymentPaid {
		s.followUp = time.AfterFunc(s.grace, s.confirm)
	}
	snap := s.snapshotLocked()

	slog.Info("payment transition", "payment_id", s.id, "from", from, "to", status, "reason", snap.Reason)
	return func() {
		s.terminalOnce.Do(func() {
			close(s.terminalCh)
			s.metrics.ObserveTerminal(string(status), snap.Reason)
			if s.onTerminal != nil {
				s.onTerminal(snap)
			}
		})
	}
}

func (s *Session) confirm() {
	s.mu.Lock()
	if s.closed || s.snap.Confirmation != nil {
		s.mu.Unlock()
		return
	}
	c := Confirmation{
		PaymentID: s.id,
		BookingID: s.snap.Payment.BookingID,
		Kind:      InferKind(s.snap.Payment),
		At:        time.Now().UTC(),
	}
	s.snap.Confirmation = &c
	s.mu.Unlock()

	if s.onPaid != nil {
		s.onPaid(c)
	}
}

// Refresh re-fetches the payment without touching the countdown and clears the QR-unavailable flag.
// A failed fetch only sets LastError. A terminal session is returned as is.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if s.snap.State.Terminal() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	p, err := s.fetch(ctx, s.gw.GetPayment)
	s.apply(pollResult{payment: p, err: err})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	if err == nil {
		s.snap.QRUnavailable = false
	}
	return s.snapshotLocked(), nil
}

// MarkQRUnavailable records that the QR image could not be rendered. The payment state is unaffected.
func (s *Session) MarkQRUnavailable() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	s.snap.QRUnavailable = true
	return s.snapshotLocked(), nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.terminalCh }

// Close stops both periodic activities and any pending follow-up. It is idempotent and waits for the
// loop goroutine to exit, so no callback can observe the session afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.snap.Closed = true
	cancel, done, follow := s.cancel, s.loopDone, s.followUp
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if follow != nil {
		follow.Stop()
	}
	if done != nil {
		<-done
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := s.snap
	if s.snap.Confirmation != nil {
		c := *s.snap.Confirmation
		snap.Confirmation = &c
	}
	return snap
}

func (s *Session) setRemaining(d time.Duration) {
	s.mu.Lock()
	s.setRemainingLocked(d)
	s.mu.Unlock()
}

func (s *Session) setRemainingLocked(d time.Duration) {
	s.snap.Remaining = d
	s.snap.RemainingSec = int((d + time.Second - 1) / time.Second)
}

// InferKind reads the booking kind of a payment, falling back to the reference prefix.
func InferKind(p models.Payment) models.Kind {
	if k := models.ParseKind(p.BookingKind); k.Known() {
		return k
	}
	return classifier.KindFromReference(p.BookingReference)
}

func failureReason(p models.Payment) string {
	if p.Status != models.PaymentFailed {
		return ""
	}
	if p.FailureReason != "" {
		return p.FailureReason
	}
	if p.StatusRaw != "" {
		return p.StatusRaw
	}
	return string(models.PaymentFailed)
}

// mergePayment keeps fields the lightweight check endpoint leaves out.
func mergePayment(prev, next models.Payment) models.Payment {
	if next.ID == "" {
		next.ID = prev.ID
	}
	if next.Amount == 0 {
		next.Amount = prev.Amount
	}
	if next.BookingID == "" {
		next.BookingID = prev.BookingID
	}
	if next.BookingKind == "" {
		next.BookingKind = prev.BookingKind
	}
	if next.BookingReference == "" {
		next.BookingReference = prev.BookingReference
	}
	if next.PaymentMethod == "" {
		next.PaymentMethod = prev.PaymentMethod
	}
	if next.QRCodeURL == "" {
		next.QRCodeURL = prev.QRCodeURL
	}
	if next.CreatedAt == nil {
		next.CreatedAt = prev.CreatedAt
	}
	return next
}
