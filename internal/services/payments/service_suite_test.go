package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/TripBox/internal/broker/messages"
	"github.com/BearBump/TripBox/internal/cache"
	cachemocks "github.com/BearBump/TripBox/internal/cache/mocks"
	"github.com/BearBump/TripBox/internal/integrations/gateway/fake"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/paysession"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type producerMock struct {
	mock.Mock
}

func (m *producerMock) Publish(ctx context.Context, topic string, key, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type ServiceSuite struct {
	suite.Suite

	gw       *fake.FakeClient
	cache    *cachemocks.MockBytesCache
	rl       *cachemocks.MockLimiter
	producer *producerMock
	svc      *Service
}

func (s *ServiceSuite) SetupTest() {
	s.gw = fake.New()
	s.gw.PaidAfter = 0
	s.cache = &cachemocks.MockBytesCache{}
	s.rl = &cachemocks.MockLimiter{}
	s.producer = &producerMock{}
	// без опросов: тесты, которым нужен polling, настраивают сервис сами
	s.svc = New(s.gw, s.cache, s.rl, s.producer).WithSettings(time.Minute, time.Hour, 0, 0, 0)
}

func (s *ServiceSuite) TearDownTest() {
	s.svc.Shutdown()
}

func (s *ServiceSuite) waitState(id string, want models.PaymentStatus) paysession.Snapshot {
	var snap paysession.Snapshot
	s.Require().Eventually(func() bool {
		var err error
		snap, err = s.svc.Get(id)
		return err == nil && snap.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func (s *ServiceSuite) TestOpen_CreatesOnceAndReusesLink() {
	link := cache.PaymentLinkKey("hotel", "b1")
	s.cache.On("Get", mock.Anything, link).Return(nil, false, nil).Once()
	s.cache.On("Set", mock.Anything, link, []byte("pay-1"), 24*time.Hour).Return(nil).Once()

	in := models.PaymentCreateInput{BookingID: " b1 ", BookingKind: "HotelBooking", Amount: 1000, PaymentMethod: "sepay"}
	snap, err := s.svc.Open(context.Background(), "tok", in)
	s.Require().NoError(err)
	s.Require().Equal("pay-1", snap.PaymentID)
	s.Require().Equal(models.PaymentPending, snap.State)
	s.Require().Equal("hotel", snap.Payment.BookingKind)
	s.Require().Equal(1000.0, snap.Payment.Amount)

	s.cache.On("Get", mock.Anything, link).Return([]byte("pay-1"), true, nil).Once()
	again, err := s.svc.Open(context.Background(), "tok", in)
	s.Require().NoError(err)
	s.Require().Equal("pay-1", again.PaymentID)
	s.Require().Equal(1, s.svc.Active())

	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestOpen_Validation() {
	ctx := context.Background()
	_, err := s.svc.Open(ctx, "tok", models.PaymentCreateInput{BookingKind: models.KindTour})
	s.Require().ErrorIs(err, ErrInvalidInput)
	_, err = s.svc.Open(ctx, "tok", models.PaymentCreateInput{BookingID: "b", BookingKind: "car"})
	s.Require().ErrorIs(err, ErrInvalidInput)
	_, err = s.svc.Open(ctx, "tok", models.PaymentCreateInput{BookingID: "b", BookingKind: models.KindTour, Amount: -1})
	s.Require().ErrorIs(err, ErrInvalidInput)

	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestOpen_FailedPaymentIsReplaced() {
	ctx := context.Background()
	old, err := s.gw.CreatePayment(ctx, "tok", models.PaymentCreateInput{BookingID: "b2", BookingKind: models.KindTour, Amount: 5})
	s.Require().NoError(err)
	s.Require().True(s.gw.Settle(old.Data.ID, models.PaymentFailed, "declined"))

	link := cache.PaymentLinkKey("tour", "b2")
	s.cache.On("Get", mock.Anything, link).Return([]byte(old.Data.ID), true, nil).Once()
	s.cache.On("Set", mock.Anything, link, []byte("pay-2"), 24*time.Hour).Return(nil).Once()
	s.producer.On("Publish", mock.Anything, messages.TopicPaymentSettled, []byte(old.Data.ID), mock.Anything).Return(nil).Once()

	snap, err := s.svc.Open(ctx, "tok", models.PaymentCreateInput{BookingID: "b2", BookingKind: models.KindTour, Amount: 5})
	s.Require().NoError(err)
	s.Require().Equal("pay-2", snap.PaymentID)
	s.Require().Equal(models.PaymentPending, snap.State)

	_, err = s.svc.Get(old.Data.ID)
	s.Require().ErrorIs(err, ErrSessionNotFound)
	s.cache.AssertExpectations(s.T())
	s.producer.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestOpen_CacheErrorsAreIgnored() {
	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down")).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

	snap, err := s.svc.Open(context.Background(), "tok", models.PaymentCreateInput{BookingID: "b3", BookingKind: models.KindFlight, Amount: 1})
	s.Require().NoError(err)
	s.Require().NotEmpty(snap.PaymentID)
}

func (s *ServiceSuite) TestTerminal_PublishesSettledAndInvalidatesBookings() {
	s.gw.PaidAfter = 2
	published := make(chan []byte, 1)
	s.svc = New(s.gw, s.cache, nil, s.producer).WithSettings(time.Minute, 5*time.Millisecond, 10*time.Millisecond, 0, time.Hour)

	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, nil).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, time.Hour).Return(nil).Once()
	deleted := make(chan struct{}, 1)
	s.cache.On("Delete", mock.Anything, cache.BookingViewKey("tok")).
		Run(func(mock.Arguments) { deleted <- struct{}{} }).
		Return(nil).Once()
	s.producer.On("Publish", mock.Anything, messages.TopicPaymentSettled, []byte("pay-1"), mock.Anything).
		Run(func(args mock.Arguments) { published <- args.Get(3).([]byte) }).
		Return(nil).Once()

	_, err := s.svc.Open(context.Background(), "tok", models.PaymentCreateInput{BookingID: "b1", BookingKind: models.KindHotel, Amount: 700})
	s.Require().NoError(err)
	s.waitState("pay-1", models.PaymentPaid)

	select {
	case raw := <-published:
		var msg messages.PaymentSettled
		s.Require().NoError(json.Unmarshal(raw, &msg))
		s.Require().Equal("pay-1", msg.PaymentID)
		s.Require().Equal("b1", msg.BookingID)
		s.Require().Equal("hotel", msg.BookingKind)
		s.Require().Equal("paid", msg.Status)
		s.Require().Equal(700.0, msg.Amount)
		s.Require().NotEmpty(msg.MessageID)
	case <-time.After(2 * time.Second):
		s.Require().FailNow("payment.settled not published")
	}

	s.Require().Eventually(func() bool {
		snap, _ := s.svc.Get("pay-1")
		return snap.Confirmation != nil
	}, 2*time.Second, 5*time.Millisecond)
	select {
	case <-deleted:
	case <-time.After(2 * time.Second):
		s.Require().FailNow("cached bookings were not invalidated")
	}
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestPollGuard_DeniedPollsAreSkipped() {
	s.gw.PaidAfter = 1
	s.svc = New(s.gw, nil, s.rl, nil).WithSettings(time.Minute, 5*time.Millisecond, 0, 5, 0)
	s.rl.On("Allow", mock.Anything, cache.PaymentPollKey("pay-1"), int64(5), time.Minute).Return(false, int64(6), nil)

	_, err := s.svc.Open(context.Background(), "tok", models.PaymentCreateInput{BookingID: "b1", BookingKind: models.KindTour})
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		snap, _ := s.svc.Get("pay-1")
		return snap.SkippedPolls >= 2
	}, time.Second, 5*time.Millisecond)
	snap, _ := s.svc.Get("pay-1")
	s.Require().Equal(models.PaymentPending, snap.State)
	s.Require().Zero(snap.Polls)
}

func (s *ServiceSuite) TestPollGuard_LimiterErrorFailsOpen() {
	s.gw.PaidAfter = 1
	s.svc = New(s.gw, nil, s.rl, nil).WithSettings(time.Minute, 5*time.Millisecond, 0, 5, 0)
	s.rl.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, int64(0), errors.New("redis down"))

	_, err := s.svc.Open(context.Background(), "tok", models.PaymentCreateInput{BookingID: "b1", BookingKind: models.KindTour})
	s.Require().NoError(err)
	s.waitState("pay-1", models.PaymentPaid)
}

func (s *ServiceSuite) TestSessionLifecycle() {
	ctx := context.Background()
	created, err := s.gw.CreatePayment(ctx, "tok", models.PaymentCreateInput{BookingID: "b1", BookingKind: models.KindFlight, Amount: 3})
	s.Require().NoError(err)
	id := created.Data.ID

	_, err = s.svc.Get(id)
	s.Require().ErrorIs(err, ErrSessionNotFound)
	_, err = s.svc.Refresh(ctx, id)
	s.Require().ErrorIs(err, ErrSessionNotFound)
	_, err = s.svc.MarkQRUnavailable(id)
	s.Require().ErrorIs(err, ErrSessionNotFound)

	_, err = s.svc.Attach(ctx, "tok", id)
	s.Require().NoError(err)
	snap, err := s.svc.MarkQRUnavailable(id)
	s.Require().NoError(err)
	s.Require().True(snap.QRUnavailable)
	snap, err = s.svc.Refresh(ctx, id)
	s.Require().NoError(err)
	s.Require().False(snap.QRUnavailable)

	_, err = s.svc.Attach(ctx, "tok", "  ")
	s.Require().ErrorIs(err, ErrInvalidInput)

	s.Require().True(s.svc.Close(id))
	s.Require().False(s.svc.Close(id))
	_, err = s.svc.Get(id)
	s.Require().ErrorIs(err, ErrSessionNotFound)
}

func (s *ServiceSuite) TestShutdownClosesAll() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p, err := s.gw.CreatePayment(ctx, "tok", models.PaymentCreateInput{BookingID: "b", BookingKind: models.KindTour})
		s.Require().NoError(err)
		_, err = s.svc.Attach(ctx, "tok", p.Data.ID)
		s.Require().NoError(err)
	}
	s.Require().Equal(3, s.svc.Active())
	s.svc.Shutdown()
	s.Require().Zero(s.svc.Active())
}

func (s *ServiceSuite) TestTerminalSessionIsDroppedAfterRetention() {
	ctx := context.Background()
	s.svc.WithRetention(300 * time.Millisecond)

	created, err := s.gw.CreatePayment(ctx, "tok", models.PaymentCreateInput{BookingID: "b1", BookingKind: models.KindTour, Amount: 2})
	s.Require().NoError(err)
	s.Require().True(s.gw.Settle(created.Data.ID, models.PaymentFailed, "declined"))

	snap, err := s.svc.Attach(ctx, "tok", created.Data.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.PaymentFailed, snap.State)
	_, err = s.svc.Get(created.Data.ID)
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		_, err := s.svc.Get(created.Data.ID)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)
	s.Require().Zero(s.svc.Active())
}

func (s *ServiceSuite) TestPendingSessionIsKept() {
	ctx := context.Background()
	s.svc.WithRetention(10 * time.Millisecond)

	created, err := s.gw.CreatePayment(ctx, "tok", models.PaymentCreateInput{BookingID: "b1", BookingKind: models.KindTour})
	s.Require().NoError(err)
	_, err = s.svc.Attach(ctx, "tok", created.Data.ID)
	s.Require().NoError(err)

	time.Sleep(50 * time.Millisecond)
	snap, err := s.svc.Get(created.Data.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.PaymentPending, snap.State)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
