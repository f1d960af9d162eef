package outcomes

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/TripBox/internal/broker/messages"
	"github.com/BearBump/TripBox/internal/cache"
	cachemocks "github.com/BearBump/TripBox/internal/cache/mocks"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/storage/pgpayments"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	outcomesmocks "github.com/BearBump/TripBox/internal/services/outcomes/mocks"
)

type ServiceSuite struct {
	suite.Suite

	repo  *outcomesmocks.MockRepository
	cache *cachemocks.MockBytesCache
	svc   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &outcomesmocks.MockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.repo, s.cache, 10*time.Minute)
}

func (s *ServiceSuite) TestGet_CacheHit_NoDB() {
	want := &models.PaymentOutcome{PaymentID: "pay-1", Status: models.PaymentPaid, BookingKind: models.KindTour}
	b, _ := json.Marshal(want)
	s.cache.On("Get", mock.Anything, cache.OutcomeKey("pay-1")).Return(b, true, nil).Once()

	got, err := s.svc.Get(context.Background(), "pay-1")
	s.Require().NoError(err)
	s.Require().Equal(models.PaymentPaid, got.Status)

	s.repo.AssertNotCalled(s.T(), "GetOutcome", mock.Anything, mock.Anything)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGet_CacheMiss_LoadsAndStores() {
	o := &models.PaymentOutcome{PaymentID: "pay-2", Status: models.PaymentFailed, Reason: "expired"}
	s.cache.On("Get", mock.Anything, cache.OutcomeKey("pay-2")).Return(nil, false, nil).Once()
	s.repo.On("GetOutcome", mock.Anything, "pay-2").Return(o, nil).Once()
	s.cache.On("Set", mock.Anything, cache.OutcomeKey("pay-2"), mock.Anything, 10*time.Minute).Return(nil).Once()

	got, err := s.svc.Get(context.Background(), " pay-2 ")
	s.Require().NoError(err)
	s.Require().Equal("expired", got.Reason)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGet_NotFoundIsNotCached() {
	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down")).Once()
	s.repo.On("GetOutcome", mock.Anything, "pay-3").Return(nil, ErrNotFound).Once()

	_, err := s.svc.Get(context.Background(), "pay-3")
	s.Require().ErrorIs(err, ErrNotFound)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGet_RequiresID() {
	_, err := s.svc.Get(context.Background(), " ")
	s.Require().Error(err)
	s.repo.AssertNotCalled(s.T(), "GetOutcome", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestApplyKafkaSettled_BuildsInput() {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	want := pgpayments.OutcomeInput{
		MessageID: "m1", PaymentID: "pay-1", BookingID: "b1", BookingKind: models.KindHotel,
		Status: models.PaymentPaid, Amount: 1000, SettledAt: at,
	}
	s.repo.On("ApplyOutcome", mock.Anything, want).Return(true, nil).Once()

	err := s.svc.ApplyKafkaSettled(context.Background(), messages.PaymentSettled{
		MessageID: "m1", PaymentID: "pay-1", BookingID: "b1", BookingKind: "HotelBooking",
		Status: "completed", Amount: 1000, SettledAt: at,
	})
	s.Require().NoError(err)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestApplyKafkaSettled_DuplicateIsAcked() {
	s.repo.On("ApplyOutcome", mock.Anything, mock.Anything).Return(false, nil).Once()
	err := s.svc.ApplyKafkaSettled(context.Background(), messages.PaymentSettled{PaymentID: "pay-1", Status: "failed"})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestApplyKafkaSettled_NonTerminalSkipped() {
	err := s.svc.ApplyKafkaSettled(context.Background(), messages.PaymentSettled{PaymentID: "pay-1", Status: "pending"})
	s.Require().NoError(err)
	s.repo.AssertNotCalled(s.T(), "ApplyOutcome", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestApplyKafkaSettled_Errors() {
	s.Require().Error(s.svc.ApplyKafkaSettled(context.Background(), messages.PaymentSettled{Status: "paid"}))

	s.repo.On("ApplyOutcome", mock.Anything, mock.Anything).Return(false, errors.New("db down")).Once()
	s.Require().Error(s.svc.ApplyKafkaSettled(context.Background(), messages.PaymentSettled{PaymentID: "p", Status: "paid"}))
}

func (s *ServiceSuite) TestListForBooking() {
	s.repo.On("ListBookingOutcomes", mock.Anything, models.KindFlight, "f1").
		Return([]*models.PaymentOutcome{{PaymentID: "a"}, {PaymentID: "b"}}, nil).Once()

	out, err := s.svc.ListForBooking(context.Background(), "FlightBooking", "f1")
	s.Require().NoError(err)
	s.Require().Len(out, 2)

	_, err = s.svc.ListForBooking(context.Background(), "car", "f1")
	s.Require().Error(err)
	_, err = s.svc.ListForBooking(context.Background(), models.KindTour, "")
	s.Require().Error(err)
	s.repo.AssertExpectations(s.T())
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
