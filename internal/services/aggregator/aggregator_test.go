package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BearBump/TripBox/internal/integrations/gateway"
	"github.com/BearBump/TripBox/internal/metrics"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type step struct {
	env gateway.BookingsEnvelope
	err error
}

// scriptedSource replays responses per kind; the last step repeats.
type scriptedSource struct {
	mu     sync.Mutex
	steps  map[models.Kind][]step
	calls  map[models.Kind]int
	tokens []string
	panics models.Kind
}

func newScripted(steps map[models.Kind][]step) *scriptedSource {
	return &scriptedSource{steps: steps, calls: map[models.Kind]int{}}
}

func (s *scriptedSource) ListBookings(ctx context.Context, kind models.Kind, token string) (gateway.BookingsEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == s.panics {
		panic("boom")
	}
	s.tokens = append(s.tokens, token)
	n := s.calls[kind]
	s.calls[kind]++
	list := s.steps[kind]
	if len(list) == 0 {
		return gateway.BookingsEnvelope{Success: true}, nil
	}
	if n >= len(list) {
		n = len(list) - 1
	}
	return list[n].env, list[n].err
}

func ok(records ...models.RawBooking) step {
	return step{env: gateway.BookingsEnvelope{Success: true, Data: records}}
}

func TestFetchAll_HotelRetryHonoured_TourFailureIsolated(t *testing.T) {
	src := newScripted(map[models.Kind][]step{
		models.KindTour:   {{err: errors.New("connection refused")}, ok(models.RawBooking{"_id": "never"})},
		models.KindHotel:  {{err: errors.New("timeout")}, ok(models.RawBooking{"_id": "h1"})},
		models.KindFlight: {ok(models.RawBooking{"_id": "f1"}, models.RawBooking{"_id": "f2"})},
	})
	m := metrics.NewRegistry()

	res := New(src, nil).WithMetrics(m).FetchAll(context.Background(), "tok")

	require.Empty(t, res.Lists.Tour)
	require.NotNil(t, res.Lists.Tour)
	require.Len(t, res.Lists.Hotel, 1)
	require.Equal(t, "h1", res.Lists.Hotel[0].ID)
	require.Len(t, res.Lists.Flight, 2)

	require.Equal(t, 1, src.calls[models.KindTour])
	require.Equal(t, 2, src.calls[models.KindHotel])
	require.Equal(t, 1, src.calls[models.KindFlight])

	require.True(t, res.Failed(models.KindTour))
	require.False(t, res.Failed(models.KindHotel))
	require.Len(t, res.Diagnostics, 1)
	require.Equal(t, Diagnostic{Kind: models.KindTour, Attempts: 1, Error: "connection refused"}, res.Diagnostics[0])

	require.Equal(t, 1.0, testutil.ToFloat64(m.SourceRetries.WithLabelValues("hotel")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetch.WithLabelValues("tour", "error")))
}

func TestFetchAll_HotelUnsuccessfulEnvelopeRetriedOnce(t *testing.T) {
	src := newScripted(map[models.Kind][]step{
		models.KindHotel: {{env: gateway.BookingsEnvelope{Success: false, Message: "http 503"}}},
	})

	res := New(src, nil).FetchAll(context.Background(), "tok")

	require.Equal(t, 2, src.calls[models.KindHotel])
	require.Empty(t, res.Lists.Hotel)
	require.True(t, res.Failed(models.KindHotel))
	require.Equal(t, 2, res.Diagnostics[0].Attempts)
	require.Contains(t, res.Diagnostics[0].Error, "http 503")
	require.True(t, errors.Is(src.steps[models.KindHotel][0].env.Err(), gateway.ErrUnsuccessful))
}

func TestFetchAll_ConfigurableRetries(t *testing.T) {
	src := newScripted(map[models.Kind][]step{
		models.KindTour:  {{err: errors.New("e1")}, {err: errors.New("e2")}, ok(models.RawBooking{"_id": "t1"})},
		models.KindHotel: {{err: errors.New("down")}, ok(models.RawBooking{"_id": "h1"})},
	})

	res := New(src, nil).
		WithRetries(map[models.Kind]int{models.KindTour: 2, models.KindHotel: 0}).
		FetchAll(context.Background(), "tok")

	require.Len(t, res.Lists.Tour, 1)
	require.Equal(t, 3, src.calls[models.KindTour])
	require.Empty(t, res.Lists.Hotel)
	require.Equal(t, 1, src.calls[models.KindHotel])
}

func TestFetchAll_TokenForwardedAndRecordsNormalized(t *testing.T) {
	src := newScripted(map[models.Kind][]step{
		models.KindTour: {ok(models.RawBooking{
			"id": "t1", "tour": map[string]any{"price": 100.0, "priceDiscount": 80.0}, "numOfPeople": 2.0,
		})},
	})

	res := New(src, nil).FetchAll(context.Background(), "secret")

	require.Len(t, res.Lists.Tour, 1)
	require.Equal(t, models.KindTour, res.Lists.Tour[0].Kind)
	require.Equal(t, 160.0, res.Lists.Tour[0].TotalPrice)
	require.Len(t, src.tokens, 3)
	for _, tok := range src.tokens {
		require.Equal(t, "secret", tok)
	}
	require.Empty(t, res.Diagnostics)
}

func TestFetchAll_PanickingSourceIsIsolated(t *testing.T) {
	src := newScripted(map[models.Kind][]step{
		models.KindHotel: {ok(models.RawBooking{"_id": "h1"})},
	})
	src.panics = models.KindFlight

	res := New(src, nil).FetchAll(context.Background(), "tok")

	require.Empty(t, res.Lists.Flight)
	require.True(t, res.Failed(models.KindFlight))
	require.Len(t, res.Lists.Hotel, 1)
}
