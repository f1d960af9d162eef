package bookings

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/TripBox/internal/cache"
	"github.com/BearBump/TripBox/internal/metrics"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/aggregator"
	"github.com/BearBump/TripBox/internal/services/view"
	"github.com/pkg/errors"
)

//go:generate mockery --name Aggregator --output ./mocks --outpkg mocks --structname MockAggregator --filename aggregator.go
type Aggregator interface {
	FetchAll(ctx context.Context, token string) aggregator.Result
}

type Service struct {
	agg     Aggregator
	builder *view.Builder
	cache   cache.BytesCache
	ttl     time.Duration
}

func New(agg Aggregator, c cache.BytesCache, ttl time.Duration) *Service {
	return &Service{agg: agg, builder: view.NewBuilder(nil), cache: c, ttl: ttl}
}

func (s *Service) WithBuilder(b *view.Builder) *Service {
	if b != nil {
		s.builder = b
	}
	return s
}

// WithMetrics counts records whose kind the view builder had to infer.
func (s *Service) WithMetrics(m *metrics.Registry) *Service {
	s.builder.OnClassify(func(b models.Booking) {
		m.ObserveClassified(string(b.Kind), b.ClassifiedBy)
	})
	return s
}

type Page struct {
	Filter      view.Filter             `json:"filter"`
	Items       []models.Booking        `json:"items"`
	Counts      map[models.Kind]int     `json:"counts"`
	Diagnostics []aggregator.Diagnostic `json:"diagnostics,omitempty"`
	Cached      bool                    `json:"cached"`
}

// List returns the bookings of the token's owner. Source failures shrink the page, they never fail it.
func (s *Service) List(ctx context.Context, token string, filter view.Filter) (Page, error) {
	if strings.TrimSpace(token) == "" {
		return Page{}, errors.New("token is required")
	}
	if filter == "" {
		filter = view.FilterAll
	}

	res, cached := s.load(ctx, token)
	items := s.builder.Build(res.Lists, filter)

	counts := make(map[models.Kind]int, len(models.Kinds))
	for _, k := range models.Kinds {
		counts[k] = len(res.Lists.ByKind(k))
	}
	return Page{
		Filter:      filter,
		Items:       items,
		Counts:      counts,
		Diagnostics: res.Diagnostics,
		Cached:      cached,
	}, nil
}

// Invalidate drops the cached snapshot, e.g. after a payment changed a booking status.
func (s *Service) Invalidate(ctx context.Context, token string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cache.BookingViewKey(token))
}

func (s *Service) load(ctx context.Context, token string) (aggregator.Result, bool) {
	useCache := s.cache != nil && s.ttl > 0
	key := cache.BookingViewKey(token)

	if useCache {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var res aggregator.Result
			if json.Unmarshal(b, &res) == nil {
				return res, true
			}
		}
	}

	res := s.agg.FetchAll(ctx, token)

	// деградировавший снимок не кэшируем, чтобы упавший источник подтянулся при следующем запросе
	if useCache && len(res.Diagnostics) == 0 {
		b, err := json.Marshal(res)
		if err == nil {
			if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
				slog.Warn("cache bookings", "error", err.Error())
			}
		}
	}
	return res, false
}
