// Package aggregator fetches the three booking collections concurrently and normalizes them.
// A failing source only empties its own list.
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/TripBox/internal/integrations/gateway"
	"github.com/BearBump/TripBox/internal/metrics"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/normalizer"
	"github.com/pkg/errors"
)

// DefaultRetries: the hotel source gets one extra attempt, tour and flight none.
func DefaultRetries() map[models.Kind]int {
	return map[models.Kind]int{models.KindHotel: 1}
}

// Diagnostic describes a source that ended up empty because of a failure.
type Diagnostic struct {
	Kind     models.Kind `json:"kind"`
	Attempts int         `json:"attempts"`
	Error    string      `json:"error"`
}

type Result struct {
	Lists       models.BookingLists `json:"lists"`
	Diagnostics []Diagnostic        `json:"diagnostics,omitempty"`
}

// Failed reports whether kind came back empty because of a source failure.
func (r Result) Failed(kind models.Kind) bool {
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

type Aggregator struct {
	src     gateway.BookingSource
	norm    *normalizer.Normalizer
	retries map[models.Kind]int
	metrics *metrics.Registry
	backoff time.Duration
}

func New(src gateway.BookingSource, norm *normalizer.Normalizer) *Aggregator {
	if norm == nil {
		norm = normalizer.New()
	}
	return &Aggregator{
		src:     src,
		norm:    norm,
		retries: DefaultRetries(),
	}
}

// WithRetries replaces the per-kind retry counts. Kinds not listed get no retry.
func (a *Aggregator) WithRetries(retries map[models.Kind]int) *Aggregator {
	if retries != nil {
		a.retries = make(map[models.Kind]int, len(retries))
		for k, n := range retries {
			if n > 0 {
				a.retries[k] = n
			}
		}
	}
	return a
}

func (a *Aggregator) WithMetrics(m *metrics.Registry) *Aggregator {
	a.metrics = m
	return a
}

// WithBackoff sets a pause between attempts (zero by default).
func (a *Aggregator) WithBackoff(d time.Duration) *Aggregator {
	if d > 0 {
		a.backoff = d
	}
	return a
}

// FetchAll never returns an error: each kind resolves to its list or to an empty list plus a Diagnostic.
func (a *Aggregator) FetchAll(ctx context.Context, token string) Result {
	type outcome struct {
		kind  models.Kind
		items []models.Booking
		diag  *Diagnostic
	}

	out := make([]outcome, len(models.Kinds))
	var wg sync.WaitGroup
	for i, kind := range models.Kinds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, diag := a.fetchKind(ctx, kind, token)
			out[i] = outcome{kind: kind, items: items, diag: diag}
		}()
	}
	wg.Wait()

	var res Result
	for _, o := range out {
		res.Lists.Set(o.kind, o.items)
		if o.diag != nil {
			res.Diagnostics = append(res.Diagnostics, *o.diag)
		}
	}
	return res
}

func (a *Aggregator) fetchKind(ctx context.Context, kind models.Kind, token string) (items []models.Booking, diag *Diagnostic) {
	started := time.Now()
	attempts := 1 + a.retries[kind]

	defer func() {
		// паника в источнике не должна уронить остальные виды
		if r := recover(); r != nil {
			items = []models.Booking{}
			diag = &Diagnostic{Kind: kind, Attempts: attempts, Error: errors.Errorf("panic: %v", r).Error()}
			slog.Error("booking source panicked", "kind", kind, "panic", r)
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			a.metrics.ObserveRetry(string(kind))
			if a.backoff > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(a.backoff):
				}
			}
		}

		env, err := a.src.ListBookings(ctx, kind, token)
		if err == nil {
			err = env.Err()
		}
		if err == nil {
			a.metrics.ObserveFetch(string(kind), "ok", time.Since(started).Seconds())
			return a.norm.NormalizeAll(kind, env.Data), nil
		}

		lastErr = err
		slog.Warn("booking source unavailable", "kind", kind, "attempt", attempt, "error", err.Error())
	}

	a.metrics.ObserveFetch(string(kind), "error", time.Since(started).Seconds())
	return []models.Booking{}, &Diagnostic{Kind: kind, Attempts: attempts, Error: lastErr.Error()}
}
