package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/bookings"
	"github.com/BearBump/TripBox/internal/services/paysession"
	"github.com/BearBump/TripBox/internal/services/view"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type BookingsService interface {
	List(ctx context.Context, token string, filter view.Filter) (bookings.Page, error)
}

type PaymentsService interface {
	Open(ctx context.Context, token string, in models.PaymentCreateInput) (paysession.Snapshot, error)
	Attach(ctx context.Context, token, paymentID string) (paysession.Snapshot, error)
	Get(paymentID string) (paysession.Snapshot, error)
	Refresh(ctx context.Context, paymentID string) (paysession.Snapshot, error)
	MarkQRUnavailable(paymentID string) (paysession.Snapshot, error)
	Close(paymentID string) bool
}

type OutcomesService interface {
	Get(ctx context.Context, paymentID string) (*models.PaymentOutcome, error)
	ListForBooking(ctx context.Context, kind models.Kind, bookingID string) ([]*models.PaymentOutcome, error)
}

type API struct {
	bookings BookingsService
	payments PaymentsService
	outcomes OutcomesService

	metrics     http.Handler
	swaggerPath string
	health      func(ctx context.Context) error
}

func New(b BookingsService, p PaymentsService, o OutcomesService) *API {
	return &API{bookings: b, payments: p, outcomes: o}
}

func (a *API) WithMetrics(h http.Handler) *API {
	a.metrics = h
	return a
}

// WithSwagger serves the OpenAPI document at /swagger.json and the UI under /docs/.
func (a *API) WithSwagger(path string) *API {
	a.swaggerPath = path
	return a
}

func (a *API) WithHealthCheck(fn func(ctx context.Context) error) *API {
	a.health = fn
	return a
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}
	if a.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, a.swaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger.json"),
		))
	}

	r.Route("/bookings", func(r chi.Router) {
		r.Get("/", a.listBookings)
		r.Get("/{kind}/{bookingID}/payments", a.listBookingOutcomes)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", a.openPayment)
		r.Route("/{paymentID}", func(r chi.Router) {
			r.Get("/", a.getPayment)
			r.Delete("/", a.closePayment)
			r.Post("/attach", a.attachPayment)
			r.Post("/refresh", a.refreshPayment)
			r.Post("/qr-unavailable", a.qrUnavailable)
			r.Get("/outcome", a.getOutcome)
		})
	})

	return r
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
