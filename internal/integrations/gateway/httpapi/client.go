package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/TripBox/internal/integrations/gateway"
	"github.com/BearBump/TripBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Paths are the backend endpoints relative to the base URL.
type Paths struct {
	TourBookings   string
	HotelBookings  string
	FlightBookings string
	Payments       string
}

func DefaultPaths() Paths {
	return Paths{
		TourBookings:   "/api/bookings/my-bookings",
		HotelBookings:  "/api/hotel-bookings/my-bookings",
		FlightBookings: "/api/flight-bookings/my-bookings",
		Payments:       "/api/payments",
	}
}

type Client struct {
	baseURL string
	paths   Paths
	httpc   *http.Client
	limiter *rate.Limiter
}

func New(baseURL string, timeout time.Duration, perSecond float64) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   DefaultPaths(),
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *Client) WithPaths(p Paths) *Client {
	def := DefaultPaths()
	if p.TourBookings == "" {
		p.TourBookings = def.TourBookings
	}
	if p.HotelBookings == "" {
		p.HotelBookings = def.HotelBookings
	}
	if p.FlightBookings == "" {
		p.FlightBookings = def.FlightBookings
	}
	if p.Payments == "" {
		p.Payments = def.Payments
	}
	c.paths = p
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) ListBookings(ctx context.Context, kind models.Kind, token string) (gateway.BookingsEnvelope, error) {
	var path string
	switch kind {
	case models.KindTour:
		path = c.paths.TourBookings
	case models.KindHotel:
		path = c.paths.HotelBookings
	case models.KindFlight:
		path = c.paths.FlightBookings
	default:
		return gateway.BookingsEnvelope{}, errors.Errorf("unsupported booking kind %q", kind)
	}

	env, err := c.do(ctx, http.MethodGet, path, token, nil, nil)
	if err != nil {
		return gateway.BookingsEnvelope{}, err
	}
	out := gateway.BookingsEnvelope{Success: env.Success, Message: env.Message, Data: []models.RawBooking{}}
	if !env.Success {
		return out, nil
	}
	items, err := decodeBookings(env.Data)
	if err != nil {
		return gateway.BookingsEnvelope{}, errors.Wrap(err, "decode bookings")
	}
	out.Data = items
	return out, nil
}

func (c *Client) GetPayment(ctx context.Context, token, paymentID string) (gateway.PaymentEnvelope, error) {
	return c.payment(ctx, http.MethodGet, c.paths.Payments+"/"+url.PathEscape(paymentID), token, nil, nil)
}

func (c *Client) CheckPayment(ctx context.Context, token, paymentID string) (gateway.PaymentEnvelope, error) {
	return c.payment(ctx, http.MethodGet, c.paths.Payments+"/"+url.PathEscape(paymentID)+"/check", token, nil, nil)
}

func (c *Client) CreatePayment(ctx context.Context, token string, in models.PaymentCreateInput) (gateway.PaymentEnvelope, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return gateway.PaymentEnvelope{}, errors.Wrap(err, "marshal payment")
	}
	return c.payment(ctx, http.MethodPost, c.paths.Payments, token, body, map[string]string{"Idempotency-Key": IdempotencyKey(in)})
}

// IdempotencyKey is stable per booking, so concurrent first opens share one payment. A retry after a
// failure carries the id of the failed payment and gets a fresh key.
func IdempotencyKey(in models.PaymentCreateInput) string {
	name := string(in.BookingKind) + "/" + in.BookingID
	if in.Replaces != "" {
		name += "/retry/" + in.Replaces
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func (c *Client) payment(ctx context.Context, method, path, token string, body []byte, headers map[string]string) (gateway.PaymentEnvelope, error) {
	env, err := c.do(ctx, method, path, token, body, headers)
	if err != nil {
		return gateway.PaymentEnvelope{}, err
	}
	out := gateway.PaymentEnvelope{Success: env.Success, Message: env.Message}
	if !env.Success || len(env.Data) == 0 {
		return out, nil
	}
	var raw models.RawBooking
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return gateway.PaymentEnvelope{}, errors.Wrap(err, "decode payment")
	}
	out.Data = gateway.PaymentFromRaw(raw)
	return out, nil
}

// do sends the request. HTTP-level failures come back as success=false envelopes, only transport
// and decoding problems are errors.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte, headers map[string]string) (envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return envelope{}, errors.Wrap(err, "rate limit wait")
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return envelope{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return envelope{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return envelope{}, errors.Wrap(err, "read body")
	}

	if resp.StatusCode/100 != 2 {
		env := envelope{Success: false, Message: fmt.Sprintf("http %d", resp.StatusCode)}
		var parsed envelope
		if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
			env.Message = fmt.Sprintf("http %d: %s", resp.StatusCode, parsed.Message)
		}
		return env, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, errors.Wrap(err, "decode")
	}
	return env, nil
}

// decodeBookings accepts both `data: [...]` and `data: { bookings: [...] }` shapes.
func decodeBookings(data json.RawMessage) ([]models.RawBooking, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.RawBooking{}, nil
	}
	if trimmed[0] == '[' {
		var items []models.RawBooking
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return dropNil(items), nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	for _, key := range []string{"bookings", "items", "data"} {
		if inner, ok := wrapped[key]; ok {
			return decodeBookings(inner)
		}
	}
	return []models.RawBooking{}, nil
}

func dropNil(items []models.RawBooking) []models.RawBooking {
	out := make([]models.RawBooking, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	return out
}
