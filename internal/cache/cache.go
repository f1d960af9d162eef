package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

//go:generate mockery --name BytesCache --output ./mocks --outpkg mocks --structname MockBytesCache --filename bytes_cache.go
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

//go:generate mockery --name Limiter --output ./mocks --outpkg mocks --structname MockLimiter --filename limiter.go
type Limiter interface {
	// Allow returns (allowed, currentCount).
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// TokenHash keys per-user entries without storing the bearer token itself.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:12])
}

// BookingViewKey holds the aggregated booking lists of one user.
func BookingViewKey(token string) string {
	return fmt.Sprintf("bookings:%s", TokenHash(token))
}

// PaymentLinkKey maps a booking to the payment opened for it.
func PaymentLinkKey(kind, bookingID string) string {
	return fmt.Sprintf("payment-link:%s:%s", kind, bookingID)
}

func PaymentPollKey(paymentID string) string {
	return fmt.Sprintf("rl:payment-poll:%s", paymentID)
}

// OutcomeKey holds the settled outcome of a payment. Outcomes never change once stored.
func OutcomeKey(paymentID string) string {
	return fmt.Sprintf("payment:%s:outcome", paymentID)
}
