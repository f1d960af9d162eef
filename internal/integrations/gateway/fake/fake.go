package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BearBump/TripBox/internal/integrations/gateway"
	"github.com/BearBump/TripBox/internal/models"
)

// FakeClient - локальная заглушка бэкенда бронирований и платёжного шлюза.
// Брони детерминированы по токену; платёж становится paid после PaidAfter проверок.
type FakeClient struct {
	PaidAfter int

	mu       sync.Mutex
	payments map[string]*fakePayment
	seq      int
}

type fakePayment struct {
	p      models.Payment
	checks int
}

func New() *FakeClient {
	return &FakeClient{PaidAfter: 3, payments: map[string]*fakePayment{}}
}

func (f *FakeClient) ListBookings(ctx context.Context, kind models.Kind, token string) (gateway.BookingsEnvelope, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(kind))
	v := h.Sum32()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(v%1000) * time.Hour)
	n := int(v%3) + 1
	out := make([]models.RawBooking, 0, n)
	for i := 0; i < n; i++ {
		created := base.Add(time.Duration(i) * 24 * time.Hour).Format(time.RFC3339)
		id := fmt.Sprintf("%s-%d-%d", kind, v%10000, i)
		switch kind {
		case models.KindTour:
			out = append(out, models.RawBooking{
				"_id": id, "createdAt": created, "numOfPeople": float64(i + 1),
				"tour":             map[string]any{"_id": "tour-" + id, "name": "City walk", "price": 100.0, "priceDiscount": 80.0},
				"bookingReference": fmt.Sprintf("TUR-%05d", v%100000),
				"startDate":        base.Add(30 * 24 * time.Hour).Format("2006-01-02"),
			})
		case models.KindHotel:
			out = append(out, models.RawBooking{
				"_id": id, "createdAt": created, "status": "confirmed",
				"hotel":            "hotel-" + id,
				"checkInDate":      base.Add(10 * 24 * time.Hour).Format("2006-01-02"),
				"checkOutDate":     base.Add(12 * 24 * time.Hour).Format("2006-01-02"),
				"roomType":         map[string]any{"name": "Deluxe", "price": 500.0},
				"bookingReference": fmt.Sprintf("HTB-%05d", v%100000),
			})
		case models.KindFlight:
			out = append(out, models.RawBooking{
				"id": id, "createdAt": created,
				"flight":     map[string]any{"_id": "flight-" + id, "airline": "VN", "flightNumber": "VN123", "price": 120.0},
				"passengers": []any{map[string]any{"name": "A"}, map[string]any{"name": "B"}},
			})
		}
	}
	return gateway.BookingsEnvelope{Success: true, Data: out}, nil
}

func (f *FakeClient) CreatePayment(ctx context.Context, token string, in models.PaymentCreateInput) (gateway.PaymentEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	now := time.Now().UTC()
	p := models.Payment{
		ID:            fmt.Sprintf("pay-%d", f.seq),
		Status:        models.PaymentPending,
		StatusRaw:     "pending",
		Amount:        in.Amount,
		BookingID:     in.BookingID,
		BookingKind:   string(in.BookingKind),
		PaymentMethod: in.PaymentMethod,
		QRCodeURL:     fmt.Sprintf("https://qr.invalid/pay-%d.png", f.seq),
		CreatedAt:     &now,
	}
	f.payments[p.ID] = &fakePayment{p: p}
	return gateway.PaymentEnvelope{Success: true, Data: p}, nil
}

func (f *FakeClient) GetPayment(ctx context.Context, token, paymentID string) (gateway.PaymentEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fp, ok := f.payments[paymentID]
	if !ok {
		return gateway.PaymentEnvelope{Success: false, Message: "payment not found"}, nil
	}
	return gateway.PaymentEnvelope{Success: true, Data: fp.p}, nil
}

func (f *FakeClient) CheckPayment(ctx context.Context, token, paymentID string) (gateway.PaymentEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fp, ok := f.payments[paymentID]
	if !ok {
		return gateway.PaymentEnvelope{Success: false, Message: "payment not found"}, nil
	}
	fp.checks++
	if fp.p.Status == models.PaymentPending && f.PaidAfter > 0 && fp.checks >= f.PaidAfter {
		fp.p.Status = models.PaymentPaid
		fp.p.StatusRaw = "completed"
	}
	return gateway.PaymentEnvelope{Success: true, Data: fp.p}, nil
}

// Settle forces a stored payment into status. Reports false for unknown ids.
func (f *FakeClient) Settle(paymentID string, status models.PaymentStatus, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	fp, ok := f.payments[paymentID]
	if !ok {
		return false
	}
	fp.p.Status = status
	fp.p.StatusRaw = string(status)
	fp.p.FailureReason = reason
	return true
}
