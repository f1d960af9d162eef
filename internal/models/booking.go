package models

import (
	"strings"
	"time"
)

type BookingStatus string

// Нормализованные статусы бронирования. Всё неизвестное считается pending.
const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

func ParseBookingStatus(s string) BookingStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed":
		return BookingConfirmed
	case "cancelled", "canceled":
		return BookingCancelled
	case "completed":
		return BookingCompleted
	default:
		return BookingPending
	}
}

// Related is the tour/hotel/flight a booking points at. Either Object is set (populated)
// or only RefID is known and NeedsResolution is true.
type Related struct {
	Object          RawBooking `json:"object,omitempty"`
	RefID           string     `json:"refId,omitempty"`
	DisplayName     string     `json:"displayName"`
	NeedsResolution bool       `json:"needsResolution"`
}

func (r Related) Populated() bool { return r.Object != nil }

type Booking struct {
	ID           string        `json:"id"`
	Kind         Kind          `json:"kind"`
	Reference    string        `json:"bookingReference,omitempty"`
	TotalPrice   float64       `json:"totalPrice"`
	Status       BookingStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	StartDate    *time.Time    `json:"startDate,omitempty"`
	EndDate      *time.Time    `json:"endDate,omitempty"`
	Nights       int           `json:"nights,omitempty"`
	Travelers    int           `json:"travelers,omitempty"`
	Related      Related       `json:"related"`
	ImageURL     string        `json:"imageUrl"`
	ClassifiedBy string        `json:"classifiedBy,omitempty"`

	Raw RawBooking `json:"raw,omitempty"`
}

// BookingLists holds one normalized list per kind.
type BookingLists struct {
	Tour   []Booking `json:"tour"`
	Hotel  []Booking `json:"hotel"`
	Flight []Booking `json:"flight"`
}

func (l BookingLists) ByKind(k Kind) []Booking {
	switch k {
	case KindTour:
		return l.Tour
	case KindHotel:
		return l.Hotel
	case KindFlight:
		return l.Flight
	default:
		return nil
	}
}

func (l *BookingLists) Set(k Kind, items []Booking) {
	switch k {
	case KindTour:
		l.Tour = items
	case KindHotel:
		l.Hotel = items
	case KindFlight:
		l.Flight = items
	}
}
