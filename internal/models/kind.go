package models

import "strings"

// Kind identifies which product a booking refers to.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindTour    Kind = "tour"
	KindHotel   Kind = "hotel"
	KindFlight  Kind = "flight"
)

// Kinds lists the known kinds in fetch order.
var Kinds = []Kind{KindTour, KindHotel, KindFlight}

// ParseKind accepts the spellings the backends use ("Tour", "hotel-booking", "FlightBooking").
func ParseKind(s string) Kind {
	low := strings.ToLower(strings.TrimSpace(s))
	switch {
	case low == "":
		return KindUnknown
	case strings.Contains(low, "tour"):
		return KindTour
	case strings.Contains(low, "hotel"), strings.Contains(low, "room"):
		return KindHotel
	case strings.Contains(low, "flight"):
		return KindFlight
	default:
		return KindUnknown
	}
}

func (k Kind) Known() bool {
	return k == KindTour || k == KindHotel || k == KindFlight
}

func (k Kind) String() string { return string(k) }

// Title is used in placeholder display names.
func (k Kind) Title() string {
	switch k {
	case KindTour:
		return "Tour"
	case KindHotel:
		return "Hotel"
	case KindFlight:
		return "Flight"
	default:
		return "Booking"
	}
}
