// Package classifier infers the kind of a booking whose provenance was lost.
//
// Rules are evaluated in order and the first match wins: relation fields first, then
// shape signals (paired dates, passenger arrays), then the reference-code prefix.
package classifier

import (
	"strings"

	"github.com/BearBump/TripBox/internal/models"
)

// Rule is one classification signal.
type Rule struct {
	Name  string
	Kind  models.Kind
	Match func(r models.RawBooking) bool
}

// Result carries the inferred kind and the rule that produced it.
type Result struct {
	Kind models.Kind `json:"kind"`
	Rule string      `json:"rule"`
}

const (
	RuleReferencePrefix = "reference-prefix"
	RuleFallback        = "fallback"
	RuleUnresolved      = "unresolved"
)

// DefaultRules is the priority-ordered rule list.
var DefaultRules = []Rule{
	{Name: "tour-relation", Kind: models.KindTour, Match: has("tour")},
	{Name: "tour-id", Kind: models.KindTour, Match: has("tourId")},
	{Name: "tour-participants", Kind: models.KindTour, Match: func(r models.RawBooking) bool {
		return r.Has("participants") && r.Has("startDate") &&
			!hasCheckIn(r) && !r.Has("passengers") && !r.Has("flight")
	}},

	{Name: "flight-relation", Kind: models.KindFlight, Match: has("flight")},
	{Name: "flight-id", Kind: models.KindFlight, Match: has("flightId")},
	{Name: "flight-passengers", Kind: models.KindFlight, Match: func(r models.RawBooking) bool {
		l, ok := r.List("passengers")
		return ok && len(l) > 0
	}},
	{Name: "flight-date", Kind: models.KindFlight, Match: has("flightDate")},

	{Name: "hotel-relation", Kind: models.KindHotel, Match: has("hotel")},
	{Name: "hotel-id", Kind: models.KindHotel, Match: has("hotelId")},
	{Name: "hotel-stay-dates", Kind: models.KindHotel, Match: func(r models.RawBooking) bool {
		return hasCheckIn(r) && hasCheckOut(r)
	}},
	{Name: "hotel-guests-nights", Kind: models.KindHotel, Match: func(r models.RawBooking) bool {
		_, isObj := r.Object("guests")
		return isObj && r.Has("nights")
	}},
	{Name: "hotel-room", Kind: models.KindHotel, Match: has("room")},
}

// ReferencePrefixes maps bookingReference prefixes to kinds.
var ReferencePrefixes = []struct {
	Prefix string
	Kind   models.Kind
}{
	{"TUR", models.KindTour},
	{"HTB", models.KindHotel},
	{"FLT", models.KindFlight},
}

type Classifier struct {
	rules    []Rule
	fallback models.Kind
}

// New builds a classifier. fallback is returned for records nothing matches; KindUnknown keeps
// them distinguishable, KindHotel reproduces the legacy behaviour.
func New(rules []Rule, fallback models.Kind) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	if fallback == "" {
		fallback = models.KindUnknown
	}
	return &Classifier{rules: rules, fallback: fallback}
}

var defaultClassifier = New(nil, models.KindUnknown)

func Default() *Classifier { return defaultClassifier }

// Classify is total: it always returns a kind.
func (c *Classifier) Classify(r models.RawBooking) Result {
	for _, rule := range c.rules {
		if rule.Match(r) {
			return Result{Kind: rule.Kind, Rule: rule.Name}
		}
	}
	if ref, ok := r.String("bookingReference"); ok {
		if k := KindFromReference(ref); k.Known() {
			return Result{Kind: k, Rule: RuleReferencePrefix}
		}
	}
	if c.fallback.Known() {
		return Result{Kind: c.fallback, Rule: RuleFallback}
	}
	return Result{Kind: models.KindUnknown, Rule: RuleUnresolved}
}

// KindFromReference reads the TUR/HTB/FLT prefix of a booking reference.
func KindFromReference(ref string) models.Kind {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	for _, p := range ReferencePrefixes {
		if strings.HasPrefix(ref, p.Prefix) {
			return p.Kind
		}
	}
	return models.KindUnknown
}

func has(key string) func(models.RawBooking) bool {
	return func(r models.RawBooking) bool { return r.Has(key) }
}

func hasCheckIn(r models.RawBooking) bool  { return r.Has("checkIn") || r.Has("checkInDate") }
func hasCheckOut(r models.RawBooking) bool { return r.Has("checkOut") || r.Has("checkOutDate") }
