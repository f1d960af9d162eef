package normalizer

import (
	"fmt"
	"math"
	"time"

	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/classifier"
)

// kindRules holds the per-kind field names and fallback chains.
type kindRules struct {
	relatedKey string
	refKey     string
	unitPrice  []numberAccessor
	quantity   func(r models.RawBooking) int
	start      []string
	end        []string
	name       []stringAccessor
}

var idChain = []stringAccessor{str("_id"), str("id")}

var explicitPrice = []numberAccessor{num("totalPrice"), num("price")}

var rules = map[models.Kind]kindRules{
	models.KindTour: {
		relatedKey: "tour",
		refKey:     "tourId",
		unitPrice: []numberAccessor{
			nestedNum("tour", positive(num("priceDiscount"))),
			nestedNum("tour", num("price")),
		},
		quantity: func(r models.RawBooking) int {
			return count(r, num("numOfPeople"), num("participants"), listLen("participants"))
		},
		start: []string{"startDate", "tourDate"},
		end:   []string{"endDate"},
		name:  []stringAccessor{str("name"), str("title")},
	},
	models.KindHotel: {
		relatedKey: "hotel",
		refKey:     "hotelId",
		unitPrice: []numberAccessor{
			nestedNum("roomType", num("price")),
			nestedNum("hotel", nestedNum("roomType", num("price"))),
			nestedNum("room", num("price")),
		},
		start: []string{"checkInDate", "checkIn"},
		end:   []string{"checkOutDate", "checkOut"},
		name:  []stringAccessor{str("name"), str("title")},
	},
	models.KindFlight: {
		relatedKey: "flight",
		refKey:     "flightId",
		unitPrice:  []numberAccessor{nestedNum("flight", num("price"))},
		quantity: func(r models.RawBooking) int {
			if l, ok := r.List("passengers"); ok {
				return len(l)
			}
			return count(r, num("numOfPassengers"))
		},
		start: []string{"departureTime", "flightDate", "departureDate"},
		end:   []string{"arrivalTime", "returnDate"},
		name:  []stringAccessor{flightName, str("name")},
	},
}

type Normalizer struct {
	fixURL      URLFixer
	placeholder string
	classify    func(models.RawBooking) classifier.Result
}

func New() *Normalizer {
	return &Normalizer{
		fixURL:      func(s string) string { return s },
		placeholder: DefaultPlaceholderImage,
		classify:    classifier.Default().Classify,
	}
}

func (n *Normalizer) WithURLFixer(f URLFixer) *Normalizer {
	if f != nil {
		n.fixURL = f
	}
	return n
}

func (n *Normalizer) WithPlaceholder(url string) *Normalizer {
	if url != "" {
		n.placeholder = url
	}
	return n
}

// WithClassifier replaces the classifier used for records of unknown kind.
func (n *Normalizer) WithClassifier(c *classifier.Classifier) *Normalizer {
	if c != nil {
		n.classify = c.Classify
	}
	return n
}

var defaultNormalizer = New()

// Normalize uses the default normalizer (no URL rewriting).
func Normalize(kind models.Kind, raw models.RawBooking) models.Booking {
	return defaultNormalizer.Normalize(kind, raw)
}

// Normalize fills the canonical fields of one source record. It never fails: a record without an
// identifier comes back with an empty ID and is dropped later by the view builder.
// With KindUnknown the kind is inferred by the classifier first.
func (n *Normalizer) Normalize(kind models.Kind, raw models.RawBooking) models.Booking {
	if raw == nil {
		raw = models.RawBooking{}
	}
	b := models.Booking{Kind: kind, Raw: raw}
	if !kind.Known() {
		res := n.classify(raw)
		b.Kind = res.Kind
		b.ClassifiedBy = res.Rule
	}

	b.ID, _ = firstString(raw, idChain...)
	b.Reference, _ = raw.String("bookingReference")
	b.Status = models.ParseBookingStatus(statusOf(raw))
	if t, ok := timeField(raw, "createdAt", "created_at", "bookingDate"); ok {
		b.CreatedAt = t
	}

	r, known := rules[b.Kind]
	if !known {
		b.TotalPrice = sanitize(firstNumber(raw, explicitPrice...))
		b.Related = models.Related{DisplayName: b.Kind.Title()}
		b.ImageURL = n.image(b.Kind, "", raw)
		return b
	}

	b.StartDate = timePtr(timeField(raw, r.start...))
	if b.StartDate == nil {
		if rel, ok := raw.Object(r.relatedKey); ok {
			b.StartDate = timePtr(timeField(rel, r.start...))
		}
	}
	b.EndDate = timePtr(timeField(raw, r.end...))
	if b.EndDate == nil {
		if rel, ok := raw.Object(r.relatedKey); ok {
			b.EndDate = timePtr(timeField(rel, r.end...))
		}
	}

	quantity := 1
	switch b.Kind {
	case models.KindHotel:
		b.Nights = Nights(b.StartDate, b.EndDate)
		quantity = b.Nights
		b.Travelers = guests(raw)
	default:
		quantity = r.quantity(raw)
		b.Travelers = quantity
	}

	if v, ok := firstNumber(raw, explicitPrice...); ok {
		b.TotalPrice = sanitize(v, true)
	} else {
		unit, _ := firstNumber(raw, r.unitPrice...)
		b.TotalPrice = sanitize(unit*float64(quantity), true)
	}

	b.Related = related(b.Kind, r, raw)
	b.ImageURL = n.image(b.Kind, r.relatedKey, raw)
	return b
}

// NormalizeAll normalizes a whole source list, keeping order.
func (n *Normalizer) NormalizeAll(kind models.Kind, raws []models.RawBooking) []models.Booking {
	out := make([]models.Booking, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(kind, raw))
	}
	return out
}

// AsRaw writes the canonical fields back into a copy of the source record, so that normalizing
// the result again yields the same booking.
func AsRaw(b models.Booking) models.RawBooking {
	out := b.Raw.Clone()
	if b.ID != "" {
		out["_id"] = b.ID
	}
	out["totalPrice"] = b.TotalPrice
	out["status"] = string(b.Status)
	if !b.CreatedAt.IsZero() {
		out["createdAt"] = b.CreatedAt.Format(time.RFC3339Nano)
	}
	if b.ImageURL != "" {
		out["coverImage"] = b.ImageURL
	}
	return out
}

func (n *Normalizer) image(kind models.Kind, relatedKey string, raw models.RawBooking) string {
	var chain []stringAccessor
	if relatedKey == "" {
		chain = []stringAccessor{str("coverImage"), str("imageCover"), firstOfList("images")}
	} else {
		chain = imageChain(kind, relatedKey)
	}
	if u, ok := firstString(raw, chain...); ok {
		return n.fixURL(u)
	}
	return n.placeholder
}

func related(kind models.Kind, r kindRules, raw models.RawBooking) models.Related {
	if obj, ok := raw.Object(r.relatedKey); ok {
		rel := models.Related{Object: obj}
		rel.RefID, _ = firstString(obj, idChain...)
		if name, ok := firstString(obj, r.name...); ok {
			rel.DisplayName = name
		} else {
			rel.DisplayName = kind.Title()
		}
		return rel
	}
	if ref, ok := firstString(raw, str(r.relatedKey), str(r.refKey)); ok {
		return models.Related{RefID: ref, DisplayName: placeholderName(kind, ref), NeedsResolution: true}
	}
	return models.Related{DisplayName: kind.Title()}
}

func placeholderName(kind models.Kind, ref string) string {
	if len(ref) > 6 {
		ref = ref[len(ref)-6:]
	}
	return fmt.Sprintf("%s #%s", kind.Title(), ref)
}

func flightName(r models.RawBooking) (string, bool) {
	airline, okA := r.String("airline")
	number, okN := r.String("flightNumber")
	switch {
	case okA && okN:
		return airline + " " + number, true
	case okN:
		return number, true
	case okA:
		return airline, true
	}
	return "", false
}

func statusOf(raw models.RawBooking) string {
	s, _ := firstString(raw, str("status"), str("bookingStatus"))
	return s
}

// guests accepts a plain number or an {adults, children} object.
func guests(raw models.RawBooking) int {
	if n, ok := raw.Number("guests"); ok && n > 0 {
		return int(n)
	}
	if g, ok := raw.Object("guests"); ok {
		total := 0
		for _, k := range []string{"adults", "children"} {
			if n, ok := g.Number(k); ok && n > 0 {
				total += int(n)
			}
		}
		return total
	}
	return 0
}

// count returns the first positive integer in chain, defaulting to 1.
func count(r models.RawBooking, chain ...numberAccessor) int {
	for _, a := range chain {
		if v, ok := a(r); ok && v >= 1 && v < math.MaxInt32 {
			return int(v)
		}
	}
	return 1
}

// sanitize clamps prices into [0, +Inf).
func sanitize(v float64, ok bool) float64 {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
