package view

import (
	"sort"
	"strings"

	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/classifier"
)

// Filter selects which kinds the view shows.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterTour   Filter = Filter(models.KindTour)
	FilterHotel  Filter = Filter(models.KindHotel)
	FilterFlight Filter = Filter(models.KindFlight)
)

// ParseFilter maps query values onto a Filter; empty means all.
func ParseFilter(s string) (Filter, bool) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, true
	case FilterTour, FilterHotel, FilterFlight:
		return f, true
	}
	return "", false
}

type Builder struct {
	classifier *classifier.Classifier
	onClassify func(models.Booking)
}

func NewBuilder(c *classifier.Classifier) *Builder {
	if c == nil {
		c = classifier.Default()
	}
	return &Builder{classifier: c}
}

// OnClassify is called for every merged record whose kind had to be inferred.
func (b *Builder) OnClassify(fn func(models.Booking)) *Builder {
	b.onClassify = fn
	return b
}

// Build returns a fresh slice; the input lists are not modified.
//
// A single-kind filter returns that kind's list as is. FilterAll concatenates tour, hotel, flight,
// drops records without an id, re-derives missing kinds and sorts by CreatedAt descending.
// Ties keep concatenation order.
func (b *Builder) Build(lists models.BookingLists, filter Filter) []models.Booking {
	if filter != FilterAll && filter != "" {
		src := lists.ByKind(models.Kind(filter))
		out := make([]models.Booking, len(src))
		copy(out, src)
		return out
	}

	out := make([]models.Booking, 0, len(lists.Tour)+len(lists.Hotel)+len(lists.Flight))
	for _, kind := range models.Kinds {
		for _, item := range lists.ByKind(kind) {
			if strings.TrimSpace(item.ID) == "" {
				continue
			}
			if !item.Kind.Known() {
				res := b.classifier.Classify(item.Raw)
				item.Kind, item.ClassifiedBy = res.Kind, res.Rule
				if b.onClassify != nil {
					b.onClassify(item)
				}
			}
			out = append(out, item)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i]) > sortKey(out[j])
	})
	return out
}

// Build uses the default classifier.
func Build(lists models.BookingLists, filter Filter) []models.Booking {
	return NewBuilder(nil).Build(lists, filter)
}

// missing createdAt sorts as epoch 0
func sortKey(b models.Booking) int64 {
	if b.CreatedAt.IsZero() {
		return 0
	}
	return b.CreatedAt.UnixNano()
}
