package view

import (
	"testing"
	"time"

	"github.com/BearBump/TripBox/internal/models"
	"github.com/stretchr/testify/require"
)

func at(days int) time.Time {
	return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}

func ids(items []models.Booking) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestBuild_AllSortsDescending(t *testing.T) {
	lists := models.BookingLists{
		Tour:   []models.Booking{{ID: "a", Kind: models.KindTour, CreatedAt: at(1)}},
		Hotel:  []models.Booking{{ID: "c", Kind: models.KindHotel, CreatedAt: at(3)}},
		Flight: []models.Booking{{ID: "b", Kind: models.KindFlight, CreatedAt: at(2)}},
	}
	require.Equal(t, []string{"a", "b", "c"}, ids(Build(lists, FilterAll)))
}

func TestBuild_DropsMissingIDs(t *testing.T) {
	lists := models.BookingLists{
		Tour:  []models.Booking{{ID: "", Kind: models.KindTour, CreatedAt: at(0)}, {ID: "t", Kind: models.KindTour}},
		Hotel: []models.Booking{{ID: "  ", Kind: models.KindHotel}},
	}
	require.Equal(t, []string{"t"}, ids(Build(lists, FilterAll)))
}

func TestBuild_StableTiesAndZeroTimesLast(t *testing.T) {
	same := at(5)
	lists := models.BookingLists{
		Tour:   []models.Booking{{ID: "t-zero", Kind: models.KindTour}, {ID: "t1", Kind: models.KindTour, CreatedAt: same}},
		Hotel:  []models.Booking{{ID: "h1", Kind: models.KindHotel, CreatedAt: same}},
		Flight: []models.Booking{{ID: "f-zero", Kind: models.KindFlight}, {ID: "f1", Kind: models.KindFlight, CreatedAt: same}},
	}
	require.Equal(t, []string{"t1", "h1", "f1", "t-zero", "f-zero"}, ids(Build(lists, FilterAll)))
}

func TestBuild_SingleKindUsesListAsIs(t *testing.T) {
	hotels := []models.Booking{
		{ID: "", Kind: models.KindHotel, CreatedAt: at(9)},
		{ID: "h2", Kind: models.KindHotel, CreatedAt: at(1)},
	}
	lists := models.BookingLists{Hotel: hotels, Tour: []models.Booking{{ID: "t"}}}

	out := Build(lists, FilterHotel)
	require.Equal(t, hotels, out)

	out[0].ID = "mutated"
	require.Equal(t, "", hotels[0].ID)
}

func TestBuild_ClassifiesUnknownKinds(t *testing.T) {
	var seen []string
	b := NewBuilder(nil).OnClassify(func(item models.Booking) { seen = append(seen, item.ClassifiedBy) })

	lists := models.BookingLists{
		Hotel: []models.Booking{
			{ID: "x", Kind: models.KindUnknown, Raw: models.RawBooking{"bookingReference": "FLT-1"}},
			{ID: "y", Kind: models.KindHotel},
		},
	}
	out := b.Build(lists, FilterAll)

	require.Len(t, out, 2)
	require.Equal(t, models.KindFlight, out[0].Kind)
	require.Equal(t, "reference-prefix", out[0].ClassifiedBy)
	require.Equal(t, []string{"reference-prefix"}, seen)
	require.Equal(t, models.KindUnknown, lists.Hotel[0].Kind)
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "ALL": FilterAll, "tour": FilterTour, " Hotel ": FilterHotel, "flight": FilterFlight} {
		got, ok := ParseFilter(in)
		require.True(t, ok, in)
		require.Equal(t, want, got)
	}
	_, ok := ParseFilter("cars")
	require.False(t, ok)
}
