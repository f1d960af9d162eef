package normalizer

import (
	"math"
	"strings"
	"time"

	"github.com/BearBump/TripBox/internal/models"
)

// UnknownDate is what the display helpers return instead of failing on a bad date.
const UnknownDate = "unknown"

const displayLayout = "02/01/2006"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseTime accepts ISO timestamps, bare dates and epoch milliseconds. It never fails loudly.
func ParseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(x)).UTC(), true
	case int64:
		if x <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(x).UTC(), true
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	}
	return time.Time{}, false
}

// timeField tries keys in order on r.
func timeField(r models.RawBooking, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		v, ok := r.Value(k)
		if !ok {
			continue
		}
		if t, ok := ParseTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func timePtr(t time.Time, ok bool) *time.Time {
	if !ok {
		return nil
	}
	return &t
}

// FormatDate renders a date for display or UnknownDate.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return UnknownDate
	}
	return t.Format(displayLayout)
}

// DisplayDate formats a raw value as a date without returning an error.
func DisplayDate(v any) string {
	t, ok := ParseTime(v)
	if !ok {
		return UnknownDate
	}
	return FormatDate(&t)
}

// Nights is ceil((checkOut - checkIn) / 1 day), at least 1, and 1 when a date is missing.
func Nights(checkIn, checkOut *time.Time) int {
	if checkIn == nil || checkOut == nil {
		return 1
	}
	n := int(math.Ceil(checkOut.Sub(*checkIn).Hours() / 24))
	if n < 1 {
		return 1
	}
	return n
}
