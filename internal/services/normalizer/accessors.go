package normalizer

import "github.com/BearBump/TripBox/internal/models"

// Fallback chains are ordered accessor lists evaluated left to right; the first accessor
// that yields a value wins.

type numberAccessor func(r models.RawBooking) (float64, bool)

type stringAccessor func(r models.RawBooking) (string, bool)

func num(key string) numberAccessor {
	return func(r models.RawBooking) (float64, bool) { return r.Number(key) }
}

// positive only accepts values above zero (a zero discount means "no discount").
func positive(a numberAccessor) numberAccessor {
	return func(r models.RawBooking) (float64, bool) {
		v, ok := a(r)
		if !ok || v <= 0 {
			return 0, false
		}
		return v, true
	}
}

// nestedNum reads key from the object stored under parent.
func nestedNum(parent string, a numberAccessor) numberAccessor {
	return func(r models.RawBooking) (float64, bool) {
		obj, ok := r.Object(parent)
		if !ok {
			return 0, false
		}
		return a(obj)
	}
}

func listLen(key string) numberAccessor {
	return func(r models.RawBooking) (float64, bool) {
		l, ok := r.List(key)
		if !ok {
			return 0, false
		}
		return float64(len(l)), true
	}
}

func str(key string) stringAccessor {
	return func(r models.RawBooking) (string, bool) { return r.String(key) }
}

func nestedStr(parent string, a stringAccessor) stringAccessor {
	return func(r models.RawBooking) (string, bool) {
		obj, ok := r.Object(parent)
		if !ok {
			return "", false
		}
		return a(obj)
	}
}

// firstOfList reads the first string element of an array field.
func firstOfList(key string) stringAccessor {
	return func(r models.RawBooking) (string, bool) {
		l, ok := r.List(key)
		if !ok || len(l) == 0 {
			return "", false
		}
		switch x := l[0].(type) {
		case string:
			return x, x != ""
		case map[string]any:
			return firstString(models.RawBooking(x), str("url"), str("src"))
		}
		return "", false
	}
}

func firstNumber(r models.RawBooking, chain ...numberAccessor) (float64, bool) {
	for _, a := range chain {
		if v, ok := a(r); ok {
			return v, true
		}
	}
	return 0, false
}

func firstString(r models.RawBooking, chain ...stringAccessor) (string, bool) {
	for _, a := range chain {
		if v, ok := a(r); ok {
			return v, true
		}
	}
	return "", false
}
