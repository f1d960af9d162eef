package normalizer

import (
	"net/url"
	"strings"

	"github.com/BearBump/TripBox/internal/models"
)

const DefaultPlaceholderImage = "https://placehold.co/600x400?text=No+Image"

// URLFixer rewrites image URLs into a form reachable by clients.
type URLFixer func(string) string

var localHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"10.0.2.2":  {},
}

// PublicURLFixer rewrites relative and localhost URLs against base. Absolute public URLs pass through.
func PublicURLFixer(base string) URLFixer {
	base = strings.TrimRight(base, "/")
	return func(raw string) string {
		if raw == "" || base == "" {
			return raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		if !u.IsAbs() {
			if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "data:") {
				return raw
			}
			return base + "/" + strings.TrimLeft(raw, "/")
		}
		if _, local := localHosts[u.Hostname()]; local {
			rest := u.EscapedPath()
			if u.RawQuery != "" {
				rest += "?" + u.RawQuery
			}
			return base + "/" + strings.TrimLeft(rest, "/")
		}
		return raw
	}
}

var legacyImageKeys = map[models.Kind][]string{
	models.KindTour:   {"image", "imageUrl"},
	models.KindHotel:  {"thumbnail", "mainImage"},
	models.KindFlight: {"airlineLogo", "logo"},
}

// imageChain: cover image → first gallery image → kind-specific legacy field. The booking itself
// is checked before the related entity at each step.
func imageChain(kind models.Kind, relatedKey string) []stringAccessor {
	chain := []stringAccessor{
		str("coverImage"), str("imageCover"),
		nestedStr(relatedKey, str("coverImage")), nestedStr(relatedKey, str("imageCover")),
		firstOfList("images"), firstOfList("gallery"),
		nestedStr(relatedKey, firstOfList("images")), nestedStr(relatedKey, firstOfList("gallery")),
	}
	for _, k := range legacyImageKeys[kind] {
		chain = append(chain, str(k), nestedStr(relatedKey, str(k)))
	}
	return chain
}
