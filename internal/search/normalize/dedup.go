// internal/search/normalize/dedup.go
package normalize

import (
	"sort"

	"carsearch/internal/models"
)

// Deduplicate collapses listings sharing the same (source, nativeID)
// identity, keeping the most complete record and, on equal completeness, the
// earlier-fetched one. Output order follows the surviving listings' fetch
// order, so the operation is deterministic and idempotent.
func Deduplicate(listings []models.NormalizedListing) []models.NormalizedListing {
	if len(listings) <= 1 {
		return listings
	}

	type identity struct {
		source   string
		nativeID string
	}

	best := make(map[identity]models.NormalizedListing, len(listings))
	for _, l := range listings {
		id := identity{source: l.Source, nativeID: l.NativeID}
		current, seen := best[id]
		if !seen || betterDuplicate(l, current) {
			best[id] = l
		}
	}

	out := make([]models.NormalizedListing, 0, len(best))
	for _, l := range best {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FetchOrder < out[j].FetchOrder
	})
	return out
}

// betterDuplicate reports whether candidate should replace current when both
// carry the same identity.
func betterDuplicate(candidate, current models.NormalizedListing) bool {
	cc, kc := candidate.Completeness(), current.Completeness()
	if cc != kc {
		return cc > kc
	}
	return candidate.FetchOrder < current.FetchOrder
}
