package listing

import (
	"sort"
	"strings"

	"github.com/rentvehical/rent-compass/internal/distance"
	"github.com/rentvehical/rent-compass/internal/vehicle"
)

// Result is a visible listing and its distance from the device, when known
type Result struct {
	Vehicle  vehicle.Vehicle
	Distance *float64
}

// Apply filters and orders vehicles:
//
//  1. with a known origin and a radius other than all, only listings with a
//     location within the radius are kept
//  2. with a known origin, located listings are sorted by ascending distance
//     and listings without a location follow in their original order
//  3. the search text then keeps listings whose title, description or owner
//     name contains it, ignoring case
//
// Without an origin the radius cannot be evaluated and the collection is
// returned unfiltered by distance.
func Apply(vehicles []vehicle.Vehicle, state FilterState, origin *distance.Coordinates) []Result {
	state = state.normalized()

	results := make([]Result, 0, len(vehicles))
	var unlocated []Result

	radiusKm, hasRadius := state.Distance.Kilometers()

	for _, v := range vehicles {
		if origin == nil {
			results = append(results, Result{Vehicle: v})
			continue
		}

		coords, ok := v.Coordinates()
		if !ok {
			if !hasRadius {
				unlocated = append(unlocated, Result{Vehicle: v})
			}
			continue
		}

		d := distance.Between(*origin, coords)
		if hasRadius && d > radiusKm {
			continue
		}
		results = append(results, Result{Vehicle: v, Distance: &d})
	}

	if origin != nil {
		sort.SliceStable(results, func(i, j int) bool {
			return *results[i].Distance < *results[j].Distance
		})
		results = append(results, unlocated...)
	}

	return search(results, state.Search)
}

func search(results []Result, text string) []Result {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return results
	}

	matched := results[:0]
	for _, r := range results {
		if matches(r.Vehicle, needle) {
			matched = append(matched, r)
		}
	}
	return matched
}

func matches(v vehicle.Vehicle, needle string) bool {
	return strings.Contains(strings.ToLower(v.Title), needle) ||
		strings.Contains(strings.ToLower(v.Description), needle) ||
		strings.Contains(strings.ToLower(v.User.Name), needle)
}
