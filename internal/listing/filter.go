// Package listing turns the listing collection into the visible, ordered
// subset for the current filter state and device position.
package listing

import (
	"fmt"
	"net/url"
	"strings"
)

// Radius is a distance filter value
type Radius string

// Radius filter values
const (
	RadiusAll Radius = "all"
	Radius10  Radius = "10km"
	Radius50  Radius = "50km"
	Radius100 Radius = "100km"
)

// Radii lists every radius in display order
var Radii = []Radius{RadiusAll, Radius10, Radius50, Radius100}

// ParseRadius converts a string to a Radius. An empty string is RadiusAll.
func ParseRadius(s string) (Radius, error) {
	switch r := Radius(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RadiusAll, nil
	case RadiusAll, Radius10, Radius50, Radius100:
		return r, nil
	default:
		return RadiusAll, fmt.Errorf("invalid distance: %s (valid options: all, 10km, 50km, 100km)", s)
	}
}

// Kilometers returns the radius in km. It reports false for RadiusAll.
func (r Radius) Kilometers() (float64, bool) {
	switch r {
	case Radius10:
		return 10, true
	case Radius50:
		return 50, true
	case Radius100:
		return 100, true
	default:
		return 0, false
	}
}

func (r Radius) String() string {
	if r == "" {
		return string(RadiusAll)
	}
	return string(r)
}

// Query parameter names
const (
	SearchParam   = "search"
	DistanceParam = "distance"
)

// FilterState is the filter selection carried in the URL query
type FilterState struct {
	Search   string
	Distance Radius
}

// ParseFilterState reads the state from query parameters. An invalid
// distance is reported as an error alongside a state whose distance is
// RadiusAll, so lenient callers can use the result anyway.
func ParseFilterState(q url.Values) (FilterState, error) {
	r, err := ParseRadius(q.Get(DistanceParam))
	return FilterState{Search: q.Get(SearchParam), Distance: r}, err
}

// FilterStateFromURL parses a full URL, a path with a query, or a bare query string
func FilterStateFromURL(raw string) (FilterState, error) {
	raw = strings.TrimSpace(raw)
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	} else if strings.Contains(raw, "://") || strings.HasPrefix(raw, "/") {
		query = ""
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}

	q, err := url.ParseQuery(query)
	if err != nil {
		return FilterState{Distance: RadiusAll}, fmt.Errorf("invalid filter query: %w", err)
	}
	return ParseFilterState(q)
}

// Values returns the state as query parameters, omitting defaults
func (s FilterState) Values() url.Values {
	q := url.Values{}
	if s.Search != "" {
		q.Set(SearchParam, s.Search)
	}
	if s.Distance != "" && s.Distance != RadiusAll {
		q.Set(DistanceParam, string(s.Distance))
	}
	return q
}

// Encode returns the query string for the state, without a leading '?'
func (s FilterState) Encode() string {
	return s.Values().Encode()
}

func (s FilterState) normalized() FilterState {
	if s.Distance == "" {
		s.Distance = RadiusAll
	}
	return s
}
