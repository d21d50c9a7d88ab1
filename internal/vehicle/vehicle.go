// Package vehicle defines the rental listing model shared by the client packages.
package vehicle

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rentvehical/rent-compass/internal/distance"
)

// Owner is the user who published a listing
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Degree is a latitude or longitude component. The backend stores form
// input verbatim, so values arrive either as JSON numbers or as numeric
// strings; an empty string or null leaves the component unset. Text that is
// not a number also leaves it unset and is kept in Raw.
type Degree struct {
	Value float64
	Set   bool
	Raw   string
}

// UnmarshalJSON accepts numbers, numeric strings, empty strings and null.
// Anything else decodes to an unset Degree rather than failing the listing.
func (d *Degree) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = Degree{}
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*d = Degree{}
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*d = Degree{Raw: raw}
		return nil
	}
	*d = Degree{Value: v, Set: true}
	return nil
}

// Malformed reports whether the component held text that is not a number
func (d Degree) Malformed() bool {
	return !d.Set && d.Raw != ""
}

// MarshalJSON writes a number, or null when unset
func (d Degree) MarshalJSON() ([]byte, error) {
	if !d.Set {
		return []byte("null"), nil
	}
	return json.Marshal(d.Value)
}

// Deg returns a set Degree
func Deg(v float64) Degree {
	return Degree{Value: v, Set: true}
}

// Location is where a listed vehicle is parked
type Location struct {
	Latitude  Degree `json:"latitude"`
	Longitude Degree `json:"longitude"`
	Address   string `json:"address"`
	District  string `json:"district"`
	State     string `json:"state"`
	PinCode   string `json:"pinCode"`
}

// Vehicle is a rental listing as returned by the marketplace API
type Vehicle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	IsPublished bool      `json:"isPublished"`
	IsOwner     bool      `json:"isOwner"`
	User        Owner     `json:"user"`
	Contact     string    `json:"contact,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Location    *Location `json:"location,omitempty"`
}

// UnmarshalJSON decodes a listing. Timestamps that are empty, null or not
// RFC 3339 leave the zero time instead of failing the decode.
func (v *Vehicle) UnmarshalJSON(b []byte) error {
	type plain Vehicle
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"createdAt"`
		UpdatedAt json.RawMessage `json:"updatedAt"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v.CreatedAt = parseTimestamp(aux.CreatedAt)
	v.UpdatedAt = parseTimestamp(aux.UpdatedAt)
	return nil
}

// parseTimestamp reads an RFC 3339 string or unix milliseconds
func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}
		}
		return time.UnixMilli(ms).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// MalformedLocation reports whether a coordinate was present but unreadable
func (v Vehicle) MalformedLocation() bool {
	return v.Location != nil && (v.Location.Latitude.Malformed() || v.Location.Longitude.Malformed())
}

// Cover returns the first image, which is the listing's cover image
func (v Vehicle) Cover() (string, bool) {
	if len(v.Images) == 0 {
		return "", false
	}
	return v.Images[0], true
}

// Coordinates returns the listing position when both components are set and valid
func (v Vehicle) Coordinates() (distance.Coordinates, bool) {
	if v.Location == nil || !v.Location.Latitude.Set || !v.Location.Longitude.Set {
		return distance.Coordinates{}, false
	}
	c := distance.Coordinates{Lat: v.Location.Latitude.Value, Lng: v.Location.Longitude.Value}
	if !c.Valid() {
		return distance.Coordinates{}, false
	}
	return c, true
}

// Status renders the publication flag the way listings are labelled
func (v Vehicle) Status() string {
	if v.IsPublished {
		return "Published"
	}
	return "Draft"
}
