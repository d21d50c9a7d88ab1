package vehicle

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/rentvehical/rent-compass/internal/distance"
)

var pinCodePattern = regexp.MustCompile(`^\d{6}$`)

// Validation errors for listing submissions
var (
	ErrMissingFields  = errors.New("please fill in all required fields including contact and location information")
	ErrInvalidPinCode = errors.New("please enter a valid 6-digit PIN code")
	ErrInvalidCoords  = errors.New("latitude and longitude must be valid coordinates")
)

// Draft is a listing submission. Coordinates are optional; the address
// fields are not.
type Draft struct {
	Title       string
	Description string
	Contact     string
	IsOwner     bool
	Latitude    string
	Longitude   string
	Address     string
	District    string
	State       string
	PinCode     string
}

// ValidPinCode reports whether pin is a 6-digit postal code
func ValidPinCode(pin string) bool {
	return pinCodePattern.MatchString(pin)
}

// Validate checks the draft the same way the listing form does before submission
func (d Draft) Validate() error {
	required := []string{d.Title, d.Description, d.Contact, d.Address, d.District, d.State, d.PinCode}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			return ErrMissingFields
		}
	}

	if !ValidPinCode(d.PinCode) {
		return ErrInvalidPinCode
	}

	lat, lng := strings.TrimSpace(d.Latitude), strings.TrimSpace(d.Longitude)
	if lat == "" && lng == "" {
		return nil
	}
	if lat == "" || lng == "" {
		return ErrInvalidCoords
	}
	latV, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return ErrInvalidCoords
	}
	lngV, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return ErrInvalidCoords
	}
	if !(distance.Coordinates{Lat: latV, Lng: lngV}).Valid() {
		return ErrInvalidCoords
	}
	return nil
}

// Fields returns the form fields submitted for the draft, in submission order
func (d Draft) Fields() [][2]string {
	return [][2]string{
		{"title", d.Title},
		{"description", d.Description},
		{"isOwner", strconv.FormatBool(d.IsOwner)},
		{"contact", d.Contact},
		{"latitude", d.Latitude},
		{"longitude", d.Longitude},
		{"address", d.Address},
		{"district", d.District},
		{"state", d.State},
		{"pinCode", d.PinCode},
	}
}
