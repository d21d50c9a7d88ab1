package mockapi

import (
	"fmt"
	"time"

	"github.com/rentvehical/rent-compass/internal/vehicle"
)

// Demo holds the accounts created by Seed
type Demo struct {
	Owner  User
	Renter User
}

type seedListing struct {
	title, description, contact string
	lat, lng                    float64
	located                     bool
	district, state, pin        string
	published                   bool
	images                      []string
	age                         time.Duration
}

var seedListings = []seedListing{
	{"Mahindra Bolero Pickup", "1.5 tonne payload, available for daily hire", "9876500001",
		26.9124, 75.7873, true, "Jaipur", "Rajasthan", "302001", true,
		[]string{"bolero-front.jpg", "bolero-side.jpg"}, 2 * time.Hour},
	{"Swaraj 744 Tractor", "45 HP with trolley and cultivator", "9876500002",
		26.8500, 75.8000, true, "Jaipur", "Rajasthan", "302018", true,
		[]string{"swaraj.jpg"}, 26 * time.Hour},
	{"Bajaj Auto Rickshaw", "CNG, city permit", "9876500003",
		27.2000, 75.9000, true, "Jaipur", "Rajasthan", "303101", true,
		nil, 3 * 24 * time.Hour},
	{"Tata Ace Mini Truck", "Ideal for house shifting", "9876500004",
		26.4499, 74.6399, true, "Ajmer", "Rajasthan", "305001", true,
		[]string{"ace.jpg"}, 5 * 24 * time.Hour},
	{"Eicher 14ft Truck", "Interstate permit, driver included", "9876500005",
		28.6139, 77.2090, true, "New Delhi", "Delhi", "110001", true,
		[]string{"eicher.jpg"}, 8 * 24 * time.Hour},
	{"Force Tempo Traveller", "12 seater, AC", "9876500006",
		0, 0, false, "Jodhpur", "Rajasthan", "342001", true,
		nil, 10 * 24 * time.Hour},
	{"John Deere 5050D", "Harvest season bookings open", "9876500007",
		26.9200, 75.8200, true, "Jaipur", "Rajasthan", "302004", false,
		[]string{"deere.jpg"}, 12 * 24 * time.Hour},
}

// Seed fills the marketplace with two accounts and a handful of listings
// around Jaipur. The owner account holds every listing.
func Seed(s *Server) (Demo, error) {
	demo := Demo{
		Owner:  s.AddUser("Ramesh Kumar", "ramesh@example.com"),
		Renter: s.AddUser("Sita Sharma", "sita@example.com"),
	}

	now := s.now().UTC()
	for _, l := range seedListings {
		loc := &vehicle.Location{
			Address:  "Main Road",
			District: l.district,
			State:    l.state,
			PinCode:  l.pin,
		}
		if l.located {
			loc.Latitude = vehicle.Deg(l.lat)
			loc.Longitude = vehicle.Deg(l.lng)
		}
		images := l.images
		if images == nil {
			images = []string{}
		}
		_, err := s.AddVehicle(demo.Owner.ID, vehicle.Vehicle{
			Title:       l.title,
			Description: l.description,
			Contact:     l.contact,
			Images:      images,
			IsPublished: l.published,
			IsOwner:     true,
			CreatedAt:   now.Add(-l.age),
			Location:    loc,
		})
		if err != nil {
			return Demo{}, fmt.Errorf("failed to seed %s: %w", l.title, err)
		}
	}
	return demo, nil
}
