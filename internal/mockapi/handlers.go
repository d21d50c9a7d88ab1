package mockapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rentvehical/rent-compass/internal/vehicle"
)

const maxFormBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "status": "ok"})
}

// handleListVehicles serves the public collection: published listings only.
// Drafts are visible to their owner through the user_id route.
func (s *Server) handleListVehicles(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	vehicles := s.sorted(func(v vehicle.Vehicle) bool { return v.IsPublished })
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, envelope{"success": true, "data": vehicles})
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	v, ok := s.vehicles[id]
	s.mu.Unlock()

	if !ok {
		s.fail(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	v.Contact = ""
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "data": v})
}

func (s *Server) handleUserVehicles(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	s.mu.Lock()
	vehicles := s.sorted(func(v vehicle.Vehicle) bool { return v.User.ID == userID })
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, envelope{"success": true, "data": vehicles})
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		s.fail(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	field := func(name string) string { return strings.TrimSpace(r.FormValue(name)) }
	draft := vehicle.Draft{
		Title:       field("title"),
		Description: field("description"),
		Contact:     field("contact"),
		IsOwner:     field("isOwner") == "true",
		Latitude:    field("latitude"),
		Longitude:   field("longitude"),
		Address:     field("address"),
		District:    field("district"),
		State:       field("state"),
		PinCode:     field("pinCode"),
	}
	if err := draft.Validate(); err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	loc := &vehicle.Location{
		Latitude:  degree(draft.Latitude),
		Longitude: degree(draft.Longitude),
		Address:   draft.Address,
		District:  draft.District,
		State:     draft.State,
		PinCode:   draft.PinCode,
	}

	v, err := s.AddVehicle(user.ID, vehicle.Vehicle{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Contact:     draft.Contact,
		IsOwner:     draft.IsOwner,
		Images:      []string{},
		Location:    loc,
	})
	if err != nil {
		s.fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s.logger.Info().Str("vehicle_id", v.ID).Str("user_id", user.ID).Msg("Vehicle created")
	v.Contact = ""
	s.writeJSON(w, http.StatusCreated, envelope{"success": true, "message": "Vehicle uploaded", "data": v})
}

// degree converts a validated form value; empty stays unset
func degree(s string) vehicle.Degree {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return vehicle.Degree{}
	}
	return vehicle.Deg(v)
}

// owned looks up a listing and checks that the caller owns it. It writes
// the failure response itself.
func (s *Server) owned(w http.ResponseWriter, r *http.Request) (vehicle.Vehicle, bool) {
	id := mux.Vars(r)["id"]
	user := userFrom(r.Context())

	v, ok := s.vehicles[id]
	if !ok {
		s.fail(w, http.StatusNotFound, "Vehicle not found")
		return vehicle.Vehicle{}, false
	}
	if v.User.ID != user.ID {
		s.fail(w, http.StatusForbidden, "You can only modify your own vehicles")
		return vehicle.Vehicle{}, false
	}
	return v, true
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	v, ok := s.owned(w, r)
	if ok {
		delete(s.vehicles, v.ID)
	}
	s.mu.Unlock()

	if ok {
		s.writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Vehicle deleted"})
	}
}

func (s *Server) handleTogglePublish(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	v, ok := s.owned(w, r)
	if ok {
		v.IsPublished = !v.IsPublished
		v.UpdatedAt = s.now().UTC()
		s.vehicles[v.ID] = v
	}
	s.mu.Unlock()

	if ok {
		v.Contact = ""
		s.writeJSON(w, http.StatusOK, envelope{"success": true, "data": v})
	}
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	user := userFrom(r.Context())

	s.mu.Lock()
	v, ok := s.vehicles[id]
	left := s.quota[user.ID]
	if ok && left > 0 {
		s.quota[user.ID] = left - 1
	}
	s.mu.Unlock()

	switch {
	case !ok:
		s.fail(w, http.StatusNotFound, "Vehicle not found")
	case left <= 0:
		s.writeJSON(w, http.StatusTooManyRequests, envelope{"success": false, "message": "No contact requests left"})
	default:
		s.writeJSON(w, http.StatusOK, envelope{
			"success":     true,
			"vehicleData": envelope{"contact": v.Contact},
		})
	}
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "userDetails": userFrom(r.Context())})
}

func (s *Server) handleCountView(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	s.mu.Lock()
	left := s.quota[user.ID]
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, envelope{"success": true, "request_count": left})
}
