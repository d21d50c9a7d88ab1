// Package state holds the application state shared by commands: the
// confirmed user, the listing collection and the listing being viewed.
// Only the Store mutates it; readers receive copies.
package state

import (
	"sync"

	"github.com/rentvehical/rent-compass/internal/api"
	"github.com/rentvehical/rent-compass/internal/vehicle"
)

// Snapshot is a point-in-time copy of the application state
type Snapshot struct {
	User          api.User
	Vehicles      []vehicle.Vehicle
	SingleVehicle *vehicle.Vehicle
}

// Store is the single owner of the application state
type Store struct {
	mu    sync.RWMutex
	state Snapshot
}

// New returns an empty store with a guest user
func New() *Store {
	return &Store{}
}

// SetUser records the confirmed identity. A zero User means guest.
func (s *Store) SetUser(u api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = u
}

// SetVehicles replaces the listing collection
func (s *Store) SetVehicles(vs []vehicle.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Vehicles = copyVehicles(vs)
}

// SetSingleVehicle records the listing being viewed
func (s *Store) SetSingleVehicle(v vehicle.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SingleVehicle = &v
}

// ClearVehicles drops the collection and the viewed listing
func (s *Store) ClearVehicles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Vehicles = nil
	s.state.SingleVehicle = nil
}

// Reset returns the store to its initial guest state
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Snapshot{}
}

// User returns the current identity
func (s *Store) User() api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

// Vehicles returns a copy of the listing collection
func (s *Store) Vehicles() []vehicle.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyVehicles(s.state.Vehicles)
}

// Snapshot returns a copy of the whole state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{User: s.state.User, Vehicles: copyVehicles(s.state.Vehicles)}
	if s.state.SingleVehicle != nil {
		v := *s.state.SingleVehicle
		snap.SingleVehicle = &v
	}
	return snap
}

func copyVehicles(vs []vehicle.Vehicle) []vehicle.Vehicle {
	if vs == nil {
		return nil
	}
	out := make([]vehicle.Vehicle, len(vs))
	copy(out, vs)
	return out
}
