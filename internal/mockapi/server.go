// Package mockapi is an in-memory rental marketplace backend. It serves
// the same routes as the real service so the client can be developed and
// tested without one.
package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/rentvehical/rent-compass/internal/vehicle"
)

// DefaultQuota is how many contacts a user may reveal
const DefaultQuota = 5

// User is a marketplace account
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Server holds the marketplace state and routes requests to it
type Server struct {
	mu       sync.Mutex
	vehicles map[string]vehicle.Vehicle
	users    map[string]User
	quota    map[string]int

	secret       []byte
	initialQuota int
	now          func() time.Time
	logger       zerolog.Logger
	router       *mux.Router
}

// Option configures a Server
type Option func(*Server)

// WithSecret sets the HMAC key used to sign and verify tokens
func WithSecret(secret []byte) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithQuota sets the initial contact quota of new users
func WithQuota(n int) Option {
	return func(s *Server) {
		s.initialQuota = n
	}
}

// WithClock sets the time source for timestamps and token expiry
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithLogger sets the request logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates an empty marketplace
func New(opts ...Option) *Server {
	s := &Server{
		vehicles:     make(map[string]vehicle.Vehicle),
		users:        make(map[string]User),
		quota:        make(map[string]int),
		secret:       []byte("rent-compass-mock-secret"),
		initialQuota: DefaultQuota,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	v := r.PathPrefix("/vehicle").Subrouter()
	v.HandleFunc("/", s.handleListVehicles).Methods(http.MethodGet)
	v.HandleFunc("/vehicle_id/{id}", s.handleGetVehicle).Methods(http.MethodGet)
	v.HandleFunc("/user_id/{id}", s.handleUserVehicles).Methods(http.MethodGet)
	v.HandleFunc("/create-vehicle", s.requireUser(s.handleCreateVehicle)).Methods(http.MethodPost)
	v.HandleFunc("/delete-vehicle/{id}", s.requireUser(s.handleDeleteVehicle)).Methods(http.MethodDelete)
	v.HandleFunc("/toggle-publish-vehicle/{id}", s.requireUser(s.handleTogglePublish)).Methods(http.MethodPut)
	v.HandleFunc("/vehicle_contact/{id}", s.requireUser(s.handleContact)).Methods(http.MethodGet)

	u := r.PathPrefix("/user").Subrouter()
	u.HandleFunc("/checkUser", s.requireUser(s.handleCheckUser)).Methods(http.MethodPost)
	u.HandleFunc("/count_view", s.requireUser(s.handleCountView)).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	return r
}

// AddUser registers an account with a fresh contact quota
func (s *Server) AddUser(name, email string) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := User{ID: uuid.NewString(), Name: name, Email: email}
	s.users[u.ID] = u
	s.quota[u.ID] = s.initialQuota
	return u
}

// AddVehicle stores a listing owned by ownerID and returns it as stored.
// An empty ID is replaced by a new one; zero timestamps are set to now.
func (s *Server) AddVehicle(ownerID string, v vehicle.Vehicle) (vehicle.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[ownerID]
	if !ok {
		return vehicle.Vehicle{}, errors.New("unknown owner")
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now().UTC()
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = v.CreatedAt
	}
	v.User = vehicle.Owner{ID: owner.ID, Name: owner.Name, Email: owner.Email}
	s.vehicles[v.ID] = v
	return v, nil
}

// Vehicle returns a stored listing, contact included
func (s *Server) Vehicle(id string) (vehicle.Vehicle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	return v, ok
}

// Vehicles returns every listing, drafts included, newest first
func (s *Server) Vehicles() []vehicle.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(vehicle.Vehicle) bool { return true })
}

// Remaining returns the contact quota left for a user
func (s *Server) Remaining(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota[userID]
}

// sorted returns listings newest first, filtered by keep
func (s *Server) sorted(keep func(vehicle.Vehicle) bool) []vehicle.Vehicle {
	out := []vehicle.Vehicle{}
	for _, v := range s.vehicles {
		if keep(v) {
			v.Contact = ""
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type envelope map[string]any

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, envelope{"success": false, "error": message})
}

// loggingMiddleware logs all HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// recoveryMiddleware recovers from panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error().
					Interface("error", err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				s.fail(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
