package listing

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rentvehical/rent-compass/internal/catalog"
	"github.com/rentvehical/rent-compass/internal/distance"
	"github.com/rentvehical/rent-compass/internal/geo"
	"github.com/rentvehical/rent-compass/internal/state"
	"github.com/rentvehical/rent-compass/internal/vehicle"
)

// ErrSuperseded is returned by a load whose response arrived after a newer
// load was issued. The response is discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// Collection provides the listing collection
type Collection interface {
	Vehicles(ctx context.Context) ([]vehicle.Vehicle, catalog.Source, error)
	RefreshVehicles(ctx context.Context) ([]vehicle.Vehicle, error)
}

// Locator provides the device position
type Locator interface {
	Acquire(ctx context.Context) (distance.Coordinates, error)
	Known() (distance.Coordinates, bool)
}

var (
	_ Collection = (*catalog.Catalog)(nil)
	_ Locator    = (*geo.Acquirer)(nil)
)

// View is what the user sees for the current state
type View struct {
	Items  []Result
	State  FilterState
	Origin *distance.Coordinates
	// Total is the size of the unfiltered collection
	Total     int
	FromCache bool
	// Stale is set when the last load failed but an earlier collection is shown
	Stale bool
	// Err is the last load failure; with no Items and no Stale it means no data at all
	Err error
}

// Orchestrator owns the filter state and the collection it applies to
type Orchestrator struct {
	collection Collection
	locator    Locator
	app        *state.Store
	logger     zerolog.Logger
	onPending  func(Radius)

	mu        sync.Mutex
	state     FilterState
	vehicles  []vehicle.Vehicle
	loaded    bool
	fromCache bool
	loadErr   error
	seq       uint64
	pending   int
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithStateStore publishes every loaded collection to the application state
func WithStateStore(s *state.Store) Option {
	return func(o *Orchestrator) {
		o.app = s
	}
}

// WithPendingHook sets a function called when a distance selection starts
// waiting for the device position
func WithPendingHook(fn func(Radius)) Option {
	return func(o *Orchestrator) {
		o.onPending = fn
	}
}

// NewOrchestrator creates an orchestrator with the distance filter off
func NewOrchestrator(collection Collection, locator Locator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collection: collection,
		locator:    locator,
		logger:     zerolog.Nop(),
		state:      FilterState{Distance: RadiusAll},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load reads the collection, from cache when fresh
func (o *Orchestrator) Load(ctx context.Context) error {
	return o.load(ctx, false)
}

// Refresh reads the collection from the network
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.load(ctx, true)
}

func (o *Orchestrator) load(ctx context.Context, force bool) error {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.mu.Unlock()

	var (
		vs  []vehicle.Vehicle
		src = catalog.SourceNetwork
		err error
	)
	if force {
		vs, err = o.collection.RefreshVehicles(ctx)
	} else {
		vs, src, err = o.collection.Vehicles(ctx)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if seq != o.seq {
		o.logger.Debug().Uint64("seq", seq).Uint64("latest", o.seq).Msg("Discarding stale collection response")
		return ErrSuperseded
	}

	if err != nil {
		o.loadErr = err
		return err
	}

	o.vehicles = vs
	o.loaded = true
	o.fromCache = src == catalog.SourceCache
	o.loadErr = nil
	if o.app != nil {
		o.app.SetVehicles(vs)
	}
	o.logger.Debug().Int("count", len(vs)).Str("source", string(src)).Msg("Collection loaded")
	return nil
}

// SelectDistance switches the radius filter. Selecting the active radius
// does nothing. A radius other than all needs the device position; if it
// cannot be acquired the filter falls back to all and the error is returned.
func (o *Orchestrator) SelectDistance(ctx context.Context, r Radius) error {
	if r == "" {
		r = RadiusAll
	}

	o.mu.Lock()
	if o.state.Distance == r {
		o.mu.Unlock()
		return nil
	}
	o.state.Distance = r
	if r == RadiusAll || o.locator == nil {
		o.mu.Unlock()
		if r != RadiusAll {
			return o.rollback(r, &geo.Error{Kind: geo.PositionUnavailable, Err: errors.New("no locator configured")})
		}
		return nil
	}
	if _, ok := o.locator.Known(); ok {
		o.mu.Unlock()
		return nil
	}
	o.pending++
	o.mu.Unlock()

	if o.onPending != nil {
		o.onPending(r)
	}
	_, err := o.locator.Acquire(ctx)

	o.mu.Lock()
	o.pending--
	o.mu.Unlock()

	if err != nil {
		return o.rollback(r, err)
	}
	return nil
}

func (o *Orchestrator) rollback(r Radius, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Distance == r {
		o.state.Distance = RadiusAll
	}
	o.logger.Warn().Err(err).Str("distance", string(r)).Msg("Distance filter reverted")
	return err
}

// Pending reports whether a distance selection is waiting for the device position
func (o *Orchestrator) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending > 0
}

// SetSearch replaces the search text
func (o *Orchestrator) SetSearch(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Search = s
}

// SetState applies a whole filter state, as when navigating to a URL
func (o *Orchestrator) SetState(ctx context.Context, s FilterState) error {
	o.SetSearch(s.Search)
	return o.SelectDistance(ctx, s.normalized().Distance)
}

// SetURL applies the filter state found in a URL. An unknown distance is
// read as all.
func (o *Orchestrator) SetURL(ctx context.Context, raw string) error {
	s, err := FilterStateFromURL(raw)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Ignoring invalid filter parameters")
	}
	return o.SetState(ctx, s)
}

// State returns the current filter state
func (o *Orchestrator) State() FilterState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// URL returns the query string that reproduces the current state
func (o *Orchestrator) URL() string {
	encoded := o.State().Encode()
	if encoded == "" {
		return "?"
	}
	return "?" + encoded
}

// View applies the current state to the loaded collection
func (o *Orchestrator) View() View {
	o.mu.Lock()
	st := o.state
	vs := o.vehicles
	view := View{
		State:     st,
		Total:     len(vs),
		FromCache: o.fromCache,
		Err:       o.loadErr,
		Stale:     o.loadErr != nil && o.loaded,
	}
	o.mu.Unlock()

	if o.locator != nil {
		if c, ok := o.locator.Known(); ok {
			view.Origin = &c
		}
	}
	view.Items = Apply(vs, st, view.Origin)
	return view
}
