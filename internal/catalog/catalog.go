// Package catalog serves listings cache-first and keeps the cache
// consistent with mutations made through the API.
package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rentvehical/rent-compass/internal/api"
	"github.com/rentvehical/rent-compass/internal/cache"
	"github.com/rentvehical/rent-compass/internal/vehicle"
)

const defaultPrefetchLimit = 4

// Source tells where a result came from
type Source string

// Result sources
const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// Backend is the subset of the API client the catalog needs
type Backend interface {
	ListVehicles(ctx context.Context) ([]vehicle.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (*vehicle.Vehicle, error)
	ListUserVehicles(ctx context.Context, userID string) ([]vehicle.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
	TogglePublish(ctx context.Context, id string) error
	CreateVehicle(ctx context.Context, draft vehicle.Draft) (*vehicle.Vehicle, error)
	RevealContact(ctx context.Context, id string) (string, error)
	RequestCount(ctx context.Context) (int, error)
}

var _ Backend = (*api.Client)(nil)

// Catalog is a cache-aware listing repository
type Catalog struct {
	backend       Backend
	store         *cache.Store
	logger        zerolog.Logger
	prefetchLimit int
}

// Option configures a Catalog
type Option func(*Catalog)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithPrefetchLimit bounds concurrent detail requests in PrefetchDetails
func WithPrefetchLimit(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.prefetchLimit = n
		}
	}
}

// New creates a catalog over backend and store
func New(backend Backend, store *cache.Store, opts ...Option) *Catalog {
	c := &Catalog{
		backend:       backend,
		store:         store,
		logger:        zerolog.Nop(),
		prefetchLimit: defaultPrefetchLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Vehicles returns the listing collection, from cache when fresh. An empty
// cached collection is not trusted.
func (c *Catalog) Vehicles(ctx context.Context) ([]vehicle.Vehicle, Source, error) {
	var cached []vehicle.Vehicle
	if c.store.Get(ctx, cache.CollectionKey, &cached) && len(cached) > 0 {
		c.logger.Debug().Int("count", len(cached)).Msg("Serving vehicles from cache")
		return cached, SourceCache, nil
	}
	vs, err := c.RefreshVehicles(ctx)
	return vs, SourceNetwork, err
}

// RefreshVehicles fetches the collection from the network and caches it
func (c *Catalog) RefreshVehicles(ctx context.Context) ([]vehicle.Vehicle, error) {
	vs, err := c.backend.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	c.put(ctx, cache.CollectionKey, vs)
	return vs, nil
}

// Vehicle returns a single listing, from cache when fresh
func (c *Catalog) Vehicle(ctx context.Context, id string) (*vehicle.Vehicle, Source, error) {
	var cached vehicle.Vehicle
	if c.store.Get(ctx, cache.DetailKey(id), &cached) {
		return &cached, SourceCache, nil
	}
	v, err := c.backend.GetVehicle(ctx, id)
	if err != nil {
		return nil, SourceNetwork, err
	}
	c.put(ctx, cache.DetailKey(id), v)
	return v, SourceNetwork, nil
}

// Delete removes a listing and invalidates every cache entry showing it
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.backend.DeleteVehicle(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// TogglePublish flips publication and invalidates every cache entry showing the listing
func (c *Catalog) TogglePublish(ctx context.Context, id string) error {
	if err := c.backend.TogglePublish(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Create submits a listing and invalidates the collection
func (c *Catalog) Create(ctx context.Context, draft vehicle.Draft) (*vehicle.Vehicle, error) {
	v, err := c.backend.CreateVehicle(ctx, draft)
	if err != nil {
		return nil, err
	}
	c.store.Delete(ctx, cache.CollectionKey)
	return v, nil
}

// MyVehicles lists every listing owned by userID; never cached
func (c *Catalog) MyVehicles(ctx context.Context, userID string) ([]vehicle.Vehicle, error) {
	return c.backend.ListUserVehicles(ctx, userID)
}

// RevealContact returns a listing's contact, spending quota
func (c *Catalog) RevealContact(ctx context.Context, id string) (string, error) {
	return c.backend.RevealContact(ctx, id)
}

// RequestCount returns the remaining contact quota
func (c *Catalog) RequestCount(ctx context.Context) (int, error) {
	return c.backend.RequestCount(ctx)
}

// PrefetchDetails warms the detail cache for ids that are not cached yet.
// It returns the number of entries fetched.
func (c *Catalog) PrefetchDetails(ctx context.Context, ids []string) (int, error) {
	var missing []string
	for _, id := range ids {
		var v vehicle.Vehicle
		if !c.store.Get(ctx, cache.DetailKey(id), &v) {
			missing = append(missing, id)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.prefetchLimit)
	fetched := make([]bool, len(missing))
	for i, id := range missing {
		g.Go(func() error {
			v, err := c.backend.GetVehicle(gctx, id)
			if err != nil {
				return err
			}
			c.put(gctx, cache.DetailKey(id), v)
			fetched[i] = true
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, ok := range fetched {
		if ok {
			n++
		}
	}
	c.logger.Debug().Int("requested", len(ids)).Int("fetched", n).Msg("Prefetched vehicle details")
	return n, err
}

func (c *Catalog) invalidate(ctx context.Context, id string) {
	c.store.Delete(ctx, cache.CollectionKey, cache.DetailKey(id))
	c.logger.Debug().Str("vehicle_id", id).Msg("Invalidated cached vehicle")
}

func (c *Catalog) put(ctx context.Context, key string, payload any) {
	start := time.Now()
	if err := c.store.Set(ctx, key, payload); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Failed to cache response")
		return
	}
	c.logger.Debug().Str("key", key).Dur("elapsed", time.Since(start)).Msg("Cached response")
}
