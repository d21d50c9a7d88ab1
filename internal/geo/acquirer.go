package geo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rentvehical/rent-compass/internal/cache"
	"github.com/rentvehical/rent-compass/internal/distance"
)

// Acquisition defaults
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaximumAge = 10 * time.Minute
)

// Acquirer obtains the device position at most once per lifetime. A fix
// persisted within the maximum age is reused without asking the locator.
type Acquirer struct {
	locator Locator
	store   *cache.Store
	timeout time.Duration
	maxAge  time.Duration
	logger  zerolog.Logger

	group singleflight.Group

	mu  sync.Mutex
	fix *distance.Coordinates
}

// AcquirerOption configures an Acquirer
type AcquirerOption func(*Acquirer)

// WithTimeout bounds a single acquisition
func WithTimeout(timeout time.Duration) AcquirerOption {
	return func(a *Acquirer) {
		a.timeout = timeout
	}
}

// WithMaximumAge sets how old a persisted fix may be
func WithMaximumAge(maxAge time.Duration) AcquirerOption {
	return func(a *Acquirer) {
		a.maxAge = maxAge
	}
}

// WithStore persists fixes under cache.DeviceLocationKey
func WithStore(store *cache.Store) AcquirerOption {
	return func(a *Acquirer) {
		a.store = store
	}
}

// WithAcquirerLogger sets the logger
func WithAcquirerLogger(logger zerolog.Logger) AcquirerOption {
	return func(a *Acquirer) {
		a.logger = logger
	}
}

// NewAcquirer wraps locator with the default timeout and maximum age
func NewAcquirer(locator Locator, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		locator: locator,
		timeout: DefaultTimeout,
		maxAge:  DefaultMaximumAge,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Known returns the memoized fix without acquiring one
func (a *Acquirer) Known() (distance.Coordinates, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fix == nil {
		return distance.Coordinates{}, false
	}
	return *a.fix, true
}

// Acquire returns the device position. Concurrent calls share one lookup.
// Failures are not memoized; a later call tries again.
func (a *Acquirer) Acquire(ctx context.Context) (distance.Coordinates, error) {
	if c, ok := a.Known(); ok {
		return c, nil
	}

	v, err, shared := a.group.Do("acquire", func() (any, error) {
		if c, ok := a.Known(); ok {
			return c, nil
		}

		if a.store != nil {
			var persisted distance.Coordinates
			if a.store.GetWithin(ctx, cache.DeviceLocationKey, &persisted, a.maxAge) && persisted.Valid() {
				a.logger.Debug().Stringer("coords", persisted).Msg("Reusing persisted device location")
				a.remember(persisted)
				return persisted, nil
			}
		}

		lctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		c, err := a.locator.Locate(lctx)
		if err != nil {
			return nil, a.classify(ctx, lctx, err)
		}

		a.remember(c)
		if a.store != nil {
			if err := a.store.Set(ctx, cache.DeviceLocationKey, c); err != nil {
				a.logger.Debug().Err(err).Msg("Failed to persist device location")
			}
		}
		return c, nil
	})
	if err != nil {
		a.logger.Warn().Err(err).Bool("shared", shared).Msg("Geolocation failed")
		return distance.Coordinates{}, err
	}
	return v.(distance.Coordinates), nil
}

func (a *Acquirer) remember(c distance.Coordinates) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fix = &c
}

func (a *Acquirer) classify(parent, lctx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(lctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Err: err}
	}
	return &Error{Kind: Unknown, Err: err}
}
