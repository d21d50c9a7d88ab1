// Package cache provides a persistent key-value cache whose entries expire
// after a fixed age. The cache is an optimization only: every read failure
// is reported as a miss.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is how long an entry is served after it was written
const DefaultTTL = 10 * time.Minute

// Well-known keys
const (
	CollectionKey      = "vehicles_cache"
	DetailKeyPrefix    = "vehicle_details_cache_"
	DeviceLocationKey  = "device_location"
	SessionUserKey     = "user"
	SessionTokenKey    = "token"
	defaultCacheFolder = "rent-compass"
	defaultCacheFile   = "cache.db"
)

// DetailKey returns the key of a single listing's detail entry
func DetailKey(id string) string {
	return DetailKeyPrefix + id
}

// DefaultPath returns the platform-specific location of the cache database
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user cache directory: %w", err)
	}
	return filepath.Join(dir, defaultCacheFolder, defaultCacheFile), nil
}

// Envelope is the stored form of every entry
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// Store applies time-based expiry on top of a Backend
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock sets the time source used for timestamps and expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report swallowed backend errors
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store over backend. A nil backend yields a store on which
// every read misses and every write fails with ErrUnavailable.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend exposes the underlying storage
func (s *Store) Backend() Backend {
	return s.backend
}

// TTL returns the configured entry lifetime
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get decodes the entry for key into dst. It returns false when the entry
// is absent, expired or malformed; expired and malformed entries are deleted.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	return s.GetWithin(ctx, key, dst, s.ttl)
}

// GetWithin is Get with an explicit maximum age
func (s *Store) GetWithin(ctx context.Context, key string, dst any, maxAge time.Duration) bool {
	if s.backend == nil {
		return false
	}

	raw, ok, err := s.backend.Read(ctx, key)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		return false
	}
	if !ok {
		return false
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || isEmptyPayload(env.Data) {
		s.logger.Debug().Err(err).Str("key", key).Msg("Malformed cache entry, removing")
		s.remove(ctx, key)
		return false
	}

	age := s.now().Sub(time.UnixMilli(env.Timestamp))
	if age > maxAge {
		s.logger.Debug().Str("key", key).Dur("age", age).Msg("Cache entry expired, removing")
		s.remove(ctx, key)
		return false
	}

	if err := json.Unmarshal(env.Data, dst); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Cache payload does not match, removing")
		s.remove(ctx, key)
		return false
	}

	s.logger.Debug().Str("key", key).Dur("age", age).Msg("Cache hit")
	return true
}

// Set stores payload under key with the current timestamp. A payload that
// encodes to JSON null is refused with ErrNilPayload: it could not be read back.
func (s *Store) Set(ctx context.Context, key string, payload any) error {
	if s.backend == nil {
		return ErrUnavailable
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload for %s: %w", key, err)
	}
	if isEmptyPayload(data) {
		return fmt.Errorf("cache payload for %s: %w", key, ErrNilPayload)
	}
	raw, err := json.Marshal(Envelope{Data: data, Timestamp: s.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to encode cache envelope for %s: %w", key, err)
	}
	return s.backend.Write(ctx, key, raw)
}

// Delete removes the given keys, ignoring keys that do not exist
func (s *Store) Delete(ctx context.Context, keys ...string) {
	for _, key := range keys {
		s.remove(ctx, key)
	}
}

// Clear removes every entry
func (s *Store) Clear(ctx context.Context) error {
	if s.backend == nil {
		return ErrUnavailable
	}
	return s.backend.Clear(ctx)
}

func (s *Store) remove(ctx context.Context, key string) {
	if s.backend == nil {
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete cache entry")
	}
}

func isEmptyPayload(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
