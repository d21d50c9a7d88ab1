// Package session resolves who the user is from a bearer credential.
// Without a confirmed credential the user is a guest.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/rentvehical/rent-compass/internal/api"
	"github.com/rentvehical/rent-compass/internal/cache"
	"github.com/rentvehical/rent-compass/internal/state"
)

// Session errors
var (
	ErrNoToken      = errors.New("no token")
	ErrTokenExpired = errors.New("token expired")
)

// Authenticator confirms bearer credentials with the backend
type Authenticator interface {
	CheckUser(ctx context.Context) (*api.User, error)
	SetToken(token string)
	ClearToken()
}

// Identity is the outcome of resolving a session
type Identity struct {
	User  api.User
	Token string
	// Reason explains why the identity is a guest; nil when confirmed
	Reason error
}

// Guest reports whether the identity is unconfirmed
func (i Identity) Guest() bool {
	return i.User.IsGuest()
}

// TokenFromCookieHeader extracts the token cookie from a Cookie header value
func TokenFromCookieHeader(header string) string {
	for _, part := range strings.Split(header, ";") {
		cookies, err := http.ParseCookie(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == api.TokenCookie {
				return c.Value
			}
		}
	}
	return ""
}

// Resolver turns a credential into an identity and keeps the local mirrors
// of the user and token in step
type Resolver struct {
	auth    Authenticator
	mirrors cache.Backend
	state   *state.Store
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithClock sets the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver. mirrors may be nil, in which case nothing
// is remembered between runs.
func NewResolver(auth Authenticator, mirrors cache.Backend, st *state.Store, opts ...Option) *Resolver {
	r := &Resolver{
		auth:    auth,
		mirrors: mirrors,
		state:   st,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve confirms token with the backend. An empty token falls back to the
// mirrored one. Every failure yields a guest identity; only a cancelled
// context is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		token = r.MirroredToken(ctx)
	}
	if token == "" {
		return r.guest(ErrNoToken), nil
	}

	if r.expired(token) {
		r.logger.Info().Msg("Stored token has expired, continuing as guest")
		r.forget(ctx)
		return r.guest(ErrTokenExpired), nil
	}

	r.auth.SetToken(token)
	user, err := r.auth.CheckUser(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Identity{}, ctx.Err()
		}
		r.logger.Warn().Err(err).Msg("Could not confirm identity, continuing as guest")
		r.auth.ClearToken()
		if errors.Is(err, api.ErrUnauthorized) {
			r.forget(ctx)
		}
		return r.guest(err), nil
	}

	r.state.SetUser(*user)
	r.remember(ctx, *user, token)
	r.logger.Debug().Str("user_id", user.ID).Msg("Identity confirmed")
	return Identity{User: *user, Token: token}, nil
}

// Login confirms token and stores it for later runs
func (r *Resolver) Login(ctx context.Context, token string) (api.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return api.User{}, ErrNoToken
	}
	if r.expired(token) {
		return api.User{}, ErrTokenExpired
	}

	r.auth.SetToken(token)
	user, err := r.auth.CheckUser(ctx)
	if err != nil {
		r.auth.ClearToken()
		return api.User{}, fmt.Errorf("login failed: %w", err)
	}

	r.state.SetUser(*user)
	r.remember(ctx, *user, token)
	return *user, nil
}

// Logout forgets the credential and resets the application state
func (r *Resolver) Logout(ctx context.Context) {
	r.auth.ClearToken()
	r.forget(ctx)
	r.state.Reset()
}

// MirroredToken returns the token remembered from an earlier run
func (r *Resolver) MirroredToken(ctx context.Context) string {
	if r.mirrors == nil {
		return ""
	}
	raw, ok, err := r.mirrors.Read(ctx, cache.SessionTokenKey)
	if err != nil || !ok {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// MirroredUser returns the last identity confirmed on this machine. It is
// informational only and never makes the user authenticated.
func (r *Resolver) MirroredUser(ctx context.Context) (api.User, bool) {
	if r.mirrors == nil {
		return api.User{}, false
	}
	raw, ok, err := r.mirrors.Read(ctx, cache.SessionUserKey)
	if err != nil || !ok {
		return api.User{}, false
	}
	var u api.User
	if err := json.Unmarshal(raw, &u); err != nil || u.IsGuest() {
		return api.User{}, false
	}
	return u, true
}

func (r *Resolver) guest(reason error) Identity {
	r.state.SetUser(api.User{})
	return Identity{Reason: reason}
}

// expired reads the exp claim without verifying the signature. Tokens that
// are not JWTs, or carry no exp, are left to the backend to judge.
func (r *Resolver) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !r.now().Before(exp.Time)
}

func (r *Resolver) remember(ctx context.Context, user api.User, token string) {
	if r.mirrors == nil {
		return
	}
	raw, err := json.Marshal(user)
	if err == nil {
		err = r.mirrors.Write(ctx, cache.SessionUserKey, raw)
	}
	if err == nil {
		err = r.mirrors.Write(ctx, cache.SessionTokenKey, []byte(token))
	}
	if err != nil {
		r.logger.Debug().Err(err).Msg("Failed to mirror session")
	}
}

func (r *Resolver) forget(ctx context.Context) {
	if r.mirrors == nil {
		return
	}
	for _, key := range []string{cache.SessionUserKey, cache.SessionTokenKey} {
		if err := r.mirrors.Delete(ctx, key); err != nil {
			r.logger.Debug().Err(err).Str("key", key).Msg("Failed to remove session mirror")
		}
	}
}
