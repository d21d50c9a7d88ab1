// Package geo acquires the device position used to rank listings by proximity.
package geo

import (
	"context"
	"errors"

	"github.com/rentvehical/rent-compass/internal/distance"
)

// Kind classifies a geolocation failure
type Kind int

// Geolocation failure kinds
const (
	Unknown Kind = iota
	PermissionDenied
	PositionUnavailable
	Timeout
)

// Message returns the user-facing text for the kind
func (k Kind) Message() string {
	switch k {
	case PermissionDenied:
		return "Location access denied. Please enable location services."
	case PositionUnavailable:
		return "Location information is unavailable."
	case Timeout:
		return "Location request timed out."
	default:
		return "An unknown error occurred while getting location."
	}
}

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified geolocation failure
type Error struct {
	Kind Kind
	Err  error
}

// Sentinels for errors.Is checks against a kind
var (
	ErrPermissionDenied    = &Error{Kind: PermissionDenied}
	ErrPositionUnavailable = &Error{Kind: PositionUnavailable}
	ErrTimeout             = &Error{Kind: Timeout}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Message() + " (" + e.Err.Error() + ")"
	}
	return e.Kind.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind that carries no cause
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Message returns the user-facing text without the underlying cause
func (e *Error) Message() string {
	return e.Kind.Message()
}

// KindOf reports the kind of err, or Unknown when err is not a geolocation error
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return Unknown
}

// Locator produces the current device position
type Locator interface {
	Locate(ctx context.Context) (distance.Coordinates, error)
}

// LocatorFunc adapts a function to the Locator interface
type LocatorFunc func(ctx context.Context) (distance.Coordinates, error)

func (f LocatorFunc) Locate(ctx context.Context) (distance.Coordinates, error) {
	return f(ctx)
}

// StaticLocator always reports the configured coordinates
type StaticLocator struct {
	Coordinates distance.Coordinates
}

func (s StaticLocator) Locate(context.Context) (distance.Coordinates, error) {
	if !s.Coordinates.Valid() {
		return distance.Coordinates{}, &Error{Kind: PositionUnavailable, Err: errors.New("configured coordinates are out of range")}
	}
	return s.Coordinates, nil
}
