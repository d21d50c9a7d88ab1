package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rentvehical/rent-compass/internal/distance"
)

const (
	defaultLocationURL = "https://am.i.mullvad.net/json"
	defaultTimeout     = 10 * time.Second
	defaultRetryDelay  = 1 * time.Second
	defaultVersion     = "dev"
)

// IPLocator resolves the device position from an IP geolocation endpoint
type IPLocator struct {
	httpClient *http.Client
	url        string
	maxRetries int
	retryDelay time.Duration
	version    string
	logger     zerolog.Logger
}

// IPOption configures an IPLocator
type IPOption func(*IPLocator)

// WithURL sets a custom geolocation endpoint
func WithURL(url string) IPOption {
	return func(l *IPLocator) {
		l.url = url
	}
}

// WithHTTPTimeout sets the timeout of a single HTTP request
func WithHTTPTimeout(timeout time.Duration) IPOption {
	return func(l *IPLocator) {
		l.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(maxRetries int) IPOption {
	return func(l *IPLocator) {
		l.maxRetries = maxRetries
	}
}

// WithRetryDelay sets the initial delay between retries
func WithRetryDelay(delay time.Duration) IPOption {
	return func(l *IPLocator) {
		l.retryDelay = delay
	}
}

// WithVersion sets the version string for the User-Agent header
func WithVersion(version string) IPOption {
	return func(l *IPLocator) {
		l.version = version
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) IPOption {
	return func(l *IPLocator) {
		l.logger = logger
	}
}

// NewIPLocator creates a locator with the given options. It does not retry
// unless WithMaxRetries is given.
func NewIPLocator(opts ...IPOption) *IPLocator {
	l := &IPLocator{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		url:        defaultLocationURL,
		retryDelay: defaultRetryDelay,
		version:    defaultVersion,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// IPLocation is the response of the geolocation endpoint
type IPLocation struct {
	IP        string  `json:"ip"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
}

// Coordinates returns the position of the lookup
func (l IPLocation) Coordinates() distance.Coordinates {
	return distance.Coordinates{Lat: l.Latitude, Lng: l.Longitude}
}

type attemptError struct {
	kind      Kind
	retriable bool
	err       error
}

func (e *attemptError) Error() string { return e.err.Error() }

func (e *attemptError) Unwrap() error { return e.err }

func isRetriableStatusCode(statusCode int) bool {
	return statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		statusCode >= 500
}

// Locate implements Locator
func (l *IPLocator) Locate(ctx context.Context) (distance.Coordinates, error) {
	loc, err := l.Lookup(ctx)
	if err != nil {
		return distance.Coordinates{}, err
	}
	return loc.Coordinates(), nil
}

// Lookup fetches the full geolocation record
func (l *IPLocator) Lookup(ctx context.Context) (*IPLocation, error) {
	var lastErr *attemptError

	l.logger.Debug().Str("url", l.url).Int("max_retries", l.maxRetries).Msg("Fetching device location")

	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			delay := l.retryDelay * time.Duration(1<<uint(attempt-1))
			l.logger.Warn().Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying location request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, classifyContext(ctx, ctx.Err())
			}
		}

		location, err := l.lookupOnce(ctx)
		if err == nil {
			l.logger.Info().
				Str("city", location.City).
				Str("country", location.Country).
				Float64("lat", location.Latitude).
				Float64("lng", location.Longitude).
				Msg("Resolved device location")
			return location, nil
		}

		lastErr = err
		if !err.retriable || ctx.Err() != nil {
			break
		}
		l.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Retriable location error")
	}

	l.logger.Error().Err(lastErr).Msg("Failed to resolve device location")
	if ctx.Err() != nil {
		return nil, classifyContext(ctx, lastErr)
	}
	return nil, &Error{Kind: lastErr.kind, Err: lastErr.err}
}

func (l *IPLocator) lookupOnce(ctx context.Context) (*IPLocation, *attemptError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, &attemptError{kind: PositionUnavailable, err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", fmt.Sprintf("rent-compass/%s", l.version))
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &attemptError{kind: Timeout, retriable: true, err: fmt.Errorf("location request timed out: %w", err)}
		}
		return nil, &attemptError{kind: PositionUnavailable, retriable: true, err: fmt.Errorf("failed to fetch location: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	l.logger.Debug().Int("status", resp.StatusCode).Msg("Received location response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &attemptError{kind: PermissionDenied, err: fmt.Errorf("location lookup refused with status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &attemptError{
			kind:      PositionUnavailable,
			retriable: isRetriableStatusCode(resp.StatusCode),
			err:       fmt.Errorf("unexpected status code %d", resp.StatusCode),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil, &attemptError{
			kind: PositionUnavailable,
			err:  fmt.Errorf("unexpected content-type: %s (expected application/json)", contentType),
		}
	}

	var location IPLocation
	if err := json.NewDecoder(resp.Body).Decode(&location); err != nil {
		return nil, &attemptError{kind: PositionUnavailable, err: fmt.Errorf("failed to parse location response: %w", err)}
	}
	if !location.Coordinates().Valid() {
		return nil, &attemptError{kind: PositionUnavailable, err: errors.New("location response has out of range coordinates")}
	}

	return &location, nil
}

// classifyContext maps a finished context to a geolocation error. A
// cancellation is returned as is so callers can tell it from a failure.
func classifyContext(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Err: cause}
	}
	return ctx.Err()
}
