// Package pincode resolves Indian postal PIN codes to a district and state.
package pincode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rentvehical/rent-compass/internal/vehicle"
)

const (
	defaultURL     = "https://api.postalpincode.in"
	defaultTimeout = 10 * time.Second
)

// ErrNotFound is returned when the PIN code has no post office
var ErrNotFound = errors.New("no records found")

// Place is the locality a PIN code belongs to
type Place struct {
	PostOffice string
	District   string
	State      string
}

// Client looks up PIN codes
type Client struct {
	httpClient *http.Client
	url        string
	logger     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithURL sets a custom lookup endpoint
func WithURL(url string) Option {
	return func(c *Client) {
		c.url = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a lookup client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		url:        defaultURL,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type lookupResponse struct {
	Status     string `json:"Status"`
	Message    string `json:"Message"`
	PostOffice []struct {
		Name     string `json:"Name"`
		District string `json:"District"`
		State    string `json:"State"`
	} `json:"PostOffice"`
}

// Lookup returns the locality of the first post office serving pin
func (c *Client) Lookup(ctx context.Context, pin string) (*Place, error) {
	pin = strings.TrimSpace(pin)
	if !vehicle.ValidPinCode(pin) {
		return nil, vehicle.ErrInvalidPinCode
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/pincode/"+pin, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PIN code lookup failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PIN code lookup failed: unexpected status code %d", resp.StatusCode)
	}

	var results []lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to parse PIN code response: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}

	first := results[0]
	if first.Status != "Success" || len(first.PostOffice) == 0 {
		c.logger.Debug().Str("pin", pin).Str("status", first.Status).Str("message", first.Message).Msg("PIN code not resolved")
		return nil, ErrNotFound
	}

	office := first.PostOffice[0]
	return &Place{PostOffice: office.Name, District: office.District, State: office.State}, nil
}
