// Package api is the client of the vehicle marketplace REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultBaseURL    = "http://localhost:8080"
	defaultTimeout    = 10 * time.Second
	defaultRetryDelay = 1 * time.Second
	defaultVersion    = "dev"
	maxResponseBytes  = 10 << 20

	// TokenCookie is the cookie carrying the bearer credential
	TokenCookie = "token"
)

// Client encapsulates the HTTP client for interacting with the marketplace API
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	version    string
	logger     zerolog.Logger
	token      string
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithBaseURL sets the API root, e.g. https://api.example.com
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets a custom timeout for HTTP requests
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of retry attempts. Only GET
// requests are retried.
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryDelay sets the initial delay between retries
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = delay
	}
}

// WithVersion sets the version string for the User-Agent header
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// attached when the client has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken sets the initial bearer credential
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new API client with the given options
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:    defaultBaseURL,
		retryDelay: defaultRetryDelay,
		version:    defaultVersion,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient.Jar == nil {
		// cookiejar.New never returns an error
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		client.httpClient.Jar = jar
	}
	if client.token != "" {
		client.SetToken(client.token)
		client.token = ""
	}

	return client
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken stores the bearer credential as the token cookie of the API host
func (c *Client) SetToken(token string) {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cannot store token for invalid base URL")
		return
	}
	cookie := &http.Cookie{Name: TokenCookie, Value: token, Path: "/"}
	if token == "" {
		cookie.MaxAge = -1
	}
	c.httpClient.Jar.SetCookies(u, []*http.Cookie{cookie})
}

// ClearToken forgets the bearer credential
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the bearer credential, or "" when none is set
func (c *Client) Token() string {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == TokenCookie {
			return cookie.Value
		}
	}
	return ""
}

// envelope is the common response shape of the backend. Which fields are
// populated depends on the endpoint.
type envelope struct {
	Success      *bool           `json:"success"`
	Data         json.RawMessage `json:"data"`
	Error        string          `json:"error"`
	Message      string          `json:"message"`
	VehicleData  json.RawMessage `json:"vehicleData"`
	RequestCount *int            `json:"request_count"`
	UserDetails  json.RawMessage `json:"userDetails"`
}

// explanation returns whatever text the server gave for a failure
func (e *envelope) explanation() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func (e *envelope) rejected() bool {
	return e.Success != nil && !*e.Success
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	auth        bool
}

// do sends the request and decodes the response envelope. Non-2xx statuses
// become *Error values carrying the server's explanation.
func (c *Client) do(ctx context.Context, r request) (*envelope, error) {
	var token string
	if r.auth {
		token = c.Token()
		if token == "" {
			return nil, &Error{Kind: KindUnauthorized, Err: errors.New("no bearer token available")}
		}
	}

	attempts := 1
	if r.method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr *Error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Warn().
				Str("path", r.path).
				Int("attempt", attempt+1).
				Int("attempts", attempts).
				Dur("delay", delay).
				Msg("Retrying API request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		env, err := c.doOnce(ctx, r, token)
		if err == nil {
			return env, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !err.Retriable {
			break
		}
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Retriable API error")
	}

	c.logger.Error().Err(lastErr).Str("method", r.method).Str("path", r.path).Msg("API request failed")
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, r request, token string) (*envelope, *Error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", fmt.Sprintf("rent-compass/%s", c.version))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.logger.With().Str("request_id", requestID).Str("method", r.method).Str("path", r.path).Logger()
	log.Debug().Msg("Sending API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Retriable: true, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	log.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("Received API response")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Retriable: true, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var env envelope
	isJSON := strings.Contains(resp.Header.Get("Content-Type"), "application/json")
	decodeErr := errors.New("response is not JSON")
	if isJSON {
		decodeErr = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var message string
		if decodeErr == nil {
			message = env.explanation()
		}
		return nil, statusError(resp.StatusCode, message)
	}

	if !isJSON {
		return nil, &Error{
			Kind:       KindDecode,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected content-type: %s (expected application/json)", resp.Header.Get("Content-Type")),
		}
	}
	if decodeErr != nil {
		return nil, &Error{Kind: KindDecode, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse API response: %w", decodeErr)}
	}

	return &env, nil
}

// decodeField decodes one envelope field into dst. A missing or null field
// is a decode error unless allowNull is set.
func decodeField(name string, raw json.RawMessage, dst any, allowNull bool) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if allowNull {
			return nil
		}
		return &Error{Kind: KindDecode, Err: fmt.Errorf("response has no %s", name)}
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return &Error{Kind: KindDecode, Err: fmt.Errorf("failed to parse %s: %w", name, err)}
	}
	return nil
}

func rejectedError(env *envelope, fallback string) *Error {
	message := env.explanation()
	if message == "" {
		message = fallback
	}
	return &Error{Kind: KindRejected, Message: message, Err: errors.New("request rejected by server")}
}
