package geo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/rentvehical/rent-compass/internal/distance"
)

// Policy decides whether the device position may be looked up
type Policy string

// Consent policies
const (
	PolicyAllow Policy = "allow"
	PolicyDeny  Policy = "deny"
	PolicyAsk   Policy = "ask"
)

// ParsePolicy converts a string to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyAllow:
		return PolicyAllow, nil
	case PolicyDeny:
		return PolicyDeny, nil
	case PolicyAsk:
		return PolicyAsk, nil
	default:
		return "", fmt.Errorf("invalid geolocation policy: %s (valid options: allow, deny, ask)", s)
	}
}

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// ConsentLocator asks for permission before delegating to another Locator.
// The answer is remembered for the lifetime of the locator.
type ConsentLocator struct {
	next        Locator
	policy      Policy
	in          io.Reader
	out         io.Writer
	interactive bool

	mu      sync.Mutex
	decided bool
	granted bool
}

// ConsentOption configures a ConsentLocator
type ConsentOption func(*ConsentLocator)

// WithPrompt sets where the permission question is asked. interactive
// reports whether a person can answer it.
func WithPrompt(in io.Reader, out io.Writer, interactive bool) ConsentOption {
	return func(c *ConsentLocator) {
		c.in = in
		c.out = out
		c.interactive = interactive
	}
}

// NewConsentLocator wraps next with the given policy. By default the prompt
// reads stdin and writes stderr, and is only shown on a terminal.
func NewConsentLocator(next Locator, policy Policy, opts ...ConsentOption) *ConsentLocator {
	c := &ConsentLocator{
		next:        next,
		policy:      policy,
		in:          os.Stdin,
		out:         os.Stderr,
		interactive: isTerminal(int(os.Stdin.Fd())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locate implements Locator
func (c *ConsentLocator) Locate(ctx context.Context) (distance.Coordinates, error) {
	granted, err := c.permission()
	if err != nil {
		return distance.Coordinates{}, err
	}
	if !granted {
		return distance.Coordinates{}, &Error{Kind: PermissionDenied, Err: errors.New("location permission not granted")}
	}
	return c.next.Locate(ctx)
}

// Allowed reports whether the location may be used, asking first when the
// policy requires it and no answer was given yet
func (c *ConsentLocator) Allowed() (bool, error) {
	return c.permission()
}

func (c *ConsentLocator) permission() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.decided {
		return c.granted, nil
	}

	switch c.policy {
	case PolicyAllow:
		c.granted = true
	case PolicyAsk:
		if c.interactive {
			answer, err := ask(c.in, c.out)
			if err != nil {
				return false, &Error{Kind: Unknown, Err: fmt.Errorf("failed to read permission answer: %w", err)}
			}
			c.granted = answer
		}
	}
	c.decided = true
	return c.granted, nil
}

func ask(in io.Reader, out io.Writer) (bool, error) {
	if _, err := fmt.Fprint(out, "Allow rent-compass to use your approximate location? [y/N]: "); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
