// Package main provides the command-line interface for rent-compass.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/rentvehical/rent-compass/internal/geo"
)

var Version = "dev"

// Dependencies encapsulates external dependencies for testing
type Dependencies struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// LookupEnv reads the process environment
	LookupEnv func(string) (string, bool)
	// DotEnvPath is the .env file consulted after the environment
	DotEnvPath string
	// Interactive reports whether a person can answer prompts on Stdin
	Interactive bool
	// Locator replaces the IP geolocation lookup when set
	Locator geo.Locator
}

// DefaultDependencies returns production dependencies
func DefaultDependencies() Dependencies {
	return Dependencies{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		LookupEnv:   os.LookupEnv,
		DotEnvPath:  ".env",
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

func main() {
	// Create a context that can be cancelled with SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := run(ctx, os.Args[1:], DefaultDependencies()); err != nil {
		// Don't print error if user cancelled with Ctrl-C
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintln(os.Stderr, "Operation cancelled")
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
	cancel()
}

func run(ctx context.Context, args []string, deps Dependencies) error {
	a := &app{deps: deps}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(deps.Stdin)
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	return root.ExecuteContext(ctx)
}
