package listing

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rentvehical/rent-compass/internal/geo"
)

// Renderer prints a view
type Renderer func(w io.Writer, v View)

const replHelp = `Commands:
  search <text>     filter by title, description or owner (no text clears)
  distance <r>      radius filter: all, 10km, 50km, 100km
  url [query]       print the current filter URL, or apply one
  refresh           reload listings from the server
  clear             reset all filters
  help              show this help
  quit              leave
`

// RunREPL drives the orchestrator from line commands read from in. The view
// is rendered to out after every command that changes it; notifications go
// to errOut.
func RunREPL(ctx context.Context, o *Orchestrator, render Renderer, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	render(out, o.View())

	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch strings.ToLower(cmd) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			_, _ = fmt.Fprint(out, replHelp)
			continue
		case "search", "s":
			o.SetSearch(arg)
		case "distance", "d":
			r, perr := ParseRadius(arg)
			if perr != nil {
				_, _ = fmt.Fprintln(errOut, perr)
				continue
			}
			err = o.SelectDistance(ctx, r)
		case "url":
			if arg == "" {
				_, _ = fmt.Fprintln(out, o.URL())
				continue
			}
			err = o.SetURL(ctx, arg)
		case "refresh", "r":
			err = o.Refresh(ctx)
		case "clear":
			err = o.SetState(ctx, FilterState{Distance: RadiusAll})
		default:
			_, _ = fmt.Fprintf(errOut, "Unknown command %q, type help for a list\n", cmd)
			continue
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			notify(errOut, err)
		}
		render(out, o.View())
	}
}

// PendingNotice returns a hook for WithPendingHook that tells the user a
// location lookup is in progress
func PendingNotice(w io.Writer) func(Radius) {
	return func(r Radius) {
		_, _ = fmt.Fprintf(w, "Getting your location for the %s filter...\n", r)
	}
}

func notify(w io.Writer, err error) {
	var gerr *geo.Error
	if errors.As(err, &gerr) {
		_, _ = fmt.Fprintln(w, gerr.Message())
		return
	}
	if errors.Is(err, ErrSuperseded) {
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v (type refresh to retry)\n", err)
}
