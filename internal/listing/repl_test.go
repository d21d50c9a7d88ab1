package listing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentvehical/rent-compass/internal/distance"
	"github.com/rentvehical/rent-compass/internal/geo"
)

func idRenderer(w io.Writer, v View) {
	_, _ = fmt.Fprintf(w, "[%s] %s\n", v.State.Distance, strings.Join(ids(v.Items), ","))
}

func TestRunREPL(t *testing.T) {
	acq, calls := countingAcquirer(origin, nil)
	o := NewOrchestrator(&fakeCollection{vehicles: fixture()}, acq)
	ctx := context.Background()
	require.NoError(t, o.Load(ctx))

	input := strings.Join([]string{
		"distance 50km",
		"distance 50km",
		"search km1",
		"url",
		"distance 7km",
		"bogus",
		"",
		"clear",
		"quit",
		"search never-reached",
	}, "\n")

	var out, errOut bytes.Buffer
	err := RunREPL(ctx, o, idRenderer, strings.NewReader(input), &out, &errOut)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "[50km] km5,km15\n")
	assert.Contains(t, out.String(), "[50km] km15\n")
	assert.Contains(t, out.String(), "?distance=50km&search=km1\n")
	assert.Contains(t, out.String(), "[all] km5,km15,km60,km150,nowhere-1,nowhere-2\n")
	assert.NotContains(t, out.String(), "never-reached")
	assert.Contains(t, errOut.String(), "invalid distance: 7km")
	assert.Contains(t, errOut.String(), `Unknown command "bogus"`)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, FilterState{Distance: RadiusAll}, o.State())
}

func TestRunREPL_GeolocationNotification(t *testing.T) {
	acq, _ := countingAcquirer(distance.Coordinates{}, &geo.Error{Kind: geo.Timeout})
	o := NewOrchestrator(&fakeCollection{vehicles: fixture()}, acq)

	var out, errOut bytes.Buffer
	err := RunREPL(context.Background(), o, idRenderer, strings.NewReader("distance 10km\n"), &out, &errOut)
	require.NoError(t, err)

	assert.Equal(t, "Location request timed out.\n", errOut.String())
	assert.Equal(t, RadiusAll, o.State().Distance)
}

func TestRunREPL_PendingLocationNotice(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	locator := geo.LocatorFunc(func(ctx context.Context) (distance.Coordinates, error) {
		close(entered)
		select {
		case <-gate:
			return origin, nil
		case <-ctx.Done():
			return distance.Coordinates{}, ctx.Err()
		}
	})

	var out, errOut bytes.Buffer
	o := NewOrchestrator(&fakeCollection{vehicles: fixture()}, geo.NewAcquirer(locator),
		WithPendingHook(PendingNotice(&errOut)))
	require.NoError(t, o.Load(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- RunREPL(context.Background(), o, idRenderer, strings.NewReader("distance 10km\nquit\n"), &out, &errOut)
	}()

	<-entered
	assert.True(t, o.Pending())
	assert.Equal(t, "Getting your location for the 10km filter...\n", errOut.String())

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, o.Pending())
	assert.Contains(t, out.String(), "[10km] km5\n")
}

func TestRunREPL_LoadErrorHint(t *testing.T) {
	coll := &fakeCollection{err: fmt.Errorf("connection refused")}
	o := NewOrchestrator(coll, nil)

	var out, errOut bytes.Buffer
	require.NoError(t, RunREPL(context.Background(), o, idRenderer, strings.NewReader("refresh\nhelp\n"), &out, &errOut))

	assert.Contains(t, errOut.String(), "Error: connection refused (type refresh to retry)")
	assert.Contains(t, out.String(), "radius filter: all, 10km, 50km, 100km")
}
