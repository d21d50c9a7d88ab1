package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rentvehical/rent-compass/internal/api"
	"github.com/rentvehical/rent-compass/internal/distance"
	"github.com/rentvehical/rent-compass/internal/geo"
	"github.com/rentvehical/rent-compass/internal/mockapi"
	"github.com/rentvehical/rent-compass/internal/vehicle"
)

const (
	jaipurLat = "26.9124"
	jaipurLng = "75.7873"
)

type harness struct {
	t        *testing.T
	mock     *mockapi.Server
	url      string
	demo     mockapi.Demo
	cacheDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := mockapi.New()
	demo, err := mockapi.Seed(s)
	if err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return &harness{t: t, mock: s, url: ts.URL, demo: demo, cacheDir: t.TempDir()}
}

func (h *harness) token(u mockapi.User) string {
	h.t.Helper()
	token, err := h.mock.IssueToken(u.ID, time.Hour)
	if err != nil {
		h.t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

func (h *harness) deps(stdout, stderr *bytes.Buffer) Dependencies {
	return Dependencies{
		Stdin:     strings.NewReader(""),
		Stdout:    stdout,
		Stderr:    stderr,
		LookupEnv: func(string) (string, bool) { return "", false },
	}
}

func (h *harness) runWith(ctx context.Context, deps Dependencies, args ...string) error {
	full := append(args, "--api-url="+h.url, "--cache-dir="+h.cacheDir)
	return run(ctx, full, deps)
}

func (h *harness) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := h.runWith(context.Background(), h.deps(&stdout, &stderr), args...)
	return stdout.String(), stderr.String(), err
}

func (h *harness) vehicleID(title string) string {
	h.t.Helper()
	for _, v := range h.mock.Vehicles() {
		if v.Title == title {
			return v.ID
		}
	}
	h.t.Fatalf("No vehicle titled %q", title)
	return ""
}

func TestE2E_Browse(t *testing.T) {
	t.Run("Sorted by distance from a fixed location", func(t *testing.T) {
		h := newHarness(t)
		out, _, err := h.run("browse", "--lat="+jaipurLat, "--lng="+jaipurLng)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if !strings.Contains(out, "Showing 6 vehicles") {
			t.Errorf("Expected the 6 published vehicles, got:\n%s", out)
		}
		lines := strings.Split(out, "\n")
		var rows []string
		for _, line := range lines {
			if strings.Contains(line, "Ramesh Kumar") {
				rows = append(rows, line)
			}
		}
		if len(rows) != 6 {
			t.Fatalf("Expected 6 rows, got %d:\n%s", len(rows), out)
		}
		if !strings.Contains(rows[0], "Mahindra Bolero Pickup") || !strings.Contains(rows[0], "0m away") {
			t.Errorf("Expected the Bolero at 0m first, got %q", rows[0])
		}
		if !strings.Contains(rows[5], "Force Tempo Traveller") {
			t.Errorf("Expected the listing without location last, got %q", rows[5])
		}
		if strings.Contains(out, "John Deere 5050D") {
			t.Error("Drafts should not be listed")
		}
		if strings.Contains(out, "Filter:") {
			t.Error("Default filter should not be printed")
		}
	})

	t.Run("Radius filter", func(t *testing.T) {
		h := newHarness(t)
		out, _, err := h.run("browse", "--distance", "10km", "--lat="+jaipurLat, "--lng="+jaipurLng)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		for _, title := range []string{"Tata Ace Mini Truck", "Eicher 14ft Truck", "Force Tempo Traveller"} {
			if strings.Contains(out, title) {
				t.Errorf("Did not expect %s within 10km", title)
			}
		}
		if !strings.Contains(out, "Swaraj 744 Tractor") {
			t.Error("Expected the tractor within 10km")
		}
		if !strings.Contains(out, "Filter: ?distance=10km") {
			t.Errorf("Expected filter URL, got:\n%s", out)
		}
	})

	t.Run("Denied location falls back to all", func(t *testing.T) {
		h := newHarness(t)
		out, errOut, err := h.run("browse", "--distance", "50km", "--geolocation", "deny")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !strings.Contains(errOut, "Location access denied. Please enable location services.") {
			t.Errorf("Expected denial notice, got stderr:\n%s", errOut)
		}
		if !strings.Contains(out, "Showing 6 vehicles") {
			t.Errorf("Expected the unfiltered listing, got:\n%s", out)
		}
	})

	t.Run("Search from URL", func(t *testing.T) {
		h := newHarness(t)
		out, _, err := h.run("browse", "--url", "https://rent.example.com/vehicles?search=TRUCK", "--geolocation", "deny")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !strings.Contains(out, "Showing 2 vehicles of 6") {
			t.Errorf("Expected two trucks, got:\n%s", out)
		}
		if !strings.Contains(out, "Filter: ?search=TRUCK") {
			t.Errorf("Expected filter URL, got:\n%s", out)
		}
	})

	t.Run("Invalid distance", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run("browse", "--distance", "25km")
		if err == nil {
			t.Error("Expected error for invalid distance, got nil")
		}
	})

	t.Run("Second run is served from cache", func(t *testing.T) {
		h := newHarness(t)
		if _, _, err := h.run("browse"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		out, _, err := h.run("browse")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !strings.Contains(out, "Cached (10 min)") {
			t.Errorf("Expected cached collection, got:\n%s", out)
		}

		out, _, err = h.run("browse", "--refresh")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if strings.Contains(out, "Cached (10 min)") {
			t.Error("Refresh should bypass the cache")
		}
	})

	t.Run("Interactive session", func(t *testing.T) {
		h := newHarness(t)
		var stdout, stderr bytes.Buffer
		deps := h.deps(&stdout, &stderr)
		deps.Stdin = strings.NewReader("search tractor\nurl\nquit\n")

		err := h.runWith(context.Background(), deps, "browse", "-i", "--lat="+jaipurLat, "--lng="+jaipurLng)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		out := stdout.String()
		if !strings.Contains(out, "?search=tractor") {
			t.Errorf("Expected url command output, got:\n%s", out)
		}
		if !strings.Contains(out, "Showing 1 vehicle of 6") {
			t.Errorf("Expected the search to narrow the listing, got:\n%s", out)
		}
	})

	t.Run("Backend down", func(t *testing.T) {
		h := newHarness(t)
		h.url = "http://127.0.0.1:1"
		out, _, err := h.run("browse")
		if err != nil {
			t.Fatalf("A failed load is not fatal, got: %v", err)
		}
		if !strings.Contains(out, "Oops! Something went wrong") {
			t.Errorf("Expected error state, got:\n%s", out)
		}
	})
}

func TestE2E_Show(t *testing.T) {
	h := newHarness(t)
	id := h.vehicleID("Tata Ace Mini Truck")

	out, _, err := h.run("show", id, "--distance", "--lat="+jaipurLat, "--lng="+jaipurLng)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Tata Ace Mini Truck\n===") {
		t.Errorf("Expected title block, got:\n%s", out)
	}
	if !strings.Contains(out, "Location:    Main Road, Ajmer, Rajasthan - 305001") {
		t.Errorf("Expected location line, got:\n%s", out)
	}
	if !strings.Contains(out, "km away") {
		t.Errorf("Expected distance line, got:\n%s", out)
	}

	_, _, err = h.run("show", "missing")
	if !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestE2E_Session(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("whoami")
	if err != nil || out != "Guest\n" {
		t.Fatalf("Expected guest, got %q (%v)", out, err)
	}

	out, _, err = h.run("login", h.token(h.demo.Owner))
	if err != nil {
		t.Fatalf("Expected login to succeed, got: %v", err)
	}
	if !strings.Contains(out, "Logged in as Ramesh Kumar") {
		t.Errorf("Unexpected login output: %q", out)
	}

	out, _, err = h.run("whoami")
	if err != nil || !strings.Contains(out, "Ramesh Kumar") {
		t.Errorf("Expected remembered login, got %q (%v)", out, err)
	}

	if _, _, err := h.run("cache", "clear"); err != nil {
		t.Fatalf("Expected cache clear to succeed, got: %v", err)
	}
	out, _, _ = h.run("whoami")
	if !strings.Contains(out, "Ramesh Kumar") {
		t.Errorf("cache clear should keep the login, got %q", out)
	}

	if _, _, err := h.run("logout"); err != nil {
		t.Fatalf("Expected logout to succeed, got: %v", err)
	}
	out, _, _ = h.run("whoami")
	if out != "Guest\n" {
		t.Errorf("Expected guest after logout, got %q", out)
	}

	out, _, err = h.run("login", "--cookie", "theme=dark; token="+h.token(h.demo.Renter))
	if err != nil || !strings.Contains(out, "Logged in as Sita Sharma") {
		t.Errorf("Expected cookie login, got %q (%v)", out, err)
	}
	if _, _, err := h.run("login", "--cookie", "theme=dark"); err == nil {
		t.Error("Expected a cookie header without token to be refused")
	}
	if _, _, err := h.run("logout"); err != nil {
		t.Fatal(err)
	}

	expired, err := h.mock.IssueToken(h.demo.Owner.ID, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.run("login", expired); err == nil {
		t.Error("Expected expired token to be refused")
	}
}

func TestE2E_Contact(t *testing.T) {
	h := newHarness(t)
	id := h.vehicleID("Swaraj 744 Tractor")

	_, _, err := h.run("contact", id)
	if !errors.Is(err, errLoginRequired) {
		t.Errorf("Expected login required, got %v", err)
	}

	token := h.token(h.demo.Renter)
	out, _, err := h.run("contact", id, "--token", token)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Contact for Swaraj 744 Tractor: 9876500002") {
		t.Errorf("Expected contact, got:\n%s", out)
	}
	if !strings.Contains(out, "Contact requests remaining: 4") {
		t.Errorf("Expected remaining quota, got:\n%s", out)
	}

	for i := 0; i < 4; i++ {
		if _, _, err := h.run("contact", id, "--token", token); err != nil {
			t.Fatalf("Reveal %d failed: %v", i+2, err)
		}
	}
	_, _, err = h.run("contact", id, "--token", token)
	if err == nil || err.Error() != "No contact requests left" {
		t.Errorf("Expected quota message, got %v", err)
	}

	out, _, err = h.run("quota", "--token", token)
	if err != nil || out != "Contact requests remaining: 0\n" {
		t.Errorf("Expected empty quota, got %q (%v)", out, err)
	}
}

func TestE2E_OwnerFlow(t *testing.T) {
	h := newHarness(t)
	token := h.token(h.demo.Owner)
	id := h.vehicleID("Eicher 14ft Truck")

	out, _, err := h.run("mine", "--token", token)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Total: 7   Published: 6   Drafts: 1") {
		t.Errorf("Unexpected summary:\n%s", out)
	}

	// warm both caches so invalidation is observable
	if _, _, err := h.run("cache", "warm"); err != nil {
		t.Fatalf("Expected warm to succeed, got: %v", err)
	}

	out, _, err = h.run("publish", id, "--token", token)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != "Eicher 14ft Truck is now Draft\n" {
		t.Errorf("Expected fresh detail after toggle, got %q", out)
	}

	out, _, err = h.run("browse")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.Contains(out, "Eicher 14ft Truck") || !strings.Contains(out, "Showing 5 vehicles") {
		t.Errorf("Expected the unpublished truck to leave the listing, got:\n%s", out)
	}

	out, _, err = h.run("publish", id, "--token", token)
	if err != nil || out != "Eicher 14ft Truck is now Published\n" {
		t.Fatalf("Expected republish, got %q (%v)", out, err)
	}
	out, _, _ = h.run("browse")
	if !strings.Contains(out, "Eicher 14ft Truck") {
		t.Errorf("Expected the republished truck back in the listing, got:\n%s", out)
	}

	if _, _, err := h.run("delete", id, "--token", token); err == nil {
		t.Error("Expected delete without confirmation to be refused")
	}
	out, _, err = h.run("delete", id, "--token", token, "--yes")
	if err != nil || out != "Vehicle deleted\n" {
		t.Fatalf("Expected delete to succeed, got %q (%v)", out, err)
	}

	out, _, err = h.run("browse")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.Contains(out, "Eicher 14ft Truck") || strings.Contains(out, "Cached (10 min)") {
		t.Errorf("Expected a fresh collection without the deleted vehicle, got:\n%s", out)
	}
	if _, _, err := h.run("show", id); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Expected deleted detail to be gone, got %v", err)
	}

	if _, _, err := h.run("delete", h.vehicleID("Tata Ace Mini Truck"), "--token", h.token(h.demo.Renter), "--yes"); !errors.Is(err, api.ErrUnauthorized) {
		t.Errorf("Expected a renter to be refused, got %v", err)
	}
}

func TestE2E_Create(t *testing.T) {
	h := newHarness(t)

	pins := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Status":"Success","PostOffice":[{"Name":"Ajmer H.O","District":"Ajmer","State":"Rajasthan"}]}]`))
	}))
	defer pins.Close()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("pincode_url: "+pins.URL+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := h.run("create", "--config", configPath, "--token", h.token(h.demo.Renter),
		"--title", "Hero Splendor", "--description", "Bike for daily rent", "--contact", "9000000000",
		"--owner", "--address", "Station Road", "--pin", "305001", "--fill-from-pin")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Vehicle created: ") || !strings.Contains(out, "(Draft)") {
		t.Errorf("Unexpected output: %q", out)
	}

	id := h.vehicleID("Hero Splendor")
	v, ok := h.mock.Vehicle(id)
	if !ok || v.Location == nil || v.Location.District != "Ajmer" || v.Location.State != "Rajasthan" {
		t.Errorf("Expected district and state from the PIN lookup, got %+v", v.Location)
	}

	out, _, err = h.run("pincode", "305001", "--config", configPath)
	if err != nil || out != "Ajmer, Rajasthan (Ajmer H.O)\n" {
		t.Errorf("Unexpected pincode output %q (%v)", out, err)
	}

	_, _, err = h.run("create", "--token", h.token(h.demo.Renter), "--title", "Incomplete")
	if !errors.Is(err, vehicle.ErrMissingFields) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestE2E_WhereAmI(t *testing.T) {
	t.Run("Fixed location", func(t *testing.T) {
		h := newHarness(t)
		out, _, err := h.run("where-am-i", "--lat="+jaipurLat, "--lng="+jaipurLng)
		if err != nil || out != "Your location:   26.9124, 75.7873\n" {
			t.Errorf("Unexpected output %q (%v)", out, err)
		}
	})

	t.Run("Injected locator", func(t *testing.T) {
		h := newHarness(t)
		var stdout, stderr bytes.Buffer
		deps := h.deps(&stdout, &stderr)
		calls := 0
		deps.Locator = geo.LocatorFunc(func(context.Context) (distance.Coordinates, error) {
			calls++
			return distance.Coordinates{Lat: 12.9716, Lng: 77.5946}, nil
		})

		if err := h.runWith(context.Background(), deps, "where-am-i", "--geolocation", "allow"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if stdout.String() != "Your location:   12.9716, 77.5946\n" {
			t.Errorf("Unexpected output %q", stdout.String())
		}

		// the persisted fix is reused by the next run
		stdout.Reset()
		if err := h.runWith(context.Background(), deps, "where-am-i", "--geolocation", "allow"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if calls != 1 {
			t.Errorf("Expected one locator call, got %d", calls)
		}
	})

	t.Run("Place lookup needs consent", func(t *testing.T) {
		h := newHarness(t)
		var hits atomic.Int32
		geoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ip":"203.0.113.7","latitude":26.9124,"longitude":75.7873,"country":"India","city":"Jaipur"}`))
		}))
		defer geoServer.Close()

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte("geo_url: "+geoServer.URL+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		out, _, err := h.run("where-am-i", "--config", configPath, "--geolocation", "allow")
		if err != nil || out != "Your location:   Jaipur, India\n                 26.9124, 75.7873\n" {
			t.Fatalf("Unexpected output %q (%v)", out, err)
		}
		before := hits.Load()

		// the persisted fix answers without asking; the place must not be looked up
		out, _, err = h.run("where-am-i", "--config", configPath)
		if err != nil || out != "Your location:   26.9124, 75.7873\n" {
			t.Errorf("Unexpected output %q (%v)", out, err)
		}
		if got := hits.Load(); got != before {
			t.Errorf("Expected no geolocation request without consent, got %d more", got-before)
		}
	})

	t.Run("Non-interactive ask is denied", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run("where-am-i")
		if err == nil || err.Error() != "Location access denied. Please enable location services." {
			t.Errorf("Expected denial, got %v", err)
		}
	})
}

func TestE2E_Config(t *testing.T) {
	t.Run("Version", func(t *testing.T) {
		h := newHarness(t)
		out, _, err := h.run("--version")
		if err != nil || out != "rent-compass dev\n" {
			t.Errorf("Unexpected version output %q (%v)", out, err)
		}
	})

	t.Run("Missing explicit config", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run("browse", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		if err == nil {
			t.Error("Expected error for missing config file")
		}
	})

	t.Run("Out of range timeout", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run("browse", "--timeout", "0")
		if err == nil || !strings.Contains(err.Error(), "timeout must be between 1 and 60") {
			t.Errorf("Expected timeout error, got %v", err)
		}
	})

	t.Run("Environment supplies the location", func(t *testing.T) {
		h := newHarness(t)
		var stdout, stderr bytes.Buffer
		deps := h.deps(&stdout, &stderr)
		deps.LookupEnv = func(key string) (string, bool) {
			switch key {
			case "RENT_LAT":
				return "28.6139", true
			case "RENT_LNG":
				return "77.2090", true
			}
			return "", false
		}
		if err := h.runWith(context.Background(), deps, "browse", "--distance", "10km"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !strings.Contains(stdout.String(), "Showing 1 vehicle of 6") || !strings.Contains(stdout.String(), "Eicher") {
			t.Errorf("Expected only the Delhi truck, got:\n%s", stdout.String())
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var stdout, stderr bytes.Buffer
		err := h.runWith(ctx, h.deps(&stdout, &stderr), "browse", "--no-cache-file")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}
