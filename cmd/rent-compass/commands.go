package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rentvehical/rent-compass/internal/api"
	"github.com/rentvehical/rent-compass/internal/cache"
	"github.com/rentvehical/rent-compass/internal/distance"
	"github.com/rentvehical/rent-compass/internal/formatter"
	"github.com/rentvehical/rent-compass/internal/geo"
	"github.com/rentvehical/rent-compass/internal/listing"
	"github.com/rentvehical/rent-compass/internal/session"
	"github.com/rentvehical/rent-compass/internal/vehicle"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rent-compass",
		Short: "Browse and manage vehicle rental listings near you",
		Long: `rent-compass browses a vehicle rental marketplace from the terminal.

Listings are sorted by distance from your location and can be narrowed to
10, 50 or 100 km. Listings and details are cached for 10 minutes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate("rent-compass {{.Version}}\n")

	f := root.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "config file (default: <user config dir>/rent-compass/config.yaml)")
	f.StringVar(&a.flags.apiURL, "api-url", "", "marketplace API root (default: http://localhost:8080)")
	f.StringVar(&a.flags.token, "token", "", "bearer token to authenticate with")
	f.Float64Var(&a.flags.lat, "lat", 0, "fixed latitude of your location")
	f.Float64Var(&a.flags.lng, "lng", 0, "fixed longitude of your location")
	f.StringVar(&a.flags.geolocation, "geolocation", "", "location permission: allow, deny or ask (default: ask)")
	f.IntVar(&a.flags.timeout, "timeout", 0, "HTTP timeout in seconds (default: 10, range: 1-60)")
	f.IntVar(&a.flags.retries, "retries", 0, "retries for failed reads (default: 0, range: 0-5)")
	f.StringVar(&a.flags.cacheDir, "cache-dir", "", "directory of the cache file")
	f.BoolVar(&a.flags.noCacheFile, "no-cache-file", false, "keep the cache in memory only")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warning, error (default: error)")

	root.AddCommand(
		newBrowseCmd(a),
		newShowCmd(a),
		newContactCmd(a),
		newQuotaCmd(a),
		newMineCmd(a),
		newDeleteCmd(a),
		newPublishCmd(a),
		newCreateCmd(a),
		newWhoamiCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhereAmICmd(a),
		newPincodeCmd(a),
		newCacheCmd(a),
	)
	return root
}

func renderView(w io.Writer, v listing.View) {
	_, _ = fmt.Fprint(w, formatter.FormatView(v))
}

// notice prints a non-fatal failure
func notice(w io.Writer, err error) {
	var gerr *geo.Error
	if errors.As(err, &gerr) {
		_, _ = fmt.Fprintln(w, gerr.Message())
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func newBrowseCmd(a *app) *cobra.Command {
	var (
		search      string
		dist        string
		rawURL      string
		refresh     bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "List vehicles, nearest first",
		Long: `List vehicles, nearest first.

The filter can be given as flags or as a URL query such as
"?search=tractor&distance=50km". With -i the listing stays open and
accepts commands (type help).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var radius listing.Radius
			if cmd.Flags().Changed("distance") {
				r, err := listing.ParseRadius(dist)
				if err != nil {
					return err
				}
				radius = r
			}

			o := a.orchestrator()
			load := o.Load
			if refresh {
				load = o.Refresh
			}
			if err := timedErr(a.logger, "Collection load", func() error { return load(ctx) }); err != nil && cancelled(err) {
				return err
			}

			if rawURL != "" {
				if err := o.SetURL(ctx, rawURL); err != nil {
					if cancelled(err) {
						return err
					}
					notice(a.deps.Stderr, err)
				}
			}
			if cmd.Flags().Changed("search") {
				o.SetSearch(search)
			}
			if radius != "" {
				if err := o.SelectDistance(ctx, radius); err != nil {
					if cancelled(err) {
						return err
					}
					notice(a.deps.Stderr, err)
				}
			}

			if interactive {
				return listing.RunREPL(ctx, o, renderView, a.deps.Stdin, a.deps.Stdout, a.deps.Stderr)
			}

			renderView(a.deps.Stdout, o.View())
			if u := o.URL(); u != "?" {
				_, _ = fmt.Fprintf(a.deps.Stdout, "\nFilter: %s\n", u)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "text to look for in title, description and owner")
	cmd.Flags().StringVarP(&dist, "distance", "d", "", "radius: all, 10km, 50km or 100km")
	cmd.Flags().StringVar(&rawURL, "url", "", "filter as a URL or query string")
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "skip the cache")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "keep the listing open for commands")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var withDistance bool

	cmd := &cobra.Command{
		Use:   "show <vehicle-id>",
		Short: "Show a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			v, src, err := a.catalog.Vehicle(ctx, args[0])
			if err != nil {
				return err
			}
			a.state.SetSingleVehicle(*v)
			a.logger.Debug().Str("source", string(src)).Msg("Vehicle loaded")

			var dist *float64
			if c, ok := v.Coordinates(); ok && withDistance {
				origin, err := a.acquirer.Acquire(ctx)
				switch {
				case err == nil:
					d := distance.Between(origin, c)
					dist = &d
				case cancelled(err):
					return err
				default:
					notice(a.deps.Stderr, err)
				}
			}

			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatVehicleDetail(*v, dist))
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDistance, "distance", false, "show the distance from your location")
	return cmd
}

func newContactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contact <vehicle-id>",
		Short: "Reveal the owner's contact, using one request from your quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireUser(ctx); err != nil {
				return err
			}

			v, _, err := a.catalog.Vehicle(ctx, args[0])
			if err != nil {
				return err
			}

			contact, err := a.catalog.RevealContact(ctx, v.ID)
			if err != nil {
				var apiErr *api.Error
				if errors.Is(err, api.ErrQuotaExhausted) && errors.As(err, &apiErr) && apiErr.Message != "" {
					return errors.New(apiErr.Message)
				}
				return err
			}
			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatContact(*v, contact))

			left, err := a.catalog.RequestCount(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Could not fetch remaining requests")
				return nil
			}
			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatQuota(left))
			return nil
		},
	}
}

func newQuotaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show how many contact requests you have left",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.requireUser(ctx); err != nil {
				return err
			}
			left, err := a.catalog.RequestCount(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatQuota(left))
			return nil
		},
	}
}

func newMineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your own vehicles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			id, err := a.requireUser(ctx)
			if err != nil {
				return err
			}

			vs, err := a.catalog.MyVehicles(ctx, id.User.ID)
			if err != nil {
				return err
			}
			a.state.SetVehicles(vs)

			if len(vs) == 0 {
				_, _ = fmt.Fprintln(a.deps.Stdout, "You have not listed any vehicles yet")
				return nil
			}
			published := 0
			for _, v := range vs {
				if v.IsPublished {
					published++
				}
			}
			_, _ = fmt.Fprintf(a.deps.Stdout, "Total: %d   Published: %d   Drafts: %d\n\n", len(vs), published, len(vs)-published)
			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatVehicles(vs))
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <vehicle-id>",
		Short: "Delete one of your vehicles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireUser(ctx); err != nil {
				return err
			}

			if !yes {
				if !a.deps.Interactive {
					return errors.New("refusing to delete without confirmation (use --yes)")
				}
				ok, err := confirm(a.deps.Stdin, a.deps.Stderr, fmt.Sprintf("Delete vehicle %s? This cannot be undone. [y/N]: ", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(a.deps.Stdout, "Cancelled")
					return nil
				}
			}

			if err := a.catalog.Delete(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.deps.Stdout, "Vehicle deleted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	if _, err := fmt.Fprint(out, question); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <vehicle-id>",
		Short: "Publish a draft or take a published vehicle down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireUser(ctx); err != nil {
				return err
			}

			if err := a.catalog.TogglePublish(ctx, args[0]); err != nil {
				return err
			}

			v, _, err := a.catalog.Vehicle(ctx, args[0])
			if err != nil {
				_, _ = fmt.Fprintln(a.deps.Stdout, "Publication status changed")
				return nil
			}
			_, _ = fmt.Fprintf(a.deps.Stdout, "%s is now %s\n", v.Title, v.Status())
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		draft   vehicle.Draft
		fillPin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "List a new vehicle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.requireUser(ctx); err != nil {
				return err
			}

			if fillPin && (draft.District == "" || draft.State == "") {
				place, err := a.pincode.Lookup(ctx, draft.PinCode)
				if err != nil {
					return fmt.Errorf("PIN code lookup failed: %w", err)
				}
				if draft.District == "" {
					draft.District = place.District
				}
				if draft.State == "" {
					draft.State = place.State
				}
			}

			v, err := a.catalog.Create(ctx, draft)
			if err != nil {
				return err
			}
			if v == nil {
				_, _ = fmt.Fprintln(a.deps.Stdout, "Vehicle created")
				return nil
			}
			_, _ = fmt.Fprintf(a.deps.Stdout, "Vehicle created: %s (%s)\n", v.ID, v.Status())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&draft.Title, "title", "", "listing title")
	f.StringVar(&draft.Description, "description", "", "listing description")
	f.StringVar(&draft.Contact, "contact", "", "phone number renters can reveal")
	f.BoolVar(&draft.IsOwner, "owner", false, "you own the vehicle (otherwise you list it as an agent)")
	f.StringVar(&draft.Latitude, "latitude", "", "latitude of the vehicle")
	f.StringVar(&draft.Longitude, "longitude", "", "longitude of the vehicle")
	f.StringVar(&draft.Address, "address", "", "street address")
	f.StringVar(&draft.District, "district", "", "district")
	f.StringVar(&draft.State, "state", "", "state")
	f.StringVar(&draft.PinCode, "pin", "", "6-digit PIN code")
	f.BoolVar(&fillPin, "fill-from-pin", false, "look up missing district and state from the PIN code")
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who you are logged in as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.identity(cmd.Context())
			if err != nil {
				return err
			}
			reason := id.Reason
			if errors.Is(reason, session.ErrNoToken) {
				reason = nil
			}
			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatIdentity(id.User, reason))
			return nil
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var cookie string

	cmd := &cobra.Command{
		Use:   "login [token]",
		Short: "Remember a bearer token for later commands",
		Long: `Remember a bearer token for later commands.

The token is taken from the argument, from --cookie (a Cookie header as
copied from a browser, e.g. "theme=dark; token=..."), or from --token.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := a.cfg.Token
			switch {
			case len(args) == 1:
				token = args[0]
			case cookie != "":
				token = session.TokenFromCookieHeader(cookie)
				if token == "" {
					return errors.New("no token cookie in --cookie")
				}
			}
			user, err := a.resolver.Login(cmd.Context(), token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatIdentity(user, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&cookie, "cookie", "", "Cookie header holding the token cookie")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the remembered token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.resolver.Logout(cmd.Context())
			_, _ = fmt.Fprintln(a.deps.Stdout, "Logged out")
			return nil
		},
	}
}

func newWhereAmICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "where-am-i",
		Short: "Show the location listings are sorted from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			origin, err := timed(a.logger, "Location acquisition", func() (distance.Coordinates, error) {
				return a.acquirer.Acquire(ctx)
			})
			if err != nil {
				var gerr *geo.Error
				if errors.As(err, &gerr) {
					return errors.New(gerr.Message())
				}
				return err
			}

			// the fix may come from the cache, so the place lookup needs its own consent
			var place *geo.IPLocation
			if a.ipLocator != nil && a.consent != nil {
				if ok, err := a.consent.Allowed(); err != nil || !ok {
					a.logger.Debug().Err(err).Msg("Location not permitted, skipping place lookup")
				} else if p, err := a.ipLocator.Lookup(ctx); err == nil {
					place = p
				} else {
					a.logger.Debug().Err(err).Msg("No place name for location")
				}
			}
			_, _ = fmt.Fprint(a.deps.Stdout, formatter.FormatDeviceLocation(origin, place))
			return nil
		},
	}
}

func newPincodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pincode <pin>",
		Short: "Look up the district and state of a PIN code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			place, err := a.pincode.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.deps.Stdout, "%s, %s (%s)\n", place.District, place.State, place.PostOffice)
			return nil
		},
	}
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local cache",
	}

	var all bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached listings and location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var kept map[string][]byte
			if !all {
				kept = map[string][]byte{}
				for _, key := range []string{cache.SessionTokenKey, cache.SessionUserKey} {
					if raw, ok, err := a.backend.Read(ctx, key); err == nil && ok {
						kept[key] = raw
					}
				}
			}

			if err := a.store.Clear(ctx); err != nil {
				return err
			}
			for key, raw := range kept {
				if err := a.backend.Write(ctx, key, raw); err != nil {
					return fmt.Errorf("failed to keep login: %w", err)
				}
			}
			_, _ = fmt.Fprintln(a.deps.Stdout, "Cache cleared")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&all, "all", false, "also forget the remembered login")

	warmCmd := &cobra.Command{
		Use:   "warm",
		Short: "Fetch the listings and their details into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			vs, err := a.catalog.RefreshVehicles(ctx)
			if err != nil {
				return err
			}
			ids := make([]string, len(vs))
			for i, v := range vs {
				ids[i] = v.ID
			}
			n, err := timed(a.logger, "Detail prefetch", func() (int, error) {
				return a.catalog.PrefetchDetails(ctx, ids)
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.deps.Stdout, "Cached %d vehicles, fetched %d details\n", len(vs), n)
			return nil
		},
	}

	cmd.AddCommand(clearCmd, warmCmd)
	return cmd
}
