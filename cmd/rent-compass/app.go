package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rentvehical/rent-compass/internal/api"
	"github.com/rentvehical/rent-compass/internal/cache"
	"github.com/rentvehical/rent-compass/internal/catalog"
	"github.com/rentvehical/rent-compass/internal/cli"
	"github.com/rentvehical/rent-compass/internal/geo"
	"github.com/rentvehical/rent-compass/internal/listing"
	"github.com/rentvehical/rent-compass/internal/logging"
	"github.com/rentvehical/rent-compass/internal/pincode"
	"github.com/rentvehical/rent-compass/internal/session"
	"github.com/rentvehical/rent-compass/internal/state"
)

var errLoginRequired = errors.New("this command needs a logged-in user (use login or --token)")

// globalFlags are the persistent flags of the root command
type globalFlags struct {
	configPath  string
	apiURL      string
	token       string
	lat         float64
	lng         float64
	geolocation string
	timeout     int
	retries     int
	cacheDir    string
	noCacheFile bool
	logLevel    string
}

// app is everything a command needs, built once per invocation from the
// layered configuration
type app struct {
	deps  Dependencies
	flags globalFlags

	cfg      *cli.Config
	logger   zerolog.Logger
	backend  cache.Backend
	store    *cache.Store
	client   *api.Client
	catalog  *catalog.Catalog
	state    *state.Store
	resolver *session.Resolver
	acquirer *geo.Acquirer
	// ipLocator is nil when the position comes from configuration or deps
	ipLocator *geo.IPLocator
	consent   *geo.ConsentLocator
	pincode   *pincode.Client
}

// loadConfig layers defaults, the config file, .env, the environment and
// the flags that were set explicitly
func (a *app) loadConfig(cmd *cobra.Command) (*cli.Config, error) {
	cfg := cli.Default()

	lookupEnv := a.deps.LookupEnv
	if lookupEnv == nil {
		lookupEnv = func(string) (string, bool) { return "", false }
	}

	path, required := a.flags.configPath, a.flags.configPath != ""
	if path == "" {
		if v, ok := lookupEnv(cli.EnvConfig); ok && v != "" {
			path, required = v, true
		} else if p, err := cli.DefaultConfigPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.LoadFile(path, required); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if a.deps.DotEnvPath != "" {
		values, err := cli.ReadDotEnv(a.deps.DotEnvPath)
		if err != nil {
			return nil, err
		}
		dotenv = values
	}
	if err := cfg.ApplyEnv(cli.LookupChain(lookupEnv, dotenv)); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = a.flags.apiURL
	}
	if flags.Changed("token") {
		cfg.Token = a.flags.token
	}
	if flags.Changed("lat") {
		cfg.Latitude = &a.flags.lat
	}
	if flags.Changed("lng") {
		cfg.Longitude = &a.flags.lng
	}
	if flags.Changed("geolocation") {
		cfg.Geolocation = a.flags.geolocation
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.flags.timeout
	}
	if flags.Changed("retries") {
		cfg.Retries = a.flags.retries
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = a.flags.cacheDir
	}
	if flags.Changed("no-cache-file") {
		cfg.NoCacheFile = a.flags.noCacheFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup builds the components from the configuration
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(a.deps.Stderr, cfg.Level())
	a.logger.Debug().Interface("config", redacted(*cfg)).Msg("Configuration loaded")

	ctx := cmd.Context()

	a.backend = a.openBackend(ctx)
	a.store = cache.New(a.backend, cache.WithLogger(a.logger))

	a.client = api.NewClient(
		api.WithBaseURL(cfg.APIURL),
		api.WithTimeout(cfg.HTTPTimeout()),
		api.WithMaxRetries(cfg.Retries),
		api.WithVersion(Version),
		api.WithLogger(a.logger),
	)
	a.state = state.New()
	a.catalog = catalog.New(a.client, a.store, catalog.WithLogger(a.logger))
	a.resolver = session.NewResolver(a.client, a.backend, a.state, session.WithLogger(a.logger))

	acquirerOpts := []geo.AcquirerOption{geo.WithAcquirerLogger(a.logger)}
	var locator geo.Locator
	if origin, ok := cfg.Origin(); ok {
		locator = geo.StaticLocator{Coordinates: origin}
	} else {
		base := a.deps.Locator
		if base == nil {
			ipOpts := []geo.IPOption{
				geo.WithHTTPTimeout(cfg.HTTPTimeout()),
				geo.WithVersion(Version),
				geo.WithLogger(a.logger),
			}
			if cfg.GeoURL != "" {
				ipOpts = append(ipOpts, geo.WithURL(cfg.GeoURL))
			}
			a.ipLocator = geo.NewIPLocator(ipOpts...)
			base = a.ipLocator
		}
		a.consent = geo.NewConsentLocator(base, cfg.Policy(), geo.WithPrompt(a.deps.Stdin, a.deps.Stderr, a.deps.Interactive))
		locator = a.consent
		// a persisted fix would bypass a denial
		if cfg.Policy() != geo.PolicyDeny {
			acquirerOpts = append(acquirerOpts, geo.WithStore(a.store))
		}
	}
	a.acquirer = geo.NewAcquirer(locator, acquirerOpts...)

	pinOpts := []pincode.Option{pincode.WithTimeout(cfg.HTTPTimeout()), pincode.WithLogger(a.logger)}
	if cfg.PincodeURL != "" {
		pinOpts = append(pinOpts, pincode.WithURL(cfg.PincodeURL))
	}
	a.pincode = pincode.NewClient(pinOpts...)

	return nil
}

// openBackend opens the cache file, falling back to memory: the cache is
// an optimization and never stops a command
func (a *app) openBackend(ctx context.Context) cache.Backend {
	path, err := a.cfg.CachePath()
	if err != nil {
		a.logger.Warn().Err(err).Msg("No cache directory, using in-memory cache")
		return cache.NewMemoryBackend()
	}
	if path == "" {
		return cache.NewMemoryBackend()
	}
	backend, err := cache.OpenSQLite(ctx, path)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("Cannot open cache file, using in-memory cache")
		return cache.NewMemoryBackend()
	}
	a.logger.Debug().Str("path", path).Msg("Cache file opened")
	return backend
}

func (a *app) close() {
	if a.backend == nil {
		return
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close cache")
	}
}

// identity resolves who is calling. A guest is not an error.
func (a *app) identity(ctx context.Context) (session.Identity, error) {
	return timed(a.logger, "Identity resolution", func() (session.Identity, error) {
		return a.resolver.Resolve(ctx, a.cfg.Token)
	})
}

// requireUser resolves the identity and fails for guests
func (a *app) requireUser(ctx context.Context) (session.Identity, error) {
	id, err := a.identity(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	if id.Guest() {
		if id.Reason != nil && !errors.Is(id.Reason, session.ErrNoToken) {
			return session.Identity{}, fmt.Errorf("%w: %v", errLoginRequired, id.Reason)
		}
		return session.Identity{}, errLoginRequired
	}
	return id, nil
}

func (a *app) orchestrator() *listing.Orchestrator {
	return listing.NewOrchestrator(a.catalog, a.acquirer,
		listing.WithLogger(a.logger),
		listing.WithStateStore(a.state),
		listing.WithPendingHook(listing.PendingNotice(a.deps.Stderr)),
	)
}

// redacted hides the token in debug output
func redacted(cfg cli.Config) cli.Config {
	if cfg.Token != "" {
		cfg.Token = "***"
	}
	return cfg
}
