// Package cli provides the layered configuration of the rent-compass command.
package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rentvehical/rent-compass/internal/cache"
	"github.com/rentvehical/rent-compass/internal/distance"
	"github.com/rentvehical/rent-compass/internal/geo"
	"github.com/rentvehical/rent-compass/internal/logging"
)

// Environment variables read by ApplyEnv
const (
	EnvConfig      = "RENT_COMPASS_CONFIG"
	EnvAPIURL      = "RENT_API_URL"
	EnvToken       = "RENT_TOKEN"
	EnvLatitude    = "RENT_LAT"
	EnvLongitude   = "RENT_LNG"
	EnvGeolocation = "RENT_GEOLOCATION"
	EnvLogLevel    = "RENT_LOG_LEVEL"
	EnvCacheDir    = "RENT_CACHE_DIR"
)

const (
	defaultConfigFolder = "rent-compass"
	defaultConfigFile   = "config.yaml"
	cacheFileName       = "cache.db"
)

// Config holds all configuration options for the application.
type Config struct {
	APIURL      string   `yaml:"api_url"`
	GeoURL      string   `yaml:"geo_url"`
	PincodeURL  string   `yaml:"pincode_url"`
	Token       string   `yaml:"token"`
	Latitude    *float64 `yaml:"latitude"`
	Longitude   *float64 `yaml:"longitude"`
	Geolocation string   `yaml:"geolocation"`
	// Timeout is the HTTP timeout in seconds
	Timeout     int    `yaml:"timeout"`
	Retries     int    `yaml:"retries"`
	CacheDir    string `yaml:"cache_dir"`
	NoCacheFile bool   `yaml:"no_cache_file"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		APIURL:      "http://localhost:8080",
		Geolocation: string(geo.PolicyAsk),
		Timeout:     10,
		Retries:     0,
		LogLevel:    logging.LogLevelError.String(),
	}
}

// DefaultConfigPath returns the platform-specific location of the config file
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(dir, defaultConfigFolder, defaultConfigFile), nil
}

// LoadFile overlays the YAML file at path onto c. A missing file is an
// error only when required is set.
func (c *Config) LoadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// an empty file decodes to io.EOF
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ReadDotEnv reads a .env file into a map. A missing file yields an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// LookupChain returns a lookup that prefers env, usually os.LookupEnv,
// and falls back to the .env values
func LookupChain(env func(string) (string, bool), dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := env(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// ApplyEnv overlays environment variables onto c
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Token = v
	}
	if v, ok := lookup(EnvGeolocation); ok && v != "" {
		c.Geolocation = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvCacheDir); ok && v != "" {
		c.CacheDir = v
	}
	if v, ok := lookup(EnvLatitude); ok && v != "" {
		lat, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s value: %s", EnvLatitude, v)
		}
		c.Latitude = &lat
	}
	if v, ok := lookup(EnvLongitude); ok && v != "" {
		lng, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s value: %s", EnvLongitude, v)
		}
		c.Longitude = &lng
	}
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api url must not be empty")
	}
	if c.Timeout < 1 || c.Timeout > 60 {
		return fmt.Errorf("timeout must be between 1 and 60")
	}
	if c.Retries < 0 || c.Retries > 5 {
		return fmt.Errorf("retries must be between 0 and 5")
	}
	if _, err := geo.ParsePolicy(c.Geolocation); err != nil {
		return err
	}
	if _, err := logging.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be given together")
	}
	if c.Latitude != nil {
		if *c.Latitude < -90 || *c.Latitude > 90 {
			return fmt.Errorf("latitude must be between -90 and 90")
		}
		if *c.Longitude < -180 || *c.Longitude > 180 {
			return fmt.Errorf("longitude must be between -180 and 180")
		}
	}
	return nil
}

// Origin returns the fixed device position, if one is configured
func (c *Config) Origin() (distance.Coordinates, bool) {
	if c.Latitude == nil || c.Longitude == nil {
		return distance.Coordinates{}, false
	}
	return distance.Coordinates{Lat: *c.Latitude, Lng: *c.Longitude}, true
}

// Policy returns the parsed geolocation policy. Call Validate first.
func (c *Config) Policy() geo.Policy {
	p, err := geo.ParsePolicy(c.Geolocation)
	if err != nil {
		return geo.PolicyAsk
	}
	return p
}

// Level returns the parsed log level. Call Validate first.
func (c *Config) Level() logging.LogLevel {
	l, err := logging.ParseLogLevel(c.LogLevel)
	if err != nil {
		return logging.LogLevelError
	}
	return l
}

// HTTPTimeout returns Timeout as a duration
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CachePath returns the cache database path, or "" when the file cache is disabled
func (c *Config) CachePath() (string, error) {
	if c.NoCacheFile {
		return "", nil
	}
	if c.CacheDir != "" {
		return filepath.Join(c.CacheDir, cacheFileName), nil
	}
	return cache.DefaultPath()
}
