package ecoregions

import (
	"log/slog"
	"net/http"
)

// Config contains the options for building, loading and querying the
// reference cache.
type Config struct {
	DataPath  string       // Directory for cache files (default: "data_cache")
	Endpoint  string       // SPARQL endpoint (default: DefaultEndpoint)
	Rebuild   bool         // Ignore existing cache files and query the endpoint
	UserAgent string       // User-Agent for SPARQL requests
	Querier   Querier      // Overrides the HTTP SPARQL client when set
	Store     Store        // Overrides the file store under DataPath when set
	Client    *http.Client // HTTP client for SPARQL requests
	Logger    *slog.Logger
}

// Option is a functional option for configuring the reference cache.
type Option func(*Config)

// WithDataPath sets the directory holding the cache files.
func WithDataPath(dir string) Option {
	return func(c *Config) {
		c.DataPath = dir
	}
}

// WithEndpoint sets the SPARQL endpoint queried on rebuild.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithRebuild forces the cache to be rebuilt from the endpoint.
func WithRebuild(rebuild bool) Option {
	return func(c *Config) {
		c.Rebuild = rebuild
	}
}

// WithUserAgent sets the User-Agent sent to the endpoint.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithQuerier replaces the HTTP SPARQL client.
func WithQuerier(q Querier) Option {
	return func(c *Config) {
		c.Querier = q
	}
}

// WithStore replaces the default file store.
func WithStore(s Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithHTTPClient sets the HTTP client used for SPARQL requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) {
		c.Client = hc
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() *Config {
	return &Config{
		DataPath: "data_cache",
		Endpoint: DefaultEndpoint,
	}
}

// newConfig applies opts over the defaults and fills in derived values.
func newConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = NewFileStore(cfg.DataPath)
	}
	if cfg.Querier == nil {
		cfg.Querier = NewSPARQLClient(cfg.Endpoint,
			WithClientHTTPClient(cfg.Client),
			WithClientUserAgent(cfg.UserAgent),
		)
	}
	return cfg
}
