// Package cli reads the environment shared by the ecoregions commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/andreiashu/ecoregions"
	"github.com/joho/godotenv"
)

// Environment variables read by LoadEnv.
const (
	EnvDataPath = "ECOREF_DATA_PATH"
	EnvEndpoint = "ECOREF_ENDPOINT"
	EnvStore    = "ECOREF_STORE"
	EnvLogLevel = "LOG_LEVEL"
	EnvLogFmt   = "LOG_FORMAT"
)

// Env is the command configuration.
type Env struct {
	DataPath string
	Endpoint string
	Store    string // "file" or "sqlite"
}

// LoadEnv loads .env (if present) and reads the configuration from the
// environment, applying defaults.
func LoadEnv() Env {
	_ = godotenv.Load(".env")
	e := Env{
		DataPath: os.Getenv(EnvDataPath),
		Endpoint: os.Getenv(EnvEndpoint),
		Store:    strings.ToLower(os.Getenv(EnvStore)),
	}
	if e.DataPath == "" {
		e.DataPath = "data_cache"
	}
	if e.Endpoint == "" {
		e.Endpoint = ecoregions.DefaultEndpoint
	}
	if e.Store == "" {
		e.Store = "file"
	}
	return e
}

// SetupLogger installs the default slog logger. LOG_LEVEL selects
// debug/info/warn/error and LOG_FORMAT=json selects JSON output.
func SetupLogger() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv(EnvLogLevel)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var h slog.Handler
	if strings.ToLower(os.Getenv(EnvLogFmt)) == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// Options turns the configuration into reference cache options. The returned
// close function releases the store and must be called once done.
func (e Env) Options(l *slog.Logger) ([]ecoregions.Option, func() error, error) {
	opts := []ecoregions.Option{
		ecoregions.WithDataPath(e.DataPath),
		ecoregions.WithEndpoint(e.Endpoint),
		ecoregions.WithLogger(l),
	}
	switch e.Store {
	case "file":
		return opts, func() error { return nil }, nil
	case "sqlite":
		st, err := ecoregions.NewSQLiteStore(filepath.Join(e.DataPath, "ref_cache.db"))
		if err != nil {
			return nil, nil, err
		}
		return append(opts, ecoregions.WithStore(st)), st.Close, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown store %q (want file or sqlite)", EnvStore, e.Store)
	}
}
