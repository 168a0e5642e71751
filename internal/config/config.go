// Package config holds the process configuration for the maps loader.
//
// Configuration is read from the environment exactly once (LoadEnv/FromEnv at
// process start) and passed into components as an explicit struct. No other
// package reads environment variables for pipeline behavior.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults mirror the documented environment contract.
const (
	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "gis"
	DefaultDBUser     = "postgres"
	DefaultDBPassword = "password"
	DefaultMapsRoot   = "maps"
	DefaultSummaryLog = "import_summary.log"
	DefaultLoaderKind = "native"
)

// Config is the full configuration for one pipeline run.
type Config struct {
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// MapsRoot is the directory scanned for year/geojson subtrees.
	MapsRoot string

	// SummaryLog is the path the import summary is written to. Each run
	// replaces the file; it reports the latest run, not a history.
	SummaryLog string

	// LoaderKind selects the registered GeometryLoader ("native", "ogr2ogr").
	LoaderKind string
}

// LoadEnv loads a .env file if one is present and then builds a Config from
// the environment. A missing .env file is not an error.
func LoadEnv() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset.
func FromEnv() (Config, error) {
	cfg := Config{
		DBHost:     envOr("DB_HOST", DefaultDBHost),
		DBName:     envOr("DB_NAME", DefaultDBName),
		DBUser:     envOr("DB_USER", DefaultDBUser),
		DBPassword: envOr("DB_PASSWORD", DefaultDBPassword),
		MapsRoot:   envOr("MAPS_ROOT", DefaultMapsRoot),
		SummaryLog: envOr("SUMMARY_LOG", DefaultSummaryLog),
		LoaderKind: envOr("LOADER_KIND", DefaultLoaderKind),
	}

	port := envOr("DB_PORT", "")
	if port == "" {
		cfg.DBPort = DefaultDBPort
	} else {
		p, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid DB_PORT %q: %w", port, err)
		}
		cfg.DBPort = p
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the pipeline assumes.
func (c Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("config: DBHost must not be empty")
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("config: DBPort %d out of range", c.DBPort)
	}
	if c.DBName == "" {
		return fmt.Errorf("config: DBName must not be empty")
	}
	if c.DBUser == "" {
		return fmt.Errorf("config: DBUser must not be empty")
	}
	if c.MapsRoot == "" {
		return fmt.Errorf("config: MapsRoot must not be empty")
	}
	return nil
}

// DSN returns a pgx-compatible keyword/value connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// OgrConnString returns the GDAL PG: connection string used by the ogr2ogr
// loader. Same fields as DSN, different envelope.
func (c Config) OgrConnString() string {
	return fmt.Sprintf("PG:host=%s port=%d dbname=%s user=%s password=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
