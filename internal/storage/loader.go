package storage

import (
	"context"
	"fmt"
	"sync"
)

// Provenance records where a batch of rows came from. It is written either
// inline at load time (loaders that support it) or backfilled by the
// annotator immediately after each file's load.
type Provenance struct {
	Year       int
	AdminLevel string
	SourcePath string
}

// Filter restricts a load to features whose named property equals Value.
// Loaders must apply the filter before writing, never after.
type Filter struct {
	// Property is the GeoJSON property name in the source file (e.g. "NAME_3").
	Property string
	// Column is the destination column the property maps to (e.g. "name_3").
	Column string
	Value  string
}

// LoadOptions parameterizes one file load.
type LoadOptions struct {
	Table      string
	Filter     *Filter
	Provenance Provenance
}

// GeometryLoader converts all features of one source file into rows appended
// to the destination table: single geometries promoted to multi-geometries,
// coordinates in EPSG:4326, per-feature failures skipped rather than aborting
// the file.
//
// The returned count is the number of rows written; implementations that
// cannot observe it (external tools) return 0 on success.
type GeometryLoader interface {
	LoadFile(ctx context.Context, path string, opts LoadOptions) (int64, error)
	Close()
}

// LoaderConfig is the configuration passed to loader factories.
type LoaderConfig struct {
	Kind string

	// DSN is a pgx connection string, used by in-process loaders.
	DSN string

	// OgrConn is the GDAL "PG:..." connection string, used by the ogr2ogr
	// loader.
	OgrConn string

	// Binary overrides the external tool path (tests, nonstandard installs).
	Binary string
}

type loaderFactory func(ctx context.Context, cfg LoaderConfig) (GeometryLoader, error)

var (
	loaderMu        sync.RWMutex
	loaderFactories = map[string]loaderFactory{}
)

// RegisterLoader registers a loader implementation under a kind
// (e.g. "native", "ogr2ogr"). Call from an init() in the loader package.
//
// Panics on empty kind, nil factory, or duplicate registration; ambiguous
// loader selection should fail at startup, not at load time.
func RegisterLoader(kind string, f loaderFactory) {
	loaderMu.Lock()
	defer loaderMu.Unlock()

	if kind == "" {
		panic("storage: RegisterLoader called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterLoader called with nil factory")
	}
	if _, exists := loaderFactories[kind]; exists {
		panic(fmt.Sprintf("storage: loader factory already registered for kind=%q", kind))
	}

	loaderFactories[kind] = f
}

// NewLoader constructs a GeometryLoader for the configured kind.
func NewLoader(ctx context.Context, cfg LoaderConfig) (GeometryLoader, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing loader kind")
	}

	loaderMu.RLock()
	f := loaderFactories[cfg.Kind]
	loaderMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported loader kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
