// Package native implements storage.GeometryLoader in-process: GeoJSON
// parsing via paulmach/orb, WKB encoding, and batched parameterized INSERTs
// through pgx. No external binaries are involved.
//
// Unlike the ogr2ogr loader, this implementation writes provenance columns
// inline with each row, so the post-load annotator has nothing left to
// backfill for files it loads.
package native

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

const batchSize = 128

func init() {
	storage.RegisterLoader("native", func(ctx context.Context, cfg storage.LoaderConfig) (storage.GeometryLoader, error) {
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("native loader: db pool: %w", err)
		}
		return &Loader{db: pool, closeFn: pool.Close}, nil
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Loader appends GeoJSON features to a destination table.
type Loader struct {
	db      execer
	closeFn func()
}

// NewWithExecer wires a Loader to an arbitrary statement executor. Used by
// tests and by callers that already hold a pool.
func NewWithExecer(db execer) *Loader {
	return &Loader{db: db}
}

// Close releases the underlying pool.
func (l *Loader) Close() {
	if l.closeFn != nil {
		l.closeFn()
	}
}

// LoadFile converts every feature in path into a row of opts.Table.
//
// Policy per the pipeline contract:
//   - a file that cannot be read or parsed fails as a whole;
//   - an individual feature that cannot be converted is skipped, and the
//     remaining features still load;
//   - the filter, when present, is applied before anything is written.
func (l *Loader) LoadFile(ctx context.Context, path string, opts storage.LoadOptions) (int64, error) {
	if opts.Table == "" {
		return 0, fmt.Errorf("native loader: destination table is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("native loader: read %s: %w", path, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, fmt.Errorf("native loader: parse %s: %w", path, err)
	}

	columns := insertColumns()
	var (
		total   int64
		skipped int
		batch   [][]any
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sql, args := buildInsertSQL(opts.Table, columns, batch)
		if _, err := l.db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("native loader: insert into %s: %w", opts.Table, err)
		}
		total += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for _, f := range fc.Features {
		if opts.Filter != nil && !matchesFilter(f, opts.Filter) {
			continue
		}

		row, ok := featureRow(f, opts.Provenance)
		if !ok {
			skipped++
			continue
		}

		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}

	if err := flush(); err != nil {
		return total, err
	}

	if skipped > 0 && total == 0 && opts.Filter == nil {
		return 0, fmt.Errorf("native loader: %s: no convertible features (%d skipped)", path, skipped)
	}
	return total, nil
}

// matchesFilter reports whether the feature's filter property equals the
// filter value.
func matchesFilter(f *geojson.Feature, filter *storage.Filter) bool {
	v, ok := f.Properties[filter.Property]
	if !ok {
		return false
	}
	return storage.NormalizeKey(v) == filter.Value
}

// featureRow converts one feature to a values slice aligned with
// insertColumns(). ok is false when the geometry cannot be promoted to a
// multipolygon.
func featureRow(f *geojson.Feature, prov storage.Provenance) ([]any, bool) {
	geom, ok := toMultiPolygon(f.Geometry)
	if !ok {
		return nil, false
	}
	encoded, err := wkb.Marshal(geom)
	if err != nil {
		return nil, false
	}

	p := f.Properties
	row := []any{
		prov.Year,            // year
		intProp(p, "ID_0"),   // id_0
		strProp(p, "ISO"),    // iso
		strProp(p, "NAME_0"), // name_0
		intProp(p, "ID_1"),
		strProp(p, "NAME_1"),
		intProp(p, "ID_2"),
		strProp(p, "NAME_2"),
		intProp(p, "ID_3"),
		strProp(p, "NAME_3"),
		intProp(p, "ID_4"),
		strProp(p, "NAME_4"),
		strProp(p, "NL_NAME_1"),
		strProp(p, "NL_NAME_2"),
		strProp(p, "NL_NAME_3"),
		strProp(p, "VARNAME_1"),
		strProp(p, "VARNAME_2"),
		strProp(p, "VARNAME_3"),
		strProp(p, "TYPE_1"),
		strProp(p, "TYPE_2"),
		strProp(p, "TYPE_3"),
		strProp(p, "ENGTYPE_1"),
		strProp(p, "ENGTYPE_2"),
		strProp(p, "ENGTYPE_3"),
		strProp(p, "PROVINCE"),
		strProp(p, "REGION"),
		prov.AdminLevel, // admin_level
		prov.SourcePath, // source_path
		prov.Year,       // data_year
		encoded,         // geom
	}
	return row, true
}

// toMultiPolygon promotes single polygons to multipolygons and passes
// multipolygons through. Any other geometry type is unconvertible.
func toMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch t := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{t}, true
	case orb.MultiPolygon:
		return t, true
	default:
		return nil, false
	}
}

// insertColumns is the admin attribute set plus the geometry column, in
// insert order.
func insertColumns() []string {
	return append(storage.AdminColumnNames(), "geom")
}

// buildInsertSQL renders one multi-row INSERT. The geometry placeholder is
// wrapped so the database assigns the target SRID to the incoming WKB.
//
// Pure and deterministic so placeholder numbering and the geometry
// expression can be unit tested without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			if c == "geom" {
				fmt.Fprintf(&b, "ST_SetSRID(ST_GeomFromWKB($%d), 4326)", p)
			} else {
				fmt.Fprintf(&b, "$%d", p)
			}
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// strProp returns the string property or nil when absent/empty, so absent
// attributes land as SQL NULL.
func strProp(p geojson.Properties, key string) any {
	v, ok := p[key]
	if !ok {
		return nil
	}
	s := storage.NormalizeKey(v)
	if s == "" {
		return nil
	}
	return s
}

// intProp returns the integer property or nil. GeoJSON numbers decode as
// float64; string-encoded codes are accepted too.
func intProp(p geojson.Properties, key string) any {
	v, ok := p[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%d", &n); err != nil {
			return nil
		}
		return n
	default:
		return nil
	}
}
