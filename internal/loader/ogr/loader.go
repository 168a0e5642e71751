// Package ogr implements storage.GeometryLoader by shelling out to the
// external ogr2ogr binary. It exists for environments where GDAL's format
// and reprojection coverage matters more than in-process control; the
// native loader is the default.
//
// The batch year is injected per row through an OGR SQL statement; the
// remaining provenance columns are filled by the pipeline's post-load
// annotator.
package ogr

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

const defaultBinary = "ogr2ogr"

func init() {
	storage.RegisterLoader("ogr2ogr", func(ctx context.Context, cfg storage.LoaderConfig) (storage.GeometryLoader, error) {
		if cfg.OgrConn == "" {
			return nil, fmt.Errorf("ogr loader: missing PG connection string")
		}
		binary := cfg.Binary
		if binary == "" {
			binary = defaultBinary
		}
		return &Loader{conn: cfg.OgrConn, binary: binary, run: runCommand}, nil
	})
}

// Loader invokes ogr2ogr once per file.
type Loader struct {
	conn   string
	binary string

	// run is a seam so tests can capture the argument vector without a GDAL
	// install.
	run func(ctx context.Context, name string, args []string) ([]byte, error)
}

// Close is a no-op; the external tool holds no persistent resources.
func (l *Loader) Close() {}

// LoadFile appends all features of path into opts.Table.
//
// The row count is not reported by ogr2ogr; LoadFile returns 0 on success
// and the pipeline counts files, not rows, for this loader.
func (l *Loader) LoadFile(ctx context.Context, path string, opts storage.LoadOptions) (int64, error) {
	if opts.Table == "" {
		return 0, fmt.Errorf("ogr loader: destination table is empty")
	}

	args := buildArgs(l.conn, path, opts)
	out, err := l.run(ctx, l.binary, args)
	if err != nil {
		return 0, fmt.Errorf("ogr loader: %s %s: %w: %s", l.binary, path, err, strings.TrimSpace(string(out)))
	}
	return 0, nil
}

// buildArgs renders the ogr2ogr argument vector for one file load:
// append mode, multipolygon promotion, EPSG:4326 normalization, and
// skip-on-feature-failure.
//
// When provenance carries a year it is injected as a per-row literal via
// OGR SQL. The year must be present at insert time: a year-partitioned
// destination routes rows by that column, and a post-load backfill would
// arrive after Postgres has already rejected the NULL-keyed rows. ogr2ogr
// does not accept -where alongside -sql, so any filter folds into the
// statement's WHERE clause.
func buildArgs(conn, path string, opts storage.LoadOptions) []string {
	args := []string{
		"-f", "PostgreSQL",
		conn,
		path,
		"-nln", opts.Table,
		"-append",
		"-nlt", "MULTIPOLYGON",
		"-t_srs", "EPSG:4326",
		"-skipfailures",
		"-lco", "GEOMETRY_NAME=geom",
	}

	if opts.Provenance.Year > 0 {
		args = append(args, "-sql", buildLayerSQL(path, opts))
	} else if f := opts.Filter; f != nil {
		args = append(args, "-where", fmt.Sprintf(`%s = '%s'`, ogrIdent(f.Property), escapeLiteral(f.Value)))
	}

	return args
}

// buildLayerSQL renders the OGR SQL statement selecting every source field
// plus the batch year as a constant column. The GeoJSON driver names the
// layer after the file's base name without extension.
func buildLayerSQL(path string, opts storage.LoadOptions) string {
	layer := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT *, %d AS year FROM %s`, opts.Provenance.Year, ogrIdent(layer))
	if f := opts.Filter; f != nil {
		fmt.Fprintf(&b, ` WHERE %s = '%s'`, ogrIdent(f.Property), escapeLiteral(f.Value))
	}
	return b.String()
}

func ogrIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func escapeLiteral(s string) string { return strings.ReplaceAll(s, "'", "''") }

func runCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
