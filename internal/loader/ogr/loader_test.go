package ogr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	args := buildArgs("PG:host=localhost dbname=gis", "maps/2019/geojson/regions/r.json", storage.LoadOptions{Table: "regions"})

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-f PostgreSQL",
		"PG:host=localhost dbname=gis",
		"maps/2019/geojson/regions/r.json",
		"-nln regions",
		"-append",
		"-nlt MULTIPOLYGON",
		"-t_srs EPSG:4326",
		"-skipfailures",
		"GEOMETRY_NAME=geom",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if strings.Contains(joined, "-where") {
		t.Errorf("unexpected -where without filter: %s", joined)
	}
	if strings.Contains(joined, "-sql") {
		t.Errorf("unexpected -sql without provenance year: %s", joined)
	}
}

// A provenance year must reach the destination as a per-row literal: a
// year-partitioned table routes rows on that column at insert time, before
// any backfill can run.
func TestBuildArgs_YearLiteral(t *testing.T) {
	t.Parallel()

	args := buildArgs("PG:dbname=gis", "maps/2011/geojson/regions/regions-a.json", storage.LoadOptions{
		Table:      "regions",
		Provenance: storage.Provenance{Year: 2011, AdminLevel: "region"},
	})

	var sql string
	for i, a := range args {
		if a == "-sql" && i+1 < len(args) {
			sql = args[i+1]
		}
	}
	if sql != `SELECT *, 2011 AS year FROM "regions-a"` {
		t.Fatalf("-sql statement = %q", sql)
	}
	if strings.Contains(strings.Join(args, " "), "-where") {
		t.Errorf("-where must not be combined with -sql: %v", args)
	}
}

func TestBuildArgs_YearLiteralWithFilter(t *testing.T) {
	t.Parallel()

	args := buildArgs("PG:dbname=gis", "barangays-municity-x.json", storage.LoadOptions{
		Table:      "barangays",
		Provenance: storage.Provenance{Year: 2019},
		Filter:     &storage.Filter{Property: "NAME_3", Column: "name_3", Value: "O'Donnell"},
	})

	var sql string
	for i, a := range args {
		if a == "-sql" && i+1 < len(args) {
			sql = args[i+1]
		}
	}
	if sql != `SELECT *, 2019 AS year FROM "barangays-municity-x" WHERE "NAME_3" = 'O''Donnell'` {
		t.Fatalf("-sql statement = %q", sql)
	}
	if strings.Contains(strings.Join(args, " "), "-where") {
		t.Errorf("-where must not be combined with -sql: %v", args)
	}
}

func TestBuildArgs_Filter(t *testing.T) {
	t.Parallel()

	args := buildArgs("PG:dbname=gis", "b.json", storage.LoadOptions{
		Table:  "barangays",
		Filter: &storage.Filter{Property: "NAME_3", Column: "name_3", Value: "O'Donnell"},
	})

	var where string
	for i, a := range args {
		if a == "-where" && i+1 < len(args) {
			where = args[i+1]
		}
	}
	if where != `"NAME_3" = 'O''Donnell'` {
		t.Fatalf("where clause = %q", where)
	}
}

func TestLoadFile_RunsCommand(t *testing.T) {
	t.Parallel()

	var gotName string
	var gotArgs []string
	l := &Loader{
		conn:   "PG:dbname=gis",
		binary: "ogr2ogr",
		run: func(ctx context.Context, name string, args []string) ([]byte, error) {
			gotName = name
			gotArgs = args
			return nil, nil
		},
	}

	n, err := l.LoadFile(context.Background(), "r.json", storage.LoadOptions{
		Table:      "regions",
		Provenance: storage.Provenance{Year: 2019},
	})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if n != 0 {
		t.Fatalf("row count should be unknown (0), got %d", n)
	}
	if gotName != "ogr2ogr" || len(gotArgs) == 0 {
		t.Fatalf("command not invoked: %s %v", gotName, gotArgs)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "2019 AS year") {
		t.Fatalf("year literal missing from invocation: %v", gotArgs)
	}
}

func TestLoadFile_CommandFailure(t *testing.T) {
	t.Parallel()

	l := &Loader{
		conn:   "PG:dbname=gis",
		binary: "ogr2ogr",
		run: func(ctx context.Context, name string, args []string) ([]byte, error) {
			return []byte("ERROR 1: Unable to open datasource"), errors.New("exit status 1")
		},
	}

	_, err := l.LoadFile(context.Background(), "broken.json", storage.LoadOptions{Table: "regions"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Unable to open datasource") {
		t.Errorf("error should carry tool output: %v", err)
	}

	if _, err := l.LoadFile(context.Background(), "x.json", storage.LoadOptions{}); err == nil {
		t.Error("expected error for empty table")
	}
}
