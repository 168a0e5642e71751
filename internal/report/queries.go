package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Query is one entry in the example-query library.
type Query struct {
	Name        string
	Description string
	SQL         string
}

// ExampleQueries returns the analysis queries shipped alongside the import.
// Parameter placeholders ($1, ...) are psql-style prepared-statement
// arguments; the rendered file documents each.
func ExampleQueries() []Query {
	return []Query{
		{
			Name:        "rows_per_level",
			Description: "Feature counts across the unified tables.",
			SQL: `SELECT 'regions' AS level, count(*) FROM regions
UNION ALL SELECT 'provinces', count(*) FROM provinces
UNION ALL SELECT 'municipalities', count(*) FROM municipalities
UNION ALL SELECT 'barangays', count(*) FROM barangays;`,
		},
		{
			Name:        "rows_per_year",
			Description: "Per-vintage feature counts for one table. $1 = table is not parameterizable in SQL; edit the table name.",
			SQL: `SELECT "year", count(*)
FROM barangays
GROUP BY "year"
ORDER BY "year";`,
		},
		{
			Name:        "barangays_in_municipality",
			Description: "All barangays of one municipality, newest vintage first. $1 = municipality name.",
			SQL: `SELECT name_3, name_2, name_1, "year"
FROM barangays
WHERE name_2 = $1
ORDER BY "year" DESC, name_3;`,
		},
		{
			Name:        "point_lookup",
			Description: "Which barangay contains a point. $1 = longitude, $2 = latitude.",
			SQL: `SELECT name_3, name_2, name_1, "year"
FROM barangays
WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
ORDER BY "year" DESC;`,
		},
		{
			Name:        "boundary_drift",
			Description: "Area change of one barangay between vintages. $1 = barangay name, $2 = municipality name.",
			SQL: `SELECT "year", ST_Area(geom::geography) / 1e6 AS area_km2
FROM barangays
WHERE name_3 = $1 AND name_2 = $2
ORDER BY "year";`,
		},
		{
			Name:        "partition_inventory",
			Description: "Partitions of one parent table with row estimates. $1 = parent table name.",
			SQL: `SELECT child.relname AS partition, child.reltuples::bigint AS estimated_rows
FROM pg_inherits i
JOIN pg_class parent ON parent.oid = i.inhparent
JOIN pg_class child ON child.oid = i.inhrelid
WHERE parent.relname = $1
ORDER BY child.relname;`,
		},
		{
			Name:        "table_sizes",
			Description: "On-disk size of every admin table, largest first.",
			SQL: `SELECT c.relname, pg_size_pretty(pg_total_relation_size(c.oid)) AS total
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = 'public' AND c.relkind IN ('r', 'p')
ORDER BY pg_total_relation_size(c.oid) DESC;`,
		},
		{
			Name:        "unannotated_rows",
			Description: "Rows whose provenance backfill has not run; should be zero after a clean import.",
			SQL: `SELECT count(*)
FROM barangays
WHERE source_path IS NULL OR admin_level IS NULL OR data_year IS NULL;`,
		},
	}
}

// RenderQueries renders the library as one .sql document.
func RenderQueries(queries []Query, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- Example analysis queries, generated %s\n", now.Format(time.RFC3339))
	for _, q := range queries {
		fmt.Fprintf(&b, "\n-- %s\n-- %s\n%s\n", q.Name, q.Description, q.SQL)
	}
	return b.String()
}

// WriteQueriesFile writes the rendered library into dir with a timestamped
// name and returns the path.
func WriteQueriesFile(dir string, now time.Time) (string, error) {
	name := fmt.Sprintf("example_queries_%s.sql", now.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(RenderQueries(ExampleQueries(), now)), 0o644); err != nil {
		return "", fmt.Errorf("write queries: %w", err)
	}
	return path, nil
}
