package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/classify"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

// Provision drops and recreates the destination table for spec, then creates
// any eagerly-known partitions and the spatial index.
//
// Provisioning is deliberately destructive: re-running it resets the table.
// Callers must treat it as non-additive and provision each table at most once
// per run, before the first load into it.
func Provision(ctx context.Context, db Execer, spec storage.TableSpec) error {
	stmts, err := buildProvisionSQL(spec)
	if err != nil {
		return err
	}
	for _, sql := range stmts {
		if _, err := db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("provision %s: %w", spec.Name, err)
		}
	}
	return nil
}

// EnsureNameKeyPartition lazily creates the list partition holding rows whose
// name-key column equals value. Creating an existing partition is a no-op,
// not an error.
func EnsureNameKeyPartition(ctx context.Context, db Execer, spec storage.TableSpec, value string) error {
	sql, err := buildNameKeyPartitionSQL(spec, value)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ensure partition of %s for %q: %w", spec.Name, value, err)
	}
	return nil
}

// buildProvisionSQL returns the ordered statements for a destructive
// (re)create of the table described by spec: drop, create, eager partitions,
// spatial index.
func buildProvisionSQL(spec storage.TableSpec) ([]string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("provision: table name is empty")
	}
	if spec.Mode == storage.PartitionByNameKey && strings.TrimSpace(spec.NameKeyColumn) == "" {
		return nil, fmt.Errorf("provision: table %s: by_name_key requires NameKeyColumn", spec.Name)
	}

	createSQL, err := buildCreateTableSQL(spec)
	if err != nil {
		return nil, err
	}

	stmts := []string{
		buildDropTableSQL(spec.Name),
		createSQL,
	}

	if spec.Mode == storage.PartitionByYear {
		for _, year := range classify.KnownYears {
			stmts = append(stmts, buildYearPartitionSQL(spec.Name, year))
		}
	}

	stmts = append(stmts, buildGeomIndexSQL(spec.Name))
	return stmts, nil
}

func buildDropTableSQL(table string) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE;`, pgIdent(table))
}

// buildCreateTableSQL renders the CREATE TABLE statement with the fixed
// admin-attribute column set, a geometry column, and timestamps.
//
// Partitioned tables carry no primary key: Postgres requires the partition
// key in any unique constraint, and the surrogate id alone never qualifies.
func buildCreateTableSQL(spec storage.TableSpec) (string, error) {
	cols := make([]string, 0, len(storage.AdminColumns)+4)

	if spec.Mode == storage.PartitionNone {
		cols = append(cols, `"id" bigserial PRIMARY KEY`)
	} else {
		cols = append(cols, `"id" bigserial`)
	}

	for _, c := range storage.AdminColumns {
		def := fmt.Sprintf(`%s %s`, pgIdent(c.Name), c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}

	cols = append(cols,
		`"geom" geometry(MULTIPOLYGON, 4326)`,
		`"created_at" timestamptz NOT NULL DEFAULT now()`,
		`"updated_at" timestamptz NOT NULL DEFAULT now()`,
	)

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(pgIdent(spec.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(")")

	switch spec.Mode {
	case storage.PartitionNone:
		// plain table
	case storage.PartitionByYear:
		b.WriteString(` PARTITION BY LIST ("year")`)
	case storage.PartitionByNameKey:
		b.WriteString(fmt.Sprintf(` PARTITION BY LIST (%s)`, pgIdent(spec.NameKeyColumn)))
	default:
		return "", fmt.Errorf("provision: table %s: unsupported partition mode %q", spec.Name, spec.Mode)
	}

	b.WriteString(";")
	return b.String(), nil
}

// buildYearPartitionSQL renders the eager per-year list partition,
// e.g. barangays_y2011 FOR VALUES IN (2011).
func buildYearPartitionSQL(table string, year int) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES IN (%d);`,
		pgIdent(fmt.Sprintf("%s_y%d", table, year)), pgIdent(table), year,
	)
}

// buildNameKeyPartitionSQL renders a lazy list partition for one name-key
// value. The partition name is a pure function of the raw value, so the
// statement is stable (and therefore idempotent via IF NOT EXISTS) across
// files and runs.
func buildNameKeyPartitionSQL(spec storage.TableSpec, value string) (string, error) {
	if spec.Mode != storage.PartitionByNameKey {
		return "", fmt.Errorf("partition: table %s is not name-key partitioned", spec.Name)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("partition: table %s: empty name-key value", spec.Name)
	}
	if storage.CleanNameKey(value) == "" {
		return "", fmt.Errorf("partition: table %s: value %q cleans to empty key", spec.Name, value)
	}

	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES IN (%s);`,
		pgIdent(nameKeyPartitionName(spec.Name, value)), pgIdent(spec.Name), pgLiteral(value),
	), nil
}

// nameKeyPartitionName derives the partition identifier for one raw key
// value. Distinct raw values can clean to the same token (an accented and a
// plain spelling of the same name), and each needs its own routable
// partition, so the readable token carries a short hash of the raw value.
func nameKeyPartitionName(table, value string) string {
	h := fnv.New32a()
	h.Write([]byte(value))
	suffix := fmt.Sprintf("_%08x", h.Sum32())

	clean := storage.CleanNameKey(value)
	name := table + "_p_" + clean + suffix

	// Postgres silently truncates identifiers past 63 bytes, which would cut
	// off the disambiguating hash; truncate the readable token instead.
	const maxIdent = 63
	if over := len(name) - maxIdent; over > 0 {
		clean = strings.TrimRight(clean[:len(clean)-over], "_")
		name = table + "_p_" + clean + suffix
	}
	return name
}

func buildGeomIndexSQL(table string) string {
	return fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING GIST ("geom");`,
		pgIdent("idx_"+table+"_geom"), pgIdent(table),
	)
}
