package postgres

import (
	"context"
	"fmt"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

// Annotate backfills provenance columns for rows the loader could not tag
// inline. Each update is gated on the column currently being NULL, so rows
// annotated by an earlier file in the same batch are never clobbered.
//
// ORDERING HAZARD: the NULL gate is the only thing scoping these updates.
// If two files are loaded before either is annotated, the first annotate
// call claims both files' rows. The pipeline therefore runs Annotate
// immediately after each file's load; callers must preserve that
// interleaving.
func Annotate(ctx context.Context, db Execer, table string, prov storage.Provenance) error {
	type backfill struct {
		column string
		value  any
	}

	fills := []backfill{
		{"year", prov.Year},
		{"data_year", prov.Year},
		{"admin_level", prov.AdminLevel},
		{"source_path", prov.SourcePath},
	}

	for _, f := range fills {
		sql := buildBackfillSQL(table, f.column)
		if _, err := db.Exec(ctx, sql, f.value); err != nil {
			return fmt.Errorf("annotate %s.%s: %w", table, f.column, err)
		}
	}
	return nil
}

// buildBackfillSQL renders one NULL-gated provenance update. Pure so the
// gating can be asserted without a database.
func buildBackfillSQL(table, column string) string {
	return fmt.Sprintf(
		`UPDATE %s SET %s = $1, "updated_at" = now() WHERE %s IS NULL;`,
		pgIdent(table), pgIdent(column), pgIdent(column),
	)
}
