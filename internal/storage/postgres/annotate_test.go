package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

func TestBuildBackfillSQL_NullGated(t *testing.T) {
	t.Parallel()

	sql := buildBackfillSQL("regions", "year")
	for _, want := range []string{
		`UPDATE "regions"`,
		`SET "year" = $1`,
		`"updated_at" = now()`,
		`WHERE "year" IS NULL`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("backfill SQL missing %q: %s", want, sql)
		}
	}
}

type recordingExecer struct {
	stmts []string
	args  [][]any
}

func (f *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, nil
}

func TestAnnotate_BackfillsAllProvenanceColumns(t *testing.T) {
	t.Parallel()

	db := &recordingExecer{}
	prov := storage.Provenance{Year: 2023, AdminLevel: "region", SourcePath: "maps/2023/geojson/regions/r1.json"}

	if err := Annotate(context.Background(), db, "regions", prov); err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	if len(db.stmts) != 4 {
		t.Fatalf("expected 4 backfill statements, got %d", len(db.stmts))
	}

	wantCols := []string{"year", "data_year", "admin_level", "source_path"}
	wantArgs := []any{2023, 2023, "region", "maps/2023/geojson/regions/r1.json"}
	for i, col := range wantCols {
		if !strings.Contains(db.stmts[i], pgIdent(col)+" IS NULL") {
			t.Errorf("statement %d not gated on %s IS NULL: %s", i, col, db.stmts[i])
		}
		if len(db.args[i]) != 1 || db.args[i][0] != wantArgs[i] {
			t.Errorf("statement %d args = %v, want [%v]", i, db.args[i], wantArgs[i])
		}
	}
}

// memTable models the NULL-gated update semantics the backfill statements
// have in Postgres, so the batching hazard can be demonstrated directly.
type memTable struct {
	rows []map[string]any
}

func (m *memTable) insert(n int) {
	for i := 0; i < n; i++ {
		m.rows = append(m.rows, map[string]any{"year": nil})
	}
}

// backfill applies "SET col = v WHERE col IS NULL".
func (m *memTable) backfill(col string, v any) {
	for _, r := range m.rows {
		if r[col] == nil {
			r[col] = v
		}
	}
}

func (m *memTable) countWhere(col string, v any) int {
	n := 0
	for _, r := range m.rows {
		if r[col] == v {
			n++
		}
	}
	return n
}

// Batching the annotation step after multiple loads cross-contaminates:
// annotating with the second batch's year claims the first batch's rows too.
// Interleaving load and annotate per file keeps each file's rows correctly
// tagged. The pipeline relies on the interleaved ordering.
func TestNullGatedAnnotation_InterleavingAvoidsCrossContamination(t *testing.T) {
	t.Parallel()

	// Batched: load B1 (2011), load B2 (2019), then annotate once with 2019.
	batched := &memTable{}
	batched.insert(5) // B1
	batched.insert(3) // B2
	batched.backfill("year", 2019)

	if got := batched.countWhere("year", 2019); got != 8 {
		t.Fatalf("batched annotation should claim all 8 rows, got %d", got)
	}
	if got := batched.countWhere("year", 2011); got != 0 {
		t.Fatalf("batched annotation leaves no rows for 2011, got %d", got)
	}

	// Interleaved: each file's rows are annotated before the next load.
	interleaved := &memTable{}
	interleaved.insert(5)
	interleaved.backfill("year", 2011)
	interleaved.insert(3)
	interleaved.backfill("year", 2019)

	if got := interleaved.countWhere("year", 2011); got != 5 {
		t.Errorf("interleaved: want 5 rows tagged 2011, got %d", got)
	}
	if got := interleaved.countWhere("year", 2019); got != 3 {
		t.Errorf("interleaved: want 3 rows tagged 2019, got %d", got)
	}
}
