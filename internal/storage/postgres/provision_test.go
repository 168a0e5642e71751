package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

// fakeExecer records executed statements.
type fakeExecer struct {
	stmts []string
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}

func TestBuildCreateTableSQL_Plain(t *testing.T) {
	t.Parallel()

	sql, err := buildCreateTableSQL(storage.TableSpec{Name: "regions", Mode: storage.PartitionNone})
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}

	for _, want := range []string{
		`CREATE TABLE "regions"`,
		`"id" bigserial PRIMARY KEY`,
		`"name_1" varchar(100)`,
		`"nl_name_3" varchar(100)`,
		`"engtype_2" varchar(50)`,
		`"admin_level" varchar(20)`,
		`"source_path" text`,
		`"data_year" integer`,
		`"geom" geometry(MULTIPOLYGON, 4326)`,
		`"created_at" timestamptz`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("create SQL missing %q: %s", want, sql)
		}
	}
	if strings.Contains(sql, "PARTITION BY") {
		t.Errorf("plain table must not be partitioned: %s", sql)
	}
}

func TestBuildCreateTableSQL_ByYear(t *testing.T) {
	t.Parallel()

	sql, err := buildCreateTableSQL(storage.TableSpec{Name: "barangays", Mode: storage.PartitionByYear})
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	if !strings.Contains(sql, `PARTITION BY LIST ("year")`) {
		t.Fatalf("missing year partitioning clause: %s", sql)
	}
	// Partitioned tables cannot carry the surrogate-id primary key.
	if strings.Contains(sql, "PRIMARY KEY") {
		t.Fatalf("partitioned table must not declare PRIMARY KEY: %s", sql)
	}
}

func TestBuildProvisionSQL_DropsBeforeCreate(t *testing.T) {
	t.Parallel()

	stmts, err := buildProvisionSQL(storage.TableSpec{Name: "provinces", Mode: storage.PartitionNone})
	if err != nil {
		t.Fatalf("buildProvisionSQL: %v", err)
	}

	if !strings.HasPrefix(stmts[0], `DROP TABLE IF EXISTS "provinces"`) {
		t.Fatalf("first statement must drop the table: %q", stmts[0])
	}
	if !strings.HasPrefix(stmts[1], `CREATE TABLE "provinces"`) {
		t.Fatalf("second statement must create the table: %q", stmts[1])
	}
	last := stmts[len(stmts)-1]
	if !strings.Contains(last, "USING GIST") {
		t.Fatalf("last statement must create the spatial index: %q", last)
	}
}

// Provisioning twice must produce the identical statement sequence: the reset
// is destructive recreate, not additive duplication.
func TestProvision_DestructiveIdempotence(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{Name: "barangays", Mode: storage.PartitionByYear}

	first := &fakeExecer{}
	if err := Provision(context.Background(), first, spec); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	second := &fakeExecer{}
	if err := Provision(context.Background(), second, spec); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if len(first.stmts) != len(second.stmts) {
		t.Fatalf("statement counts differ: %d vs %d", len(first.stmts), len(second.stmts))
	}
	for i := range first.stmts {
		if first.stmts[i] != second.stmts[i] {
			t.Errorf("statement %d differs:\n%s\n%s", i, first.stmts[i], second.stmts[i])
		}
	}

	// One eager partition per known year.
	partitions := 0
	for _, s := range first.stmts {
		if strings.Contains(s, "PARTITION OF") {
			partitions++
		}
	}
	if partitions != 3 {
		t.Errorf("expected 3 year partitions, got %d", partitions)
	}
}

func TestBuildYearPartitionSQL(t *testing.T) {
	t.Parallel()

	sql := buildYearPartitionSQL("barangays", 2019)
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS",
		`"barangays_y2019"`,
		`PARTITION OF "barangays"`,
		"FOR VALUES IN (2019)",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("partition SQL missing %q: %s", want, sql)
		}
	}
}

func TestBuildNameKeyPartitionSQL(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:          "barangays",
		Mode:          storage.PartitionByNameKey,
		NameKeyColumn: "name_3",
	}

	sql, err := buildNameKeyPartitionSQL(spec, "Peñarrubia")
	if err != nil {
		t.Fatalf("buildNameKeyPartitionSQL: %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS",
		`"barangays_p_penarrubia_`,
		"FOR VALUES IN ('Peñarrubia')",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("partition SQL missing %q: %s", want, sql)
		}
	}

	// Literal escaping for names containing quotes.
	sql, err = buildNameKeyPartitionSQL(spec, "O'Donnell")
	if err != nil {
		t.Fatalf("buildNameKeyPartitionSQL: %v", err)
	}
	if !strings.Contains(sql, "('O''Donnell')") {
		t.Errorf("single quote not escaped: %s", sql)
	}
}

// Distinct raw values that clean to the same token must get distinct
// partitions; otherwise one spelling claims the partition and the other has
// no routable destination.
func TestBuildNameKeyPartitionSQL_CleanTokenCollision(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{Name: "barangays", Mode: storage.PartitionByNameKey, NameKeyColumn: "name_3"}

	accented, err := buildNameKeyPartitionSQL(spec, "Santo Niño")
	if err != nil {
		t.Fatalf("buildNameKeyPartitionSQL: %v", err)
	}
	plain, err := buildNameKeyPartitionSQL(spec, "Santo Nino")
	if err != nil {
		t.Fatalf("buildNameKeyPartitionSQL: %v", err)
	}

	if na, np := nameKeyPartitionName("barangays", "Santo Niño"), nameKeyPartitionName("barangays", "Santo Nino"); na == np {
		t.Fatalf("colliding values share a partition name: %q", na)
	}
	if !strings.Contains(accented, "('Santo Niño')") {
		t.Errorf("accented value absent from its partition list: %s", accented)
	}
	if !strings.Contains(plain, "('Santo Nino')") {
		t.Errorf("plain value absent from its partition list: %s", plain)
	}
}

func TestNameKeyPartitionName(t *testing.T) {
	t.Parallel()

	// Same value, same name, every time.
	if a, b := nameKeyPartitionName("barangays", "Bagong Silang"), nameKeyPartitionName("barangays", "Bagong Silang"); a != b {
		t.Fatalf("name is not deterministic: %q vs %q", a, b)
	}
	if got := nameKeyPartitionName("barangays", "Bagong Silang"); !strings.HasPrefix(got, "barangays_p_bagong_silang_") {
		t.Fatalf("name = %q, want barangays_p_bagong_silang_<hash>", got)
	}

	// Long values must fit the 63-byte identifier limit with the hash intact.
	long := nameKeyPartitionName("barangays", strings.Repeat("Poblacion ", 12))
	if len(long) > 63 {
		t.Fatalf("name exceeds identifier limit: %d bytes: %q", len(long), long)
	}
	if len(long) < 63-1 {
		t.Fatalf("truncation removed more than needed: %q", long)
	}
}

// The same value must render the same statement every time, so that repeated
// EnsureNameKeyPartition calls are no-ops via IF NOT EXISTS.
func TestEnsureNameKeyPartition_IdempotentStatement(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{Name: "barangays", Mode: storage.PartitionByNameKey, NameKeyColumn: "name_3"}
	db := &fakeExecer{}

	for i := 0; i < 3; i++ {
		if err := EnsureNameKeyPartition(context.Background(), db, spec, "Bagong Silang"); err != nil {
			t.Fatalf("EnsureNameKeyPartition: %v", err)
		}
	}

	if len(db.stmts) != 3 {
		t.Fatalf("expected 3 executions, got %d", len(db.stmts))
	}
	if db.stmts[0] != db.stmts[1] || db.stmts[1] != db.stmts[2] {
		t.Fatalf("repeated partition statements differ: %v", db.stmts)
	}
	if !strings.Contains(db.stmts[0], "IF NOT EXISTS") {
		t.Fatalf("partition creation must be IF NOT EXISTS: %s", db.stmts[0])
	}
}

func TestBuildProvisionSQL_Validation(t *testing.T) {
	t.Parallel()

	if _, err := buildProvisionSQL(storage.TableSpec{Name: ""}); err == nil {
		t.Error("expected error for empty table name")
	}
	if _, err := buildProvisionSQL(storage.TableSpec{Name: "barangays", Mode: storage.PartitionByNameKey}); err == nil {
		t.Error("expected error for by_name_key without NameKeyColumn")
	}
	if _, err := buildNameKeyPartitionSQL(storage.TableSpec{Name: "x", Mode: storage.PartitionByNameKey, NameKeyColumn: "name_3"}, "---"); err == nil {
		t.Error("expected error for value cleaning to empty key")
	}
}
