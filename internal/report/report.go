// Package report is the read-only comparison layer: it queries the tables
// the import strategies produced and renders a timestamped markdown report,
// plus a library of example analysis queries.
//
// Nothing in this package writes to the database.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Database is the read surface the collector needs; *postgres.Repo
// satisfies it.
type Database interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TableStat is one table's collected figures. Err is set when the table
// does not exist (a strategy that was never run); the report renders it
// as unavailable rather than failing.
type TableStat struct {
	Table      string
	Rows       int64
	RowsByYear map[int]int64
	Bytes      int64
	Partitions int64
	Err        error
}

// Report is a collected comparison across tables.
type Report struct {
	GeneratedAt time.Time
	Years       []int
	Stats       []TableStat
}

// pgIdent quotes an identifier for Postgres.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func buildCountSQL(table string) string {
	return fmt.Sprintf(`SELECT count(*) FROM %s;`, pgIdent(table))
}

func buildYearCountSQL(table string) string {
	return fmt.Sprintf(`SELECT count(*) FROM %s WHERE "year" = $1;`, pgIdent(table))
}

// buildSizeSQL reports total on-disk size including indexes and, for
// partitioned parents, all partitions.
func buildSizeSQL() string {
	return `SELECT COALESCE(sum(pg_total_relation_size(c.oid)), 0)
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = 'public'
  AND (c.relname = $1 OR c.relname LIKE $1 || '\_%');`
}

func buildPartitionCountSQL() string {
	return `SELECT count(*)
FROM pg_inherits i
JOIN pg_class parent ON parent.oid = i.inhparent
WHERE parent.relname = $1;`
}

// Collect gathers stats for the given tables. Per-table failures (typically
// "relation does not exist" for strategies that were never run) are recorded
// on the stat, not returned.
func Collect(ctx context.Context, db Database, tables []string, years []int, now time.Time) *Report {
	rep := &Report{GeneratedAt: now, Years: years}

	for _, table := range tables {
		st := TableStat{Table: table, RowsByYear: make(map[int]int64)}

		if err := db.QueryRow(ctx, buildCountSQL(table)).Scan(&st.Rows); err != nil {
			st.Err = err
			rep.Stats = append(rep.Stats, st)
			continue
		}

		for _, y := range years {
			var n int64
			if err := db.QueryRow(ctx, buildYearCountSQL(table), y).Scan(&n); err == nil {
				st.RowsByYear[y] = n
			}
		}

		if err := db.QueryRow(ctx, buildSizeSQL(), table).Scan(&st.Bytes); err != nil {
			st.Err = err
		}
		if err := db.QueryRow(ctx, buildPartitionCountSQL(), table).Scan(&st.Partitions); err != nil {
			st.Err = err
		}

		rep.Stats = append(rep.Stats, st)
	}

	return rep
}

// Markdown renders the comparison report.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Import strategy comparison\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	b.WriteString("| table | rows |")
	for _, y := range r.Years {
		fmt.Fprintf(&b, " rows %d |", y)
	}
	b.WriteString(" size | partitions |\n")

	b.WriteString("|---|---|")
	for range r.Years {
		b.WriteString("---|")
	}
	b.WriteString("---|---|\n")

	for _, st := range r.Stats {
		if st.Err != nil {
			fmt.Fprintf(&b, "| %s | n/a |", st.Table)
			for range r.Years {
				b.WriteString(" n/a |")
			}
			b.WriteString(" n/a | n/a |\n")
			continue
		}
		fmt.Fprintf(&b, "| %s | %d |", st.Table, st.Rows)
		for _, y := range r.Years {
			fmt.Fprintf(&b, " %d |", st.RowsByYear[y])
		}
		fmt.Fprintf(&b, " %s | %d |\n", humanBytes(st.Bytes), st.Partitions)
	}

	var missing []string
	for _, st := range r.Stats {
		if st.Err != nil {
			missing = append(missing, st.Table)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "\nTables not found (strategy not run?): %s\n", strings.Join(missing, ", "))
	}

	return b.String()
}

// WriteFile writes the markdown report into dir with a timestamped name and
// returns the path.
func (r *Report) WriteFile(dir string) (string, error) {
	name := fmt.Sprintf("strategy_comparison_%s.md", r.GeneratedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(r.Markdown()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
