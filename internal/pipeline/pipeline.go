// Package pipeline orchestrates one import run: discover GeoJSON files under
// the maps root, classify each, ensure destination schema, load, and annotate.
//
// Error policy: unreachable database and missing maps root are fatal and
// abort the run. Everything per-file is isolated: a file that fails to
// classify is skipped with a warning, a file that fails to load or annotate
// is counted as an error, and the run continues either way.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/classify"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/config"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/geojson"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/metrics"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage/postgres"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Strategy selects the destination table layout for a run.
type Strategy string

const (
	// StrategyUnified loads every year into one table per level.
	StrategyUnified Strategy = "unified"

	// StrategySeparated loads into one table per level per year
	// (regions_2011, regions_2019, ...).
	StrategySeparated Strategy = "separated"

	// StrategyPartitioned is StrategyUnified with barangay tables
	// list-partitioned on the cleaned barangay name.
	StrategyPartitioned Strategy = "partitioned"
)

// barangayKeyProperty is the GeoJSON property the partitioned strategy keys
// barangay partitions on; it maps to the name_3 column.
const barangayKeyProperty = "NAME_3"

// Database is the slice of the postgres repository the runner needs.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Runner executes one import run. The function fields are seams: production
// wiring comes from NewDefaultRunner, tests inject fakes.
type Runner struct {
	Config   config.Config
	Strategy Strategy

	// YearPartitioned list-partitions unified tables by year.
	// Ignored by StrategySeparated.
	YearPartitioned bool

	Logger Logger

	NewDatabase func(ctx context.Context, dsn string) (Database, error)
	NewLoader   func(ctx context.Context, cfg storage.LoaderConfig) (storage.GeometryLoader, error)

	// NameKeys reports the distinct partition-key values in one file.
	NameKeys func(path, property string) ([]string, error)
}

// NewDefaultRunner wires the runner to the real database, loader registry,
// and file scanner.
func NewDefaultRunner(cfg config.Config, strategy Strategy) *Runner {
	return &Runner{
		Config:   cfg,
		Strategy: strategy,
		NewDatabase: func(ctx context.Context, dsn string) (Database, error) {
			return postgres.New(ctx, dsn)
		},
		NewLoader: storage.NewLoader,
		NameKeys:  geojson.DistinctPropertyValuesFile,
	}
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

// Run performs the import and returns the accumulated summary. A non-nil
// error means a fatal precondition failed; per-file failures are reflected
// in the summary instead.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	logf := r.logger()

	if err := r.Config.Validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(r.Config.MapsRoot)
	if err != nil {
		return nil, fmt.Errorf("maps root %s: %w", r.Config.MapsRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("maps root %s: not a directory", r.Config.MapsRoot)
	}

	db, err := r.NewDatabase(ctx, r.Config.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	loader, err := r.NewLoader(ctx, storage.LoaderConfig{
		Kind:    r.Config.LoaderKind,
		DSN:     r.Config.DSN(),
		OgrConn: r.Config.OgrConnString(),
	})
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	defer loader.Close()

	files, err := discover(r.Config.MapsRoot)
	if err != nil {
		return nil, err
	}
	logf("stage=discover files=%d root=%s", len(files), r.Config.MapsRoot)

	summary := NewSummary()
	provisioned := map[string]bool{}
	partitions := map[string]map[string]bool{}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r.importFile(ctx, db, loader, path, summary, provisioned, partitions)
	}

	logPath := r.Config.SummaryLog
	if logPath == "" {
		logPath = config.DefaultSummaryLog
	}
	if err := summary.WriteLog(logPath); err != nil {
		return summary, err
	}
	for _, e := range summary.Entries() {
		logf("stage=summary year=%d level=%s found=%d imported=%d errors=%d",
			e.Year, e.AdminLevel, e.FilesFound, e.Imported, e.Errors)
	}
	return summary, nil
}

// importFile runs the per-file state machine:
// classify → provision (once per table) → ensure partitions → load → annotate.
func (r *Runner) importFile(
	ctx context.Context,
	db Database,
	loader storage.GeometryLoader,
	path string,
	summary *Summary,
	provisioned map[string]bool,
	partitions map[string]map[string]bool,
) {
	logf := r.logger()

	cls, ok := classify.Classify(path)
	if !ok {
		logf("stage=classify status=skipped file=%s reason=unrecognized", path)
		metrics.IncCounter(metrics.MetricFilesTotal, 1, metrics.Labels{"status": "skipped"})
		return
	}

	year, ok := classify.YearFromPath(path)
	if !ok {
		logf("stage=classify status=skipped file=%s reason=no_year", path)
		metrics.IncCounter(metrics.MetricFilesTotal, 1, metrics.Labels{"status": "skipped", "admin_level": string(cls.Level)})
		return
	}

	level := string(cls.Level)
	summary.Found(year, level)

	spec := r.tableSpec(cls, year)

	fail := func(stage string, err error) {
		logf("stage=%s status=error file=%s err=%v", stage, path, err)
		summary.Error(year, level)
		metrics.IncCounter(metrics.MetricFilesTotal, 1, metrics.Labels{"status": "error", "admin_level": level})
	}

	if !provisioned[spec.Name] {
		start := time.Now()
		if err := postgres.Provision(ctx, db, spec); err != nil {
			fail("provision", err)
			return
		}
		provisioned[spec.Name] = true
		logf("stage=provision ok table=%s mode=%s duration=%s", spec.Name, spec.Mode, durMS(start))
	}

	if spec.Mode == storage.PartitionByNameKey {
		if err := r.ensurePartitions(ctx, db, spec, path, partitions); err != nil {
			fail("partition", err)
			return
		}
	}

	prov := storage.Provenance{Year: year, AdminLevel: level, SourcePath: path}

	start := time.Now()
	rows, err := loader.LoadFile(ctx, path, storage.LoadOptions{Table: spec.Name, Provenance: prov})
	if err != nil {
		fail("load", err)
		return
	}
	metrics.ObserveHistogram(metrics.MetricStageDuration, time.Since(start).Seconds(), metrics.Labels{"stage": "load"})
	if rows > 0 {
		metrics.IncCounter(metrics.MetricFeaturesTotal, float64(rows), metrics.Labels{"admin_level": level})
	}

	// Annotate immediately. Deferring this across files would let a later
	// file's provenance claim this file's still-NULL rows.
	if err := postgres.Annotate(ctx, db, spec.Name, prov); err != nil {
		fail("annotate", err)
		return
	}

	summary.Imported(year, level)
	metrics.IncCounter(metrics.MetricFilesTotal, 1, metrics.Labels{"status": "imported", "admin_level": level})
	logf("stage=load ok file=%s table=%s rows=%d duration=%s", path, spec.Name, rows, durMS(start))
}

// tableSpec maps a classification and batch year to the destination table
// under the active strategy.
func (r *Runner) tableSpec(cls classify.Classification, year int) storage.TableSpec {
	switch r.Strategy {
	case StrategySeparated:
		return storage.TableSpec{Name: cls.Level.YearTable(year), Mode: storage.PartitionNone}

	case StrategyPartitioned:
		if cls.Level == classify.LevelBarangay {
			return storage.TableSpec{Name: cls.Table, Mode: storage.PartitionByNameKey, NameKeyColumn: "name_3"}
		}
		return storage.TableSpec{Name: cls.Table, Mode: r.unifiedMode()}

	default:
		return storage.TableSpec{Name: cls.Table, Mode: r.unifiedMode()}
	}
}

func (r *Runner) unifiedMode() storage.PartitionMode {
	if r.YearPartitioned {
		return storage.PartitionByYear
	}
	return storage.PartitionNone
}

// ensurePartitions creates one list partition per distinct raw key value in
// the file. The seen set is keyed on the raw value: two spellings that clean
// to one token (accented and plain) each need their own routable partition.
// The set makes repeat values across files a no-op without a round trip; the
// DDL itself is IF NOT EXISTS, so a cold cache is still safe.
func (r *Runner) ensurePartitions(
	ctx context.Context,
	db Database,
	spec storage.TableSpec,
	path string,
	partitions map[string]map[string]bool,
) error {
	keys, err := r.NameKeys(path, barangayKeyProperty)
	if err != nil {
		return fmt.Errorf("scan %s for %s: %w", path, barangayKeyProperty, err)
	}

	seen := partitions[spec.Name]
	if seen == nil {
		seen = map[string]bool{}
		partitions[spec.Name] = seen
	}

	for _, key := range keys {
		if storage.CleanNameKey(key) == "" || seen[key] {
			continue
		}
		if err := postgres.EnsureNameKeyPartition(ctx, db, spec, key); err != nil {
			return fmt.Errorf("partition for key %q: %w", key, err)
		}
		seen[key] = true
	}
	return nil
}

// discover walks the maps root and returns every .json file in sorted order.
// Sorted order keeps runs deterministic and the summary log stable.
func discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
