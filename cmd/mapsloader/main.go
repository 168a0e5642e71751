// Command mapsloader loads Philippines administrative-boundary GeoJSON into
// PostgreSQL/PostGIS under one of three schema strategies, and ships the
// read-only comparison tooling for them.
//
// Exit status: 0 on success and on runs with per-file errors (those are
// reported in the summary); non-zero only when a fatal precondition fails
// (unreachable database, missing maps root, bad flags).
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/classify"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/config"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/metrics"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/metrics/datadog"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/pipeline"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/report"
	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage/postgres"

	// Register the available GeometryLoader implementations.
	_ "github.com/AndrewHamiliDevelopment/json-maps-docker/internal/loader/native"
	_ "github.com/AndrewHamiliDevelopment/json-maps-docker/internal/loader/ogr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		metricsBackend string
		metricsTags    string
		metricsCloser  *datadog.Backend
	)

	root := &cobra.Command{
		Use:   "mapsloader",
		Short: "Load Philippines administrative-boundary GeoJSON into PostGIS",
		Long: `mapsloader ingests regions, provinces, municipalities, and barangays
(vintages 2011, 2019, 2023) from a maps/<year>/geojson tree into
PostgreSQL/PostGIS.

Three table strategies are available:
  import              one table per level, optionally list-partitioned by year
  import-yearly       one table per level per year (regions_2011, ...)
  import-partitioned  unified tables with barangays list-partitioned by name

Database connection comes from DB_HOST, DB_PORT, DB_NAME, DB_USER,
DB_PASSWORD (or a .env file); the scan root from MAPS_ROOT.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			kind := metricsBackend
			if kind == "" {
				kind = os.Getenv("METRICS_BACKEND")
			}
			switch kind {
			case "", "none":
				return nil
			case "datadog":
				b, err := datadog.NewBackend(cmd.Context(), datadog.Options{
					Tags: datadog.ParseTagsCSV(metricsTags),
				})
				if err != nil {
					return fmt.Errorf("metrics backend: %w", err)
				}
				metrics.SetBackend(b)
				metricsCloser = b
				return nil
			default:
				return fmt.Errorf("unknown metrics backend %q", kind)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if metricsCloser != nil {
				if err := metricsCloser.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "metrics flush: %v\n", err)
				}
			}
		},
	}

	root.PersistentFlags().StringVar(&metricsBackend, "metrics", "",
		`metrics backend ("datadog", "none"); defaults to $METRICS_BACKEND, else none`)
	root.PersistentFlags().StringVar(&metricsTags, "metrics-tags", "",
		"extra metrics tags, comma separated (key:value)")

	root.AddCommand(newImportCmd())
	root.AddCommand(newImportYearlyCmd())
	root.AddCommand(newImportPartitionedCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newQueriesCmd())
	return root
}

// importFlags are shared by the three import subcommands.
type importFlags struct {
	root   string
	loader string
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.root, "root", "", "maps root to scan (overrides MAPS_ROOT)")
	cmd.Flags().StringVar(&f.loader, "loader", "", `geometry loader ("native", "ogr2ogr"; overrides LOADER_KIND)`)
}

func newImportCmd() *cobra.Command {
	var flags importFlags
	var byYear bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import all vintages into unified tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, pipeline.StrategyUnified, byYear, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&byYear, "partition-by-year", false, "list-partition the unified tables on the year column")
	return cmd
}

func newImportYearlyCmd() *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import-yearly",
		Short: "Import into one table per level per year",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, pipeline.StrategySeparated, false, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newImportPartitionedCmd() *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import-partitioned",
		Short: "Import with barangays list-partitioned by barangay name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, pipeline.StrategyPartitioned, false, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runImport(cmd *cobra.Command, strategy pipeline.Strategy, byYear bool, flags importFlags) error {
	cfg, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if flags.root != "" {
		cfg.MapsRoot = flags.root
	}
	if flags.loader != "" {
		cfg.LoaderKind = flags.loader
	}

	r := pipeline.NewDefaultRunner(cfg, strategy)
	r.YearPartitioned = byYear
	r.Logger = log.New(os.Stderr, "", log.LstdFlags)

	summary, err := r.Run(cmd.Context())
	if err != nil {
		return err
	}

	printSummary(summary)
	if err := metrics.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "metrics flush: %v\n", err)
	}
	return nil
}

func printSummary(s *pipeline.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Println("year  level         found  imported  errors")
	for _, e := range s.Entries() {
		mark := green("OK")
		if e.Errors > 0 {
			mark = yellow(fmt.Sprintf("%d errors", e.Errors))
		}
		fmt.Printf("%d  %-13s %5d  %8d  %s\n", e.Year, e.AdminLevel, e.FilesFound, e.Imported, mark)
	}

	t := s.Totals()
	if t.Errors > 0 {
		fmt.Printf("total: %d files, %d imported, %s\n", t.FilesFound, t.Imported, red(fmt.Sprintf("%d errors", t.Errors)))
		return
	}
	fmt.Printf("total: %d files, %d imported, %s\n", t.FilesFound, t.Imported, green("no errors"))
}

func newReportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a strategy comparison report (read-only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadEnv()
			if err != nil {
				return err
			}

			db, err := postgres.New(cmd.Context(), cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			rep := report.Collect(cmd.Context(), db, comparisonTables(), classify.KnownYears, time.Now())
			path, err := rep.WriteFile(outDir)
			if err != nil {
				return err
			}
			fmt.Printf("report written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for the report file")
	return cmd
}

func newQueriesCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Write the example analysis query library",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := report.WriteQueriesFile(outDir, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("queries written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for the queries file")
	return cmd
}

// comparisonTables lists every table any strategy can produce, so the report
// covers whichever strategies were actually run.
func comparisonTables() []string {
	levels := []classify.Level{
		classify.LevelRegion,
		classify.LevelProvince,
		classify.LevelMunicipality,
		classify.LevelBarangay,
	}

	var tables []string
	for _, l := range levels {
		tables = append(tables, l.Table())
	}
	for _, l := range levels {
		for _, y := range classify.KnownYears {
			tables = append(tables, l.YearTable(y))
		}
	}
	return tables
}
