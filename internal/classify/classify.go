// Package classify maps discovered GeoJSON file paths to an administrative
// level and a destination table.
//
// Two naming conventions coexist in the source data and both are encoded
// explicitly rather than inferred:
//
//	2011/2019: provinces/, municties/ (sic) or municities/, barangays/
//	           provinces-region-*.json, municities-province-*.json,
//	           barangays-municity-*.json
//	2023:      provdists/, bgysubmuns/
//	           provdists-region-*.json, municities-provdist-*.json,
//	           bgysubmuns-municity-*.json
//
// Resolution subdirectories (lowres/medres/hires) are orthogonal tags and
// never influence classification.
package classify

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Level is one tier of the region → province → municipality → barangay
// nesting.
type Level string

const (
	LevelRegion       Level = "region"
	LevelProvince     Level = "province"
	LevelMunicipality Level = "municipality"
	LevelBarangay     Level = "barangay"
)

// Table returns the unified destination table for the level.
func (l Level) Table() string {
	switch l {
	case LevelRegion:
		return "regions"
	case LevelProvince:
		return "provinces"
	case LevelMunicipality:
		return "municipalities"
	case LevelBarangay:
		return "barangays"
	}
	return ""
}

// YearTable returns the year-separated destination table for the level,
// e.g. "regions_2011".
func (l Level) YearTable(year int) string {
	return l.Table() + "_" + strconv.Itoa(year)
}

// Classification is the result of classifying one file path.
type Classification struct {
	Level Level
	Table string
}

// dirRules are the directory-segment rules, in precedence order. First match
// wins.
var dirRules = []struct {
	segment string
	level   Level
}{
	{"regions", LevelRegion},
	{"provinces", LevelProvince},
	{"provdists", LevelProvince},
	{"municties", LevelMunicipality},
	{"municities", LevelMunicipality},
	{"bgysubmuns", LevelMunicipality},
	{"barangays", LevelBarangay},
}

// prefixRules map file-name prefixes to destination tables. Both year
// conventions resolve to the same three tables.
var prefixRules = []struct {
	prefix string
	level  Level
}{
	{"provdists-region-", LevelRegion},
	{"provinces-region-", LevelRegion},
	{"municities-provdist-", LevelProvince},
	{"municities-province-", LevelProvince},
	{"bgysubmuns-municity-", LevelMunicipality},
	{"barangays-municity-", LevelMunicipality},
	{"regions-", LevelRegion},
}

// Classify maps a file path to its administrative level and unified table
// name. ok is false when no rule matches; such files are skipped by the
// pipeline (logged as a warning, not counted as errors).
func Classify(path string) (Classification, bool) {
	norm := filepath.ToSlash(path)

	for _, r := range dirRules {
		if strings.Contains(norm, "/"+r.segment+"/") {
			return Classification{Level: r.level, Table: r.level.Table()}, true
		}
	}

	base := filepath.Base(norm)
	for _, r := range prefixRules {
		if strings.HasPrefix(base, r.prefix) {
			return Classification{Level: r.level, Table: r.level.Table()}, true
		}
	}

	return Classification{}, false
}

// Resolution returns the resolution tag (lowres, medres, hires) found in the
// path, or "" when none is present. Resolution is metadata only.
func Resolution(path string) string {
	norm := filepath.ToSlash(path)
	for _, res := range []string{"lowres", "medres", "hires"} {
		if strings.Contains(norm, "/"+res+"/") {
			return res
		}
	}
	return ""
}

// KnownYears are the data vintages the pipeline pre-provisions partitions
// for.
var KnownYears = []int{2011, 2019, 2023}

// YearFromPath extracts the batch year from a maps/<year>/geojson/... path.
// Any four-digit path segment parseable as one of the known years is
// accepted; ok is false otherwise.
func YearFromPath(path string) (int, bool) {
	norm := filepath.ToSlash(path)
	for _, seg := range strings.Split(norm, "/") {
		if len(seg) != 4 {
			continue
		}
		y, err := strconv.Atoi(seg)
		if err != nil {
			continue
		}
		for _, known := range KnownYears {
			if y == known {
				return y, true
			}
		}
	}
	return 0, false
}
