package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// SummaryKey identifies one import batch: a data vintage and an
// administrative level.
type SummaryKey struct {
	Year       int
	AdminLevel string
}

// SummaryRow holds the per-batch counters written to the summary log.
type SummaryRow struct {
	FilesFound int
	Imported   int
	Errors     int
}

// Summary accumulates per-(year, admin_level) counters across a run.
// Files that never classify have no batch and are not counted here.
type Summary struct {
	rows map[SummaryKey]*SummaryRow
}

func NewSummary() *Summary {
	return &Summary{rows: make(map[SummaryKey]*SummaryRow)}
}

func (s *Summary) row(year int, level string) *SummaryRow {
	k := SummaryKey{Year: year, AdminLevel: level}
	r := s.rows[k]
	if r == nil {
		r = &SummaryRow{}
		s.rows[k] = r
	}
	return r
}

// Found records one discovered file for the batch.
func (s *Summary) Found(year int, level string) {
	s.row(year, level).FilesFound++
}

// Imported records one successfully loaded and annotated file.
func (s *Summary) Imported(year int, level string) {
	s.row(year, level).Imported++
}

// Error records one failed file. The run continues past it.
func (s *Summary) Error(year int, level string) {
	s.row(year, level).Errors++
}

// Entry is one ordered summary line.
type Entry struct {
	SummaryKey
	SummaryRow
}

// levelRank orders levels by administrative hierarchy for stable output.
var levelRank = map[string]int{
	"region":       0,
	"province":     1,
	"municipality": 2,
	"barangay":     3,
}

// Entries returns all batches ordered by year, then hierarchy depth.
func (s *Summary) Entries() []Entry {
	out := make([]Entry, 0, len(s.rows))
	for k, r := range s.rows {
		out = append(out, Entry{SummaryKey: k, SummaryRow: *r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return levelRank[out[i].AdminLevel] < levelRank[out[j].AdminLevel]
	})
	return out
}

// Totals sums the counters across all batches.
func (s *Summary) Totals() SummaryRow {
	var t SummaryRow
	for _, r := range s.rows {
		t.FilesFound += r.FilesFound
		t.Imported += r.Imported
		t.Errors += r.Errors
	}
	return t
}

// Format renders the summary log body: a header line followed by one
// CSV-like line per batch.
func (s *Summary) Format() string {
	var b strings.Builder
	b.WriteString("year,admin_level,files_found,imported,errors\n")
	for _, e := range s.Entries() {
		fmt.Fprintf(&b, "%d,%s,%d,%d,%d\n", e.Year, e.AdminLevel, e.FilesFound, e.Imported, e.Errors)
	}
	return b.String()
}

// WriteLog writes the summary log to path, replacing any previous run's log.
func (s *Summary) WriteLog(path string) error {
	if err := os.WriteFile(path, []byte(s.Format()), 0o644); err != nil {
		return fmt.Errorf("write summary log: %w", err)
	}
	return nil
}
