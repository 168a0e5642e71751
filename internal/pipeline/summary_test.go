package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSummaryEntriesOrdered(t *testing.T) {
	t.Parallel()

	s := NewSummary()
	s.Found(2023, "barangay")
	s.Found(2011, "region")
	s.Found(2011, "barangay")
	s.Found(2019, "province")
	s.Imported(2011, "region")

	got := s.Entries()
	want := []SummaryKey{
		{Year: 2011, AdminLevel: "region"},
		{Year: 2011, AdminLevel: "barangay"},
		{Year: 2019, AdminLevel: "province"},
		{Year: 2023, AdminLevel: "barangay"},
	}
	if len(got) != len(want) {
		t.Fatalf("entries=%d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].SummaryKey != w {
			t.Fatalf("entry[%d]=%+v, want %+v", i, got[i].SummaryKey, w)
		}
	}
}

func TestSummaryFormat(t *testing.T) {
	t.Parallel()

	s := NewSummary()
	for i := 0; i < 3; i++ {
		s.Found(2019, "province")
	}
	s.Imported(2019, "province")
	s.Imported(2019, "province")
	s.Error(2019, "province")
	s.Found(2011, "region")
	s.Imported(2011, "region")

	want := "year,admin_level,files_found,imported,errors\n" +
		"2011,region,1,1,0\n" +
		"2019,province,3,2,1\n"
	if got := s.Format(); got != want {
		t.Fatalf("Format()=%q, want %q", got, want)
	}
}

func TestSummaryTotals(t *testing.T) {
	t.Parallel()

	s := NewSummary()
	s.Found(2011, "region")
	s.Found(2019, "region")
	s.Imported(2011, "region")
	s.Error(2019, "region")

	got := s.Totals()
	if got.FilesFound != 2 || got.Imported != 1 || got.Errors != 1 {
		t.Fatalf("Totals()=%+v, want found=2 imported=1 errors=1", got)
	}
}

func TestSummaryWriteLogReplacesPreviousRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "import_summary.log")
	if err := os.WriteFile(path, []byte("stale\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := NewSummary()
	s.Found(2011, "region")
	if err := s.WriteLog(path); err != nil {
		t.Fatalf("WriteLog() err=%v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "stale") {
		t.Fatalf("previous run's log not replaced: %q", data)
	}
	if !strings.Contains(string(data), "2011,region,1,0,0") {
		t.Fatalf("log missing batch line: %q", data)
	}
}
