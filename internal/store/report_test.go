package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteReport(t *testing.T) {
	record := createTestRecord("run-1")
	scores := []float64{0.16, 0.2, 0.5, 0.01, 0.05, 0.35}

	for _, name := range []string{"report.yaml", "report.yml", "report.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteReport(path, record, scores); err != nil {
				t.Fatalf("WriteReport failed: %v", err)
			}

			data, _ := os.ReadFile(path)
			if strings.HasSuffix(name, ".json") != strings.HasPrefix(string(data), "{") {
				t.Errorf("Unexpected encoding for %s:\n%s", name, data)
			}

			report, err := ReadReport(path)
			if err != nil {
				t.Fatalf("ReadReport failed: %v", err)
			}
			if diff := cmp.Diff(scores, report.Scores); diff != "" {
				t.Errorf("scores mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(record.Best, report.Best); diff != "" {
				t.Errorf("selection mismatch (-want +got):\n%s", diff)
			}
			if report.RunID != "run-1" || report.BestIndex != 3 {
				t.Errorf("Unexpected report header %+v", report.RunRecord)
			}
		})
	}
}

func TestWriteReport_NilRecord(t *testing.T) {
	if err := WriteReport(filepath.Join(t.TempDir(), "r.json"), nil, nil); err == nil {
		t.Error("Expected error for nil record")
	}
}
