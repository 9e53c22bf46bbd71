package analysis

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildReportComparesTopTwo(t *testing.T) {
	fast := configWith("eu-west-1", "c7gn",
		[]float64{10000, 10200, 10400, 10600, 10800, 11000},
		[]float64{0.05, 0.05, 0.05, 0.06, 0.05, 0.05}, 0)
	slow := configWith("eu-central-1", "c6in",
		[]float64{30000, 30200, 30400, 30600, 30800, 31000},
		[]float64{0.09, 0.09, 0.08, 0.09, 0.09, 0.09}, 0)

	report := BuildReport(asMap(fast, slow), nil)

	if report.CompareErr != nil {
		t.Fatalf("unexpected compare error: %v", report.CompareErr)
	}
	if report.Comparison == nil {
		t.Fatal("expected a comparison between two passing configs")
	}
	if report.CompareA != fast.Key || report.CompareB != slow.Key {
		t.Fatalf("compared %s vs %s, want %s vs %s",
			report.CompareA, report.CompareB, fast.Key, slow.Key)
	}

	var buf bytes.Buffer
	report.Write(&buf)
	out := buf.String()

	for _, want := range []string{
		"RANKING (lower score = better)",
		"STATISTICAL COMPARISON (Top 2)",
		"RECOMMENDED: eu-west-1 with c7gn",
		"Runner-up: eu-central-1 with c6in",
		"faster on p99",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestBuildReportInsufficientDataIsNotFatal(t *testing.T) {
	a := configWith("eu-west-1", "c7gn",
		[]float64{10000, 10500, 11000}, []float64{0.05, 0.05, 0.05}, 0)
	b := configWith("eu-central-1", "c6in",
		[]float64{20000, 20500, 21000}, []float64{0.08, 0.08, 0.08}, 0)

	report := BuildReport(asMap(a, b), nil)

	if report.Comparison != nil {
		t.Fatalf("expected no comparison for 3-sample sides, got %+v", report.Comparison)
	}
	if !report.InsufficientData() {
		t.Fatalf("expected InsufficientData, got err %v", report.CompareErr)
	}

	var buf bytes.Buffer
	report.Write(&buf)
	if !strings.Contains(buf.String(), "Cannot compare eu-west-1/c7gn vs eu-central-1/c6in") {
		t.Fatalf("report missing comparison failure note:\n%s", buf.String())
	}
	// The ranking and recommendation still render.
	if !strings.Contains(buf.String(), "RECOMMENDED: eu-west-1 with c7gn") {
		t.Fatalf("report missing recommendation:\n%s", buf.String())
	}
}

func TestReportNothingPasses(t *testing.T) {
	flaky := configWith("eu-west-1", "c7gn",
		[]float64{10000, 10500, 11000}, []float64{0.05, 0.05, 0.05}, 4)

	report := BuildReport(asMap(flaky), nil)

	var buf bytes.Buffer
	report.Write(&buf)
	out := buf.String()

	if !strings.Contains(out, "WARNING: No configuration passes all hard constraints!") {
		t.Fatalf("report missing constraint warning:\n%s", out)
	}
	if !strings.Contains(out, "Expanding the test matrix") {
		t.Fatalf("report missing follow-up guidance:\n%s", out)
	}

	export := report.BuildExport(time.Now())
	if export.Recommendation != nil {
		t.Fatalf("expected nil recommendation, got %+v", export.Recommendation)
	}
}

func TestBuildExport(t *testing.T) {
	fast := configWith("eu-west-1", "c7gn",
		[]float64{10000, 10500, 11000}, []float64{0.05, 0.05, 0.05}, 0)
	empty := &ConfigMetrics{Key: ConfigKey{Region: "me-south-1", InstanceFamily: "c6in"}}

	report := BuildReport(asMap(fast, empty), nil)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	export := report.BuildExport(now)

	if !export.GeneratedAt.Equal(now) {
		t.Fatalf("generated_at = %v, want %v", export.GeneratedAt, now)
	}
	if len(export.Rankings) != 2 {
		t.Fatalf("got %d rankings, want 2", len(export.Rankings))
	}
	for i, r := range export.Rankings {
		if r.Rank != i+1 {
			t.Fatalf("rank[%d] = %d", i, r.Rank)
		}
	}
	if export.Rankings[0].Region != "eu-west-1" || export.Rankings[1].Region != "me-south-1" {
		t.Fatalf("unexpected ranking order: %+v", export.Rankings)
	}

	rec := export.Recommendation
	if rec == nil {
		t.Fatal("expected a recommendation")
	}
	if rec.Region != "eu-west-1" || rec.InstanceFamily != "c7gn" {
		t.Fatalf("unexpected recommendation %+v", rec)
	}
	if rec.P99Ms != 10.5 {
		t.Fatalf("p99_ms = %v, want 10.5", rec.P99Ms)
	}
}

func TestWriteExportFileNullScore(t *testing.T) {
	fast := configWith("eu-west-1", "c7gn",
		[]float64{10000, 10500, 11000}, []float64{0.05, 0.05, 0.05}, 0)
	empty := &ConfigMetrics{Key: ConfigKey{Region: "me-south-1", InstanceFamily: "c6in"}}

	report := BuildReport(asMap(fast, empty), nil)
	path := filepath.Join(t.TempDir(), "analysis.json")
	if err := report.WriteExportFile(path, time.Now()); err != nil {
		t.Fatalf("WriteExportFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	var doc struct {
		Rankings []struct {
			Region string   `json:"region"`
			Score  *float64 `json:"score"`
			Passes bool     `json:"passes_constraints"`
			Viol   []string `json:"violations"`
		} `json:"rankings"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(doc.Rankings) != 2 {
		t.Fatalf("got %d rankings, want 2", len(doc.Rankings))
	}

	last := doc.Rankings[1]
	if last.Region != "me-south-1" {
		t.Fatalf("expected empty config ranked last, got %q", last.Region)
	}
	if last.Score != nil {
		t.Fatalf("expected null score for config with no samples, got %v", *last.Score)
	}
	if last.Passes {
		t.Fatal("config with no samples must not pass constraints")
	}
	if len(last.Viol) != 1 || last.Viol[0] != "no data collected" {
		t.Fatalf("unexpected violations %v", last.Viol)
	}

	if first := doc.Rankings[0]; first.Score == nil || !first.Passes {
		t.Fatalf("expected finite passing score first, got %+v", first)
	}
}
