package sweeplog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeplabs/latsweep/pkg/types"
)

func testRecord(region, family string, p99 int64) types.MetricRecord {
	return types.MetricRecord{
		Timestamp:      time.Unix(1700000000, 0).UTC(),
		ElapsedSec:     60,
		Region:         region,
		InstanceFamily: family,
		InstanceID:     "i-test",
		Metrics: types.MetricsPayload{
			Aggregate: types.AggregateStats{Count: 100, P50Us: p99 / 2, P99Us: p99, P999Us: p99 * 2, CV: 0.05},
			Counters:  types.CounterStats{Messages: 1000},
		},
	}
}

func TestWriterAppendsWithoutTruncating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if err := w.Append(testRecord("eu-west-1", "c7gn", 10000)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if w.Written() != 1 {
		t.Fatalf("expected 1 written, got %d", w.Written())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must preserve the prior run's records.
	w2, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w2.Append(testRecord("eu-central-1", "c6in", 12000)); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, stats, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if stats.Parsed != 2 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if records[0].Region != "eu-west-1" || records[1].Region != "eu-central-1" {
		t.Fatalf("unexpected record order: %+v", records)
	}
}

func TestWriterCreatesOutputDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "results.jsonl")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()
	if err := w.Append(testRecord("eu-west-1", "c7gn", 10000)); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if err := w.Append(testRecord("eu-west-1", "c7gn", 10000)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	// Corrupt the file: garbage, truncated JSON, a record missing its
	// key, then one more good record.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	f.WriteString("this is not json\n")
	f.WriteString(`{"timestamp": "2023-11-14T22:13:20Z", "region": "eu`)
	f.WriteString("\n")
	f.WriteString(`{"timestamp": "2023-11-14T22:13:20Z", "instance_family": "c7gn"}` + "\n")
	f.Close()

	w2, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w2.Append(testRecord("eu-central-1", "c6in", 12000)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w2.Close()

	records, stats, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if stats.Parsed != 2 {
		t.Fatalf("expected 2 parsed, got %+v", stats)
	}
	if stats.Skipped != 3 {
		t.Fatalf("expected 3 skipped, got %+v", stats)
	}
	// Corruption must not disturb the well-formed records around it.
	if records[0].Region != "eu-west-1" || records[1].Region != "eu-central-1" {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[0].Metrics.Aggregate.P99Us != 10000 {
		t.Fatalf("unexpected aggregate %+v", records[0].Metrics.Aggregate)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReadBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	content := "\n\n" + `{"region":"eu-west-1","instance_family":"c7gn","metrics":{}}` + "\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	records, stats, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if stats.Parsed != 1 || stats.Skipped != 0 {
		t.Fatalf("blank lines should not count as malformed: %+v", stats)
	}
	if !strings.HasPrefix(records[0].Region, "eu-") {
		t.Fatalf("unexpected record %+v", records[0])
	}
}
