package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Report bundles everything one analysis pass produced.
type Report struct {
	Scored     []ScoredConfig
	Comparison *Comparison
	// CompareA/CompareB name the configurations behind Comparison.
	CompareA, CompareB ConfigKey
	CompareErr         error
}

// BuildReport ranks the loaded configurations and, when at least two
// pass constraints, compares the top two. A comparison that cannot be
// computed is recorded on the report rather than failing the run.
func BuildReport(metrics map[ConfigKey]*ConfigMetrics, comparator *Comparator) Report {
	report := Report{Scored: Rank(metrics)}

	passing := Passing(report.Scored)
	if len(passing) < 2 {
		return report
	}
	if comparator == nil {
		comparator = NewComparator()
	}

	report.CompareA = passing[0].Key
	report.CompareB = passing[1].Key
	comparison, err := comparator.Compare(passing[0].Metrics, passing[1].Metrics)
	if err != nil {
		report.CompareErr = err
		return report
	}
	report.Comparison = &comparison
	return report
}

const reportRule = "======================================================================"

// Write renders the full human-readable report: ranking, top-2
// comparison, recommendation.
func (r Report) Write(w io.Writer) {
	r.writeRanking(w)
	r.writeComparison(w)
	r.writeRecommendation(w)
}

func (r Report) writeRanking(w io.Writer) {
	fmt.Fprintf(w, "\n%s\nRANKING (lower score = better)\n%s\n", reportRule, reportRule)

	for i, s := range r.Scored {
		status := "PASS"
		if !s.Passes {
			status = "FAIL"
		}
		d := s.Details

		fmt.Fprintf(w, "\n%d. [%s] %s\n", i+1, status, s.Key)
		fmt.Fprintf(w, "   Score: %.4f\n", float64(s.Score))
		if d.Samples > 0 {
			fmt.Fprintf(w, "   p99: %.2fms (range: %.2f-%.2fms)\n",
				d.P99MedianUs/1000, d.P99P10Us/1000, d.P99P90Us/1000)
			fmt.Fprintf(w, "   p50: %.2fms\n", d.P50MedianUs/1000)
			fmt.Fprintf(w, "   CV (jitter): %.4f\n", d.CVMedian)
			fmt.Fprintf(w, "   p999/p99 ratio: %.2f\n", d.TailRatio)
			fmt.Fprintf(w, "   Messages: %d, Reconnects: %d, Errors: %d\n",
				d.Messages, d.Reconnects, d.Errors)
			fmt.Fprintf(w, "   Samples: %d\n", d.Samples)
		}
		if len(s.Violations) > 0 {
			fmt.Fprintf(w, "   VIOLATIONS: %s\n", strings.Join(s.Violations, ", "))
		}
	}
}

func (r Report) writeComparison(w io.Writer) {
	if r.Comparison == nil && r.CompareErr == nil {
		return
	}

	fmt.Fprintf(w, "\n%s\nSTATISTICAL COMPARISON (Top 2)\n%s\n", reportRule, reportRule)

	if r.CompareErr != nil {
		fmt.Fprintf(w, "\nCannot compare %s vs %s: %v\n", r.CompareA, r.CompareB, r.CompareErr)
		return
	}

	c := r.Comparison
	fmt.Fprintf(w, "\nComparing: %s vs %s\n", r.CompareA, r.CompareB)
	fmt.Fprintf(w, "Mann-Whitney U p-value: %.4f\n", c.PValue)
	fmt.Fprintf(w, "Significant at p<0.05: %t\n", c.SignificantAt05)
	fmt.Fprintf(w, "Significant at p<0.01: %t\n", c.SignificantAt01)
	fmt.Fprintf(w, "p99 difference: %.2fms (95%% CI: [%.2f, %.2f]ms)\n",
		c.DiffMedianUs/1000, c.DiffCI95Us[0]/1000, c.DiffCI95Us[1]/1000)
}

func (r Report) writeRecommendation(w io.Writer) {
	fmt.Fprintf(w, "\n%s\nRECOMMENDATION\n%s\n", reportRule, reportRule)

	passing := Passing(r.Scored)
	if len(passing) == 0 {
		fmt.Fprintf(w, "\nWARNING: No configuration passes all hard constraints!\n")
		fmt.Fprintf(w, "Consider:\n")
		fmt.Fprintf(w, "  - Expanding the test matrix\n")
		fmt.Fprintf(w, "  - Testing at different times of day\n")
		fmt.Fprintf(w, "  - Relaxing constraints if justified\n")
		return
	}

	winner := passing[0]
	d := winner.Details

	fmt.Fprintf(w, "\nRECOMMENDED: %s with %s\n", winner.Key.Region, winner.Key.InstanceFamily)
	fmt.Fprintf(w, "\nExpected performance:\n")
	fmt.Fprintf(w, "  p99 latency: %.2fms\n", d.P99MedianUs/1000)
	fmt.Fprintf(w, "  p50 latency: %.2fms\n", d.P50MedianUs/1000)
	fmt.Fprintf(w, "  Stability (CV): %.4f\n", d.CVMedian)
	fmt.Fprintf(w, "  Tail ratio (p999/p99): %.2f\n", d.TailRatio)

	if len(passing) > 1 {
		runnerUp := passing[1]
		rd := runnerUp.Details
		if rd.P99MedianUs > 0 {
			improvement := (rd.P99MedianUs - d.P99MedianUs) / rd.P99MedianUs * 100
			fmt.Fprintf(w, "\nRunner-up: %s with %s\n", runnerUp.Key.Region, runnerUp.Key.InstanceFamily)
			fmt.Fprintf(w, "  Winner is %.1f%% faster on p99\n", improvement)
		}
	}
}

// Export is the JSON document form of a report.
type Export struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	Rankings       []ExportRanking `json:"rankings"`
	Recommendation *Recommendation `json:"recommendation"`
}

// ExportRanking is one ranked configuration in the export document.
type ExportRanking struct {
	Rank           int          `json:"rank"`
	Region         string       `json:"region"`
	InstanceFamily string       `json:"instance_family"`
	Score          Score        `json:"score"`
	Passes         bool         `json:"passes_constraints"`
	Violations     []string     `json:"violations"`
	Details        ScoreDetails `json:"details"`
}

// Recommendation names the winning configuration; absent when nothing
// passes constraints.
type Recommendation struct {
	Region         string  `json:"region"`
	InstanceFamily string  `json:"instance_family"`
	P99Ms          float64 `json:"p99_ms"`
	CV             float64 `json:"cv"`
}

// BuildExport converts a report into its export document.
func (r Report) BuildExport(now time.Time) Export {
	export := Export{GeneratedAt: now.UTC()}

	for i, s := range r.Scored {
		violations := s.Violations
		if violations == nil {
			violations = []string{}
		}
		export.Rankings = append(export.Rankings, ExportRanking{
			Rank:           i + 1,
			Region:         s.Key.Region,
			InstanceFamily: s.Key.InstanceFamily,
			Score:          s.Score,
			Passes:         s.Passes,
			Violations:     violations,
			Details:        s.Details,
		})
	}

	if passing := Passing(r.Scored); len(passing) > 0 {
		winner := passing[0]
		export.Recommendation = &Recommendation{
			Region:         winner.Key.Region,
			InstanceFamily: winner.Key.InstanceFamily,
			P99Ms:          winner.Details.P99MedianUs / 1000,
			CV:             winner.Details.CVMedian,
		}
	}

	return export
}

// WriteExportFile serializes the export document to path.
func (r Report) WriteExportFile(path string, now time.Time) error {
	data, err := json.MarshalIndent(r.BuildExport(now), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write export %q: %w", path, err)
	}
	return nil
}

// InsufficientData reports whether the comparison failed only because
// the data could not support one.
func (r Report) InsufficientData() bool {
	return errors.Is(r.CompareErr, ErrInsufficientData)
}
