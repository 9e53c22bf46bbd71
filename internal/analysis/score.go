package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Hard constraints. A configuration violating any of these is
// disqualified regardless of score.
const (
	maxMedianP99Us = 50_000
	maxReconnects  = 1
	maxTailRatio   = 3.0
)

// Score weights: tail latency dominates, jitter breaks ties.
const (
	weightP99 = 0.7
	weightCV  = 0.3
)

// ScoreDetails carries the presentation and export figures behind a
// score. None of these affect ranking.
type ScoreDetails struct {
	P99MedianUs   float64 `json:"p99_median_us"`
	P99P10Us      float64 `json:"p99_p10_us"`
	P99P90Us      float64 `json:"p99_p90_us"`
	P50MedianUs   float64 `json:"p50_median_us"`
	CVMedian      float64 `json:"cv_median"`
	P999MedianUs  float64 `json:"p999_median_us"`
	TailRatio     float64 `json:"p999_p99_ratio"`
	NormalizedP99 float64 `json:"normalized_p99"`
	NormalizedCV  float64 `json:"normalized_cv"`
	Reconnects    int64   `json:"reconnects"`
	Errors        int64   `json:"errors"`
	Messages      int64   `json:"message_count"`
	Samples       int     `json:"samples"`
}

// Score serializes as null when infinite (no samples), since JSON has no
// representation for +Inf.
type Score float64

func (s Score) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(s), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(s))
}

// ScoredConfig is the read-only scored view of one configuration within
// a single analysis pass. Scores are normalized against the full loaded
// set and are not comparable across passes.
type ScoredConfig struct {
	Key        ConfigKey    `json:"-"`
	Score      Score        `json:"score"`
	Passes     bool         `json:"passes_constraints"`
	Violations []string     `json:"violations"`
	Details    ScoreDetails `json:"details"`

	// Metrics retains the raw sample histories for the comparator.
	Metrics *ConfigMetrics `json:"-"`
}

// CheckConstraints evaluates the hard constraints against the medians of
// a configuration's sample history. Medians resist single-poll outliers.
// The tail ratio is only checked when both medians are positive.
func CheckConstraints(m *ConfigMetrics) (bool, []string) {
	if len(m.P99Samples) == 0 {
		return false, []string{"no data collected"}
	}

	var violations []string

	p99 := median(m.P99Samples)
	if p99 > maxMedianP99Us {
		violations = append(violations, fmt.Sprintf("p99 %.1fms > 50ms limit", p99/1000))
	}

	if m.Reconnects > maxReconnects {
		violations = append(violations, fmt.Sprintf("reconnects %d > 1/hour limit", m.Reconnects))
	}

	var p999 float64
	if len(m.P999Samples) > 0 {
		p999 = median(m.P999Samples)
	}
	if p99 > 0 && p999 > 0 {
		ratio := p999 / p99
		if ratio > maxTailRatio {
			violations = append(violations, fmt.Sprintf("p999/p99 ratio %.2f > 3.0 limit", ratio))
		}
	}

	return len(violations) == 0, violations
}

// computeScore returns the normalized weighted score for m relative to
// every configuration in all that has data. Lower is better. A
// configuration without samples scores +Inf and is excluded from the
// normalization bounds.
func computeScore(m *ConfigMetrics, all []*ConfigMetrics) (float64, ScoreDetails) {
	if len(m.P99Samples) == 0 {
		return math.Inf(1), ScoreDetails{}
	}

	var allP99, allCV []float64
	for _, other := range all {
		if len(other.P99Samples) > 0 {
			allP99 = append(allP99, median(other.P99Samples))
		}
		if len(other.CVSamples) > 0 {
			allCV = append(allCV, median(other.CVSamples))
		}
	}
	if len(allP99) == 0 || len(allCV) == 0 {
		return math.Inf(1), ScoreDetails{}
	}

	minP99, maxP99 := minMax(allP99)
	_, maxCV := minMax(allCV)

	p99 := median(m.P99Samples)
	cv := median(m.CVSamples)

	var normP99 float64
	if maxP99 > minP99 {
		normP99 = (p99 - minP99) / (maxP99 - minP99)
	}
	var normCV float64
	if maxCV > 0 {
		normCV = cv / maxCV
	}

	score := weightP99*normP99 + weightCV*normCV

	details := ScoreDetails{
		P99MedianUs:   p99,
		P99P10Us:      percentile(m.P99Samples, 10),
		P99P90Us:      percentile(m.P99Samples, 90),
		CVMedian:      cv,
		NormalizedP99: normP99,
		NormalizedCV:  normCV,
		Reconnects:    m.Reconnects,
		Errors:        m.Errors,
		Messages:      m.Messages,
		Samples:       len(m.P99Samples),
	}
	if len(m.P50Samples) > 0 {
		details.P50MedianUs = median(m.P50Samples)
	}
	if len(m.P999Samples) > 0 {
		details.P999MedianUs = median(m.P999Samples)
		if p99 > 0 {
			details.TailRatio = details.P999MedianUs / p99
		}
	}

	return score, details
}

// Rank scores every configuration and orders them: passing before
// failing, then ascending score, then key for a deterministic order on
// ties. The first passing entry is the recommendation.
func Rank(metrics map[ConfigKey]*ConfigMetrics) []ScoredConfig {
	all := make([]*ConfigMetrics, 0, len(metrics))
	for _, m := range metrics {
		all = append(all, m)
	}

	scored := make([]ScoredConfig, 0, len(all))
	for _, m := range all {
		passes, violations := CheckConstraints(m)
		score, details := computeScore(m, all)
		scored = append(scored, ScoredConfig{
			Key:        m.Key,
			Score:      Score(score),
			Passes:     passes,
			Violations: violations,
			Details:    details,
			Metrics:    m,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Passes != b.Passes {
			return a.Passes
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		return a.Key.String() < b.Key.String()
	})

	return scored
}

// Passing filters the ranked list down to constraint-passing entries,
// preserving order.
func Passing(scored []ScoredConfig) []ScoredConfig {
	var passing []ScoredConfig
	for _, s := range scored {
		if s.Passes {
			passing = append(passing, s)
		}
	}
	return passing
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}
