package analysis

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/aclements/go-moremath/stats"
)

const (
	minComparisonSamples = 5
	bootstrapIterations  = 1000

	// DefaultSeed makes the bootstrap reproducible across runs; the
	// report is a decision-support artifact and must be auditable.
	DefaultSeed = 42
)

// ErrInsufficientData indicates a comparison could not be computed:
// too few samples on either side, or degenerate input for the rank
// test. Callers report this outcome instead of a misleading number.
var ErrInsufficientData = errors.New("insufficient data for statistical comparison")

// Comparison quantifies whether and by how much configuration B's p99 is
// slower than configuration A's. Positive differences favor A.
type Comparison struct {
	PValue          float64    `json:"mann_whitney_p"`
	SignificantAt05 bool       `json:"significant_at_005"`
	SignificantAt01 bool       `json:"significant_at_001"`
	DiffMedianUs    float64    `json:"p99_diff_median_us"`
	DiffCI95Us      [2]float64 `json:"p99_diff_ci_95_us"`
}

// Comparator runs the rank test and bootstrap between two sample
// histories. The random source is injected so tests can fix it; the
// default is a fixed seed for run-to-run reproducibility.
type Comparator struct {
	rng        *rand.Rand
	iterations int
}

// ComparatorOption configures a Comparator.
type ComparatorOption func(*Comparator)

// WithRand substitutes the bootstrap's random source.
func WithRand(rng *rand.Rand) ComparatorOption {
	return func(c *Comparator) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// WithIterations overrides the bootstrap resampling count.
func WithIterations(n int) ComparatorOption {
	return func(c *Comparator) {
		if n > 0 {
			c.iterations = n
		}
	}
}

// NewComparator constructs a Comparator with the deterministic default
// seed unless overridden.
func NewComparator(opts ...ComparatorOption) *Comparator {
	c := &Comparator{
		rng:        rand.New(rand.NewSource(DefaultSeed)),
		iterations: bootstrapIterations,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compare tests the one-sided hypothesis that a's p99 is stochastically
// less than b's via a Mann-Whitney rank test, and estimates the
// magnitude of the median p99 difference (b minus a) with a bootstrap
// 95% interval. Requires at least 5 samples per side.
func (c *Comparator) Compare(a, b *ConfigMetrics) (Comparison, error) {
	if len(a.P99Samples) < minComparisonSamples || len(b.P99Samples) < minComparisonSamples {
		return Comparison{}, fmt.Errorf("need at least %d samples per side: %w",
			minComparisonSamples, ErrInsufficientData)
	}

	res, err := stats.MannWhitneyUTest(a.P99Samples, b.P99Samples, stats.LocationLess)
	if err != nil {
		return Comparison{}, fmt.Errorf("rank-sum test: %v: %w", err, ErrInsufficientData)
	}

	diffs := make([]float64, c.iterations)
	for i := range diffs {
		sa := c.resample(a.P99Samples)
		sb := c.resample(b.P99Samples)
		diffs[i] = median(sb) - median(sa)
	}

	return Comparison{
		PValue:          res.P,
		SignificantAt05: res.P < 0.05,
		SignificantAt01: res.P < 0.01,
		DiffMedianUs:    median(diffs),
		DiffCI95Us:      [2]float64{percentile(diffs, 2.5), percentile(diffs, 97.5)},
	}, nil
}

// resample draws a same-size sample with replacement.
func (c *Comparator) resample(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		out[i] = xs[c.rng.Intn(len(xs))]
	}
	return out
}
