package analysis

import (
	"errors"
	"math/rand"
	"testing"
)

func samplesConfig(region string, p99s []float64) *ConfigMetrics {
	return &ConfigMetrics{
		Key:        ConfigKey{Region: region, InstanceFamily: "c7gn"},
		P99Samples: p99s,
	}
}

func TestCompareInsufficientSamples(t *testing.T) {
	a := samplesConfig("eu-west-1", []float64{10000, 11000, 10500, 10200})
	b := samplesConfig("eu-central-1", []float64{20000, 21000, 20500, 20200})

	_, err := NewComparator().Compare(a, b)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for 4 samples, got %v", err)
	}
}

func TestCompareDegenerateSamples(t *testing.T) {
	a := samplesConfig("eu-west-1", []float64{10000, 10000, 10000, 10000, 10000})
	b := samplesConfig("eu-central-1", []float64{10000, 10000, 10000, 10000, 10000})

	_, err := NewComparator().Compare(a, b)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for degenerate input, got %v", err)
	}
}

func TestCompareSeparatedSamples(t *testing.T) {
	a := samplesConfig("eu-west-1",
		[]float64{10000, 10200, 10400, 10600, 10800, 11000, 11200, 11400})
	b := samplesConfig("eu-central-1",
		[]float64{40000, 40200, 40400, 40600, 40800, 41000, 41200, 41400})

	comparison, err := NewComparator().Compare(a, b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if comparison.PValue >= 0.01 {
		t.Fatalf("expected significance for fully separated samples, p=%v", comparison.PValue)
	}
	if !comparison.SignificantAt05 || !comparison.SignificantAt01 {
		t.Fatalf("expected both significance flags set: %+v", comparison)
	}
	// b is ~30ms slower; the difference and its whole interval must be
	// far from zero.
	if comparison.DiffMedianUs < 25000 || comparison.DiffMedianUs > 35000 {
		t.Fatalf("unexpected diff median %v", comparison.DiffMedianUs)
	}
	if comparison.DiffCI95Us[0] <= 0 {
		t.Fatalf("expected CI bounded away from zero, got %v", comparison.DiffCI95Us)
	}
	if comparison.DiffCI95Us[0] > comparison.DiffCI95Us[1] {
		t.Fatalf("CI bounds inverted: %v", comparison.DiffCI95Us)
	}
}

func TestCompareReproducible(t *testing.T) {
	a := samplesConfig("eu-west-1",
		[]float64{10000, 10500, 11000, 11500, 12000, 12500, 13000})
	b := samplesConfig("eu-central-1",
		[]float64{15000, 15500, 16000, 16500, 17000, 17500, 18000})

	first, err := NewComparator().Compare(a, b)
	if err != nil {
		t.Fatalf("first Compare: %v", err)
	}
	second, err := NewComparator().Compare(a, b)
	if err != nil {
		t.Fatalf("second Compare: %v", err)
	}

	if first != second {
		t.Fatalf("comparison not reproducible with default seed:\n%+v\n%+v", first, second)
	}
}

func TestCompareInjectedRand(t *testing.T) {
	a := samplesConfig("eu-west-1",
		[]float64{10000, 10500, 11000, 11500, 12000})
	b := samplesConfig("eu-central-1",
		[]float64{15000, 15500, 16000, 16500, 17000})

	seeded := func() *Comparator {
		return NewComparator(WithRand(rand.New(rand.NewSource(7))), WithIterations(200))
	}

	first, err := seeded().Compare(a, b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	second, err := seeded().Compare(a, b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if first != second {
		t.Fatalf("same injected source must reproduce: %+v vs %+v", first, second)
	}

	other, err := NewComparator(WithRand(rand.New(rand.NewSource(8))), WithIterations(200)).Compare(a, b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if first.DiffMedianUs == other.DiffMedianUs && first.DiffCI95Us == other.DiffCI95Us {
		t.Fatalf("different seeds produced identical bootstrap output")
	}
}
