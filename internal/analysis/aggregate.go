// Package analysis turns a collection log into a ranked recommendation:
// it aggregates records per configuration, applies hard constraints,
// computes a normalized comparative score, and runs a significance test
// between the top two survivors.
package analysis

import (
	"errors"
	"fmt"
	"log"

	"github.com/sweeplabs/latsweep/internal/sweeplog"
	"github.com/sweeplabs/latsweep/internal/telemetry"
	"github.com/sweeplabs/latsweep/pkg/types"
)

// ErrNoData indicates a log contained zero parseable records.
var ErrNoData = errors.New("no data in results log")

// ConfigKey identifies one configuration under test.
type ConfigKey struct {
	Region         string `json:"region"`
	InstanceFamily string `json:"instance_family"`
}

func (k ConfigKey) String() string {
	return k.Region + "/" + k.InstanceFamily
}

// ConfigMetrics is the running sample set for one configuration. Sample
// sequences only grow during ingestion; counters are merged as
// watermarks (maximum ever observed) so out-of-order ingestion of the
// cumulative lifetime values cannot move them backwards.
type ConfigMetrics struct {
	Key ConfigKey

	P50Samples  []float64
	P99Samples  []float64
	P999Samples []float64
	CVSamples   []float64

	Reconnects int64
	Errors     int64
	Messages   int64
}

// ingest folds one record into the sample set. Percentile samples are
// only kept when the probe had measured something (count > 0), which
// keeps empty or initializing probe states out of the history. Counters
// merge regardless of count.
func (m *ConfigMetrics) ingest(rec types.MetricRecord) {
	agg := rec.Metrics.Aggregate
	if agg.Count > 0 {
		m.P50Samples = append(m.P50Samples, float64(agg.P50Us))
		m.P99Samples = append(m.P99Samples, float64(agg.P99Us))
		m.P999Samples = append(m.P999Samples, float64(agg.P999Us))
		m.CVSamples = append(m.CVSamples, agg.CV)
	}

	ctr := rec.Metrics.Counters
	m.Reconnects = max(m.Reconnects, ctr.Reconnects)
	m.Errors = max(m.Errors, ctr.Errors)
	m.Messages = max(m.Messages, ctr.Messages)
}

// Aggregate folds records into one ConfigMetrics per configuration.
func Aggregate(records []types.MetricRecord) map[ConfigKey]*ConfigMetrics {
	metrics := make(map[ConfigKey]*ConfigMetrics)
	for _, rec := range records {
		key := ConfigKey{Region: rec.Region, InstanceFamily: rec.InstanceFamily}
		m, ok := metrics[key]
		if !ok {
			m = &ConfigMetrics{Key: key}
			metrics[key] = m
		}
		m.ingest(rec)
	}
	return metrics
}

// LoadFile reads a log and aggregates it. Malformed lines are skipped by
// the reader; a file with zero parseable records fails with ErrNoData.
func LoadFile(path string, logger *log.Logger, tel *telemetry.Store) (map[ConfigKey]*ConfigMetrics, error) {
	records, stats, err := sweeplog.Read(path, logger)
	if err != nil {
		return nil, err
	}
	if tel != nil {
		for i := 0; i < stats.Skipped; i++ {
			tel.IncParseSkips()
		}
	}
	if stats.Parsed == 0 {
		return nil, fmt.Errorf("%q: %w", path, ErrNoData)
	}
	return Aggregate(records), nil
}
