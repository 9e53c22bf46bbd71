package types

import "time"

// MetricRecord is one successful poll of one probe, as persisted to the
// collection log (one JSON object per line, append-only).
type MetricRecord struct {
	Timestamp      time.Time      `json:"timestamp"`
	ElapsedSec     int64          `json:"elapsed_sec"`
	Region         string         `json:"region"`
	InstanceFamily string         `json:"instance_family"`
	InstanceID     string         `json:"instance_id"`
	Metrics        MetricsPayload `json:"metrics"`
}

// MetricsPayload is the body returned by a probe's metrics endpoint.
// Missing sub-objects decode as zero values rather than failing.
type MetricsPayload struct {
	Aggregate AggregateStats `json:"aggregate"`
	Counters  CounterStats   `json:"counters"`
}

// AggregateStats is the probe's running latency summary at poll time.
// Count is the number of samples behind the percentiles; a zero count
// means the probe has not measured anything yet.
type AggregateStats struct {
	Count  int64   `json:"count"`
	P50Us  int64   `json:"p50_us"`
	P99Us  int64   `json:"p99_us"`
	P999Us int64   `json:"p999_us"`
	CV     float64 `json:"cv"`
}

// CounterStats are monotonically non-decreasing lifetime counters as
// reported by the probe.
type CounterStats struct {
	Reconnects int64 `json:"reconnects"`
	Errors     int64 `json:"errors"`
	Messages   int64 `json:"messages"`
}
