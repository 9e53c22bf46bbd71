package telemetry

import "sync/atomic"

// Store maintains in-memory counters for one sweep or analysis run.
type Store struct {
	pollSuccess    atomic.Uint64
	pollFailure    atomic.Uint64
	recordsWritten atomic.Uint64
	parseSkips     atomic.Uint64
	gateSweeps     atomic.Uint64
}

// NewStore constructs a Store with zeroed counters.
func NewStore() *Store {
	return &Store{}
}

// Snapshot captures the current counter values in a plain struct.
type Snapshot struct {
	PollSuccess    uint64
	PollFailure    uint64
	RecordsWritten uint64
	ParseSkips     uint64
	GateSweeps     uint64
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		PollSuccess:    s.pollSuccess.Load(),
		PollFailure:    s.pollFailure.Load(),
		RecordsWritten: s.recordsWritten.Load(),
		ParseSkips:     s.parseSkips.Load(),
		GateSweeps:     s.gateSweeps.Load(),
	}
}

func (s *Store) IncPollSuccess()    { s.pollSuccess.Add(1) }
func (s *Store) IncPollFailure()    { s.pollFailure.Add(1) }
func (s *Store) IncRecordsWritten() { s.recordsWritten.Add(1) }
func (s *Store) IncParseSkips()     { s.parseSkips.Add(1) }
func (s *Store) IncGateSweeps()     { s.gateSweeps.Add(1) }
