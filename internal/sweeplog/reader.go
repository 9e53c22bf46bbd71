package sweeplog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/sweeplabs/latsweep/pkg/types"
)

// Scanner line buffer cap; a record is a few hundred bytes, so this
// leaves generous headroom for corrupted runs of data.
const maxLineBytes = 1 << 20

// ReadStats summarizes one pass over a log file.
type ReadStats struct {
	Parsed  int
	Skipped int
}

// Read parses a collection log line by line. Malformed lines are logged
// and skipped; partial corruption never aborts the read. The returned
// stats let callers distinguish "empty file" from "all lines corrupt".
func Read(path string, logger *log.Logger) ([]types.MetricRecord, ReadStats, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("open log %q: %w", path, err)
	}
	defer f.Close()

	var (
		records []types.MetricRecord
		stats   ReadStats
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := decodeRecord(line)
		if err != nil {
			logger.Printf("skipping malformed line %d: %v", lineNum, err)
			stats.Skipped++
			continue
		}
		records = append(records, rec)
		stats.Parsed++
	}
	if err := scanner.Err(); err != nil {
		return records, stats, fmt.Errorf("read log %q: %w", path, err)
	}

	return records, stats, nil
}

// decodeRecord decodes one line into a typed record or fails the line
// outright. A record must carry its aggregation key; missing metrics
// sub-objects decode as zero values per the log contract.
func decodeRecord(line []byte) (types.MetricRecord, error) {
	var rec types.MetricRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, err
	}
	if rec.Region == "" || rec.InstanceFamily == "" {
		return rec, errors.New("record missing region or instance_family")
	}
	return rec, nil
}
