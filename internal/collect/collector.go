// Package collect runs the time-boxed, interval-paced metrics collection
// loop over a resolved probe fleet. Each round fans out over all probes
// with bounded concurrency; a single writer goroutine appends one record
// per successful response to the sweep log.
package collect

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sweeplabs/latsweep/internal/probes"
	"github.com/sweeplabs/latsweep/internal/sweeplog"
	"github.com/sweeplabs/latsweep/internal/telemetry"
	"github.com/sweeplabs/latsweep/pkg/types"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultWorkers     = 8
)

// Config holds the sweep parameters for one collection run.
type Config struct {
	ExperimentID string
	Warmup       time.Duration
	Duration     time.Duration
	PollInterval time.Duration
	OutputDir    string
	CallTimeout  time.Duration
	Workers      int
	// MaxRequestsPerSec caps the aggregate poll rate across probes.
	// Zero means unpaced.
	MaxRequestsPerSec float64
}

// Dependencies allow test overrides for probe access, clock, and logging.
type Dependencies struct {
	Client    *probes.Client
	Logger    *log.Logger
	Telemetry *telemetry.Store
	Now       func() time.Time
}

// Result reports where the completed log lives and how many records
// this run appended to it.
type Result struct {
	LogPath string
	Records int64
}

// Collector owns the probe list for the duration of one sweep.
type Collector struct {
	endpoints []types.ProbeEndpoint
	cfg       Config
	client    *probes.Client
	logger    *log.Logger
	telemetry *telemetry.Store
	now       func() time.Time
	limiter   *rate.Limiter
}

// New constructs a Collector over the given endpoints.
func New(endpoints []types.ProbeEndpoint, cfg Config, deps Dependencies) *Collector {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	client := deps.Client
	if client == nil {
		client = probes.NewClient(probes.Dependencies{})
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MaxRequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSec), cfg.Workers)
	}
	return &Collector{
		endpoints: append([]types.ProbeEndpoint{}, endpoints...),
		cfg:       cfg,
		client:    client,
		logger:    logger,
		telemetry: deps.Telemetry,
		now:       now,
		limiter:   limiter,
	}
}

// Run executes the warmup delay and then the collection loop until the
// measurement duration elapses. An individual probe failure never aborts
// a round; only context cancellation or a log write failure does.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	logPath := filepath.Join(c.cfg.OutputDir, c.cfg.ExperimentID+"_results.jsonl")
	writer, err := sweeplog.OpenWriter(logPath)
	if err != nil {
		return Result{}, err
	}
	defer writer.Close()

	c.logger.Printf("starting collection %s: %d probes, warmup %s, measurement %s, log %s",
		c.cfg.ExperimentID, len(c.endpoints), c.cfg.Warmup, c.cfg.Duration, logPath)

	if c.cfg.Warmup > 0 {
		c.logger.Printf("waiting %s for probe warmup", c.cfg.Warmup)
		if err := sleep(ctx, c.cfg.Warmup); err != nil {
			return Result{}, err
		}
	}

	start := c.now()
	end := start.Add(c.cfg.Duration)

	recordCh := make(chan types.MetricRecord, len(c.endpoints))
	writeErrCh := make(chan error, 1)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for rec := range recordCh {
			if err := writer.Append(rec); err != nil {
				select {
				case writeErrCh <- err:
				default:
				}
				return
			}
			if c.telemetry != nil {
				c.telemetry.IncRecordsWritten()
			}
		}
	}()

	var loopErr error
	for c.now().Before(end) {
		elapsed := c.now().Sub(start).Round(time.Second)
		remaining := end.Sub(c.now()).Round(time.Second)
		c.logger.Printf("[%s elapsed, %s remaining] collecting metrics", elapsed, remaining)

		if err := c.round(ctx, start, recordCh); err != nil {
			loopErr = err
			break
		}

		select {
		case err := <-writeErrCh:
			loopErr = err
		default:
		}
		if loopErr != nil {
			break
		}

		wait := c.cfg.PollInterval
		if rem := end.Sub(c.now()); wait > rem {
			wait = rem
		}
		if wait <= 0 {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			loopErr = err
			break
		}
	}

	close(recordCh)
	<-writerDone
	if loopErr == nil {
		select {
		case err := <-writeErrCh:
			loopErr = err
		default:
		}
	}

	result := Result{LogPath: logPath, Records: writer.Written()}
	if loopErr != nil {
		return result, loopErr
	}

	c.logger.Printf("collection complete: %d records in %s", result.Records, logPath)
	return result, nil
}

// round polls every probe once with bounded concurrency. Successful
// responses become records; failures are logged and skipped.
func (c *Collector) round(ctx context.Context, start time.Time, recordCh chan<- types.MetricRecord) error {
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(c.cfg.Workers)

	for _, ep := range c.endpoints {
		grp.Go(func() error {
			if err := c.limiter.Wait(grpCtx); err != nil {
				return err
			}
			payload, err := c.client.FetchMetrics(grpCtx, ep, c.cfg.CallTimeout)
			if err != nil {
				if ctxErr := grpCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Printf("warning: failed to collect from %s: %v", ep.Name(), err)
				if c.telemetry != nil {
					c.telemetry.IncPollFailure()
				}
				return nil
			}

			now := c.now()
			rec := types.MetricRecord{
				Timestamp:      now.UTC(),
				ElapsedSec:     int64(now.Sub(start).Seconds()),
				Region:         ep.Region,
				InstanceFamily: ep.InstanceFamily,
				InstanceID:     ep.InstanceID,
				Metrics:        payload,
			}
			select {
			case recordCh <- rec:
			case <-grpCtx.Done():
				return grpCtx.Err()
			}

			agg := payload.Aggregate
			c.logger.Printf("  %s: p99=%.2fms cv=%.4f samples=%d",
				ep.Name(), float64(agg.P99Us)/1000, agg.CV, agg.Count)
			if c.telemetry != nil {
				c.telemetry.IncPollSuccess()
			}
			return nil
		})
	}
	return grp.Wait()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
