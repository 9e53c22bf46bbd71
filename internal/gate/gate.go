// Package gate holds collection back until every probe in a sweep
// answers healthy in the same polling round. Latency comparisons are
// only meaningful when all configurations are online simultaneously, so
// there is no quorum or partial-success mode.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeplabs/latsweep/internal/probes"
	"github.com/sweeplabs/latsweep/internal/telemetry"
	"github.com/sweeplabs/latsweep/pkg/types"
)

const (
	defaultTimeout     = 10 * time.Minute
	defaultPoll        = 10 * time.Second
	defaultCallTimeout = 5 * time.Second
)

// ErrDeadline indicates the gate's wall-clock timeout elapsed before all
// probes reported healthy. Terminal for the sweep attempt.
var ErrDeadline = errors.New("health gate deadline exceeded")

// Config holds the static configuration for a Gate.
type Config struct {
	Timeout     time.Duration
	Poll        time.Duration
	CallTimeout time.Duration
}

// Dependencies allow test overrides for clock, logging, and telemetry.
type Dependencies struct {
	Client    *probes.Client
	Logger    *log.Logger
	Telemetry *telemetry.Store
	Now       func() time.Time
}

// Gate waits for a fixed fleet of probes to become reachable.
type Gate struct {
	endpoints []types.ProbeEndpoint
	cfg       Config
	client    *probes.Client
	logger    *log.Logger
	telemetry *telemetry.Store
	now       func() time.Time
}

// New constructs a Gate over the given endpoint list.
func New(endpoints []types.ProbeEndpoint, cfg Config, deps Dependencies) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
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
	return &Gate{
		endpoints: append([]types.ProbeEndpoint{}, endpoints...),
		cfg:       cfg,
		client:    client,
		logger:    logger,
		telemetry: deps.Telemetry,
		now:       now,
	}
}

// Wait polls every probe's health endpoint until all answer with a
// success status within one round, or the timeout elapses. A single
// unreachable probe holds back the whole gate.
func (g *Gate) Wait(ctx context.Context) error {
	if len(g.endpoints) == 0 {
		return errors.New("health gate requires at least one endpoint")
	}

	g.logger.Printf("waiting for %d probes to become healthy (timeout %s)", len(g.endpoints), g.cfg.Timeout)
	start := g.now()
	deadline := start.Add(g.cfg.Timeout)

	for {
		healthy, err := g.sweep(ctx)
		if err != nil {
			return err
		}
		if g.telemetry != nil {
			g.telemetry.IncGateSweeps()
		}
		if healthy == len(g.endpoints) {
			g.logger.Printf("all %d probes healthy", healthy)
			return nil
		}

		remaining := deadline.Sub(g.now())
		if remaining <= 0 {
			return fmt.Errorf("%d of %d probes healthy after %s: %w",
				healthy, len(g.endpoints), g.cfg.Timeout, ErrDeadline)
		}

		g.logger.Printf("[%s] %d of %d probes healthy, waiting",
			g.now().Sub(start).Round(time.Second), healthy, len(g.endpoints))

		wait := g.cfg.Poll
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// sweep checks every endpoint once, concurrently, and returns how many
// answered healthy. Transport errors count as "not yet healthy".
func (g *Gate) sweep(ctx context.Context) (int, error) {
	var healthy atomic.Int64

	grp, grpCtx := errgroup.WithContext(ctx)
	for _, ep := range g.endpoints {
		grp.Go(func() error {
			if err := g.client.CheckHealth(grpCtx, ep, g.cfg.CallTimeout); err != nil {
				if ctxErr := grpCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				return nil
			}
			healthy.Add(1)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return int(healthy.Load()), err
	}
	return int(healthy.Load()), nil
}
