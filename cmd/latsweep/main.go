package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeplabs/latsweep/internal/analysis"
	"github.com/sweeplabs/latsweep/internal/collect"
	"github.com/sweeplabs/latsweep/internal/config"
	"github.com/sweeplabs/latsweep/internal/gate"
	"github.com/sweeplabs/latsweep/internal/logging"
	"github.com/sweeplabs/latsweep/internal/probes"
	"github.com/sweeplabs/latsweep/internal/provision"
	"github.com/sweeplabs/latsweep/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "collect":
		err = runCollect(ctx, os.Args[2:])
	case "analyze":
		err = runAnalyze(ctx, os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Latency Sweep CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  latsweep collect [--config path] [--outputs file.json] [--provision-dir dir]")
	fmt.Println("                   [--experiment-id id] [--warmup 300] [--duration 3600]")
	fmt.Println("                   [--poll-interval 60] [--output-dir ./results] [--skip-gate]")
	fmt.Println("  latsweep analyze <results.jsonl> [--json out.json]")
}

func runCollect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to sweep configuration file")
	outputsFile := fs.String("outputs", "", "Path to a captured provisioner outputs document")
	provisionDir := fs.String("provision-dir", "", "Provisioner working directory to query for outputs")
	experimentID := fs.String("experiment-id", "", "Experiment ID (auto-generated if not provided)")
	warmup := fs.Int("warmup", -1, "Warmup duration in seconds")
	duration := fs.Int("duration", -1, "Measurement duration in seconds")
	pollInterval := fs.Int("poll-interval", -1, "Metrics polling interval in seconds")
	outputDir := fs.String("output-dir", "", "Output directory for results")
	skipGate := fs.Bool("skip-gate", false, "Skip the health gate (probes assumed ready)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return err
	}
	if *warmup >= 0 {
		cfg.Sweep.WarmupSec = *warmup
	}
	if *duration >= 0 {
		cfg.Sweep.MeasurementSec = *duration
	}
	if *pollInterval >= 0 {
		cfg.Sweep.PollIntervalSec = *pollInterval
	}
	if *outputDir != "" {
		cfg.Sweep.OutputDir = *outputDir
	}
	if *outputsFile != "" {
		cfg.Provision.OutputsFile = *outputsFile
	}
	if *provisionDir != "" {
		cfg.Provision.Dir = *provisionDir
	}

	logger := logging.New()

	manifest, err := resolveManifest(ctx, cfg.Provision)
	if err != nil {
		if errors.Is(err, provision.ErrNoEndpoints) {
			return fmt.Errorf("%w (did you deploy first?)", err)
		}
		return err
	}

	id := *experimentID
	if id == "" {
		id = cfg.Sweep.ExperimentID
	}
	if id == "" {
		id = manifest.ExperimentID
	}
	if id == "" {
		id = fmt.Sprintf("latency-sweep-%s-%s",
			time.Now().UTC().Format("20060102-1504"), uuid.NewString()[:8])
	}

	if cfg.Probes.MetricsPort > 0 {
		for i := range manifest.Endpoints {
			manifest.Endpoints[i].MetricsPort = cfg.Probes.MetricsPort
		}
	}

	logger.Printf("sweep %s: %d probes resolved", id, len(manifest.Endpoints))

	tel := telemetry.NewStore()
	client := probes.NewClient(probes.Dependencies{Logger: logger})

	if !*skipGate {
		g := gate.New(manifest.Endpoints, gate.Config{
			Timeout:     cfg.Gate.Timeout(),
			Poll:        cfg.Gate.Poll(),
			CallTimeout: cfg.Gate.CallTimeout(),
		}, gate.Dependencies{
			Client:    client,
			Logger:    logger,
			Telemetry: tel,
		})
		if err := g.Wait(ctx); err != nil {
			if errors.Is(err, gate.ErrDeadline) {
				return fmt.Errorf("probes not ready, aborting sweep: %w", err)
			}
			return err
		}
	}

	collector := collect.New(manifest.Endpoints, collect.Config{
		ExperimentID:      id,
		Warmup:            cfg.Sweep.Warmup(),
		Duration:          cfg.Sweep.Measurement(),
		PollInterval:      cfg.Sweep.PollInterval(),
		OutputDir:         cfg.Sweep.OutputDir,
		CallTimeout:       cfg.Probes.CallTimeout(),
		Workers:           cfg.Probes.Workers,
		MaxRequestsPerSec: cfg.Probes.MaxRequestsPerSec,
	}, collect.Dependencies{
		Client:    client,
		Logger:    logger,
		Telemetry: tel,
	})

	result, err := collector.Run(ctx)
	if err != nil {
		return err
	}

	snap := tel.Snapshot()
	logger.Printf("sweep done: %d records, %d poll failures, %d gate sweeps",
		result.Records, snap.PollFailure, snap.GateSweeps)
	logger.Printf("to analyze results, run: latsweep analyze %s", result.LogPath)
	return nil
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	jsonOut := fs.String("json", "", "Export results as JSON to this path")

	// Accept the results file either before or after the flags.
	var positional []string
	rest := args
	for len(rest) > 0 {
		if err := fs.Parse(rest); err != nil {
			return err
		}
		rest = fs.Args()
		if len(rest) > 0 {
			positional = append(positional, rest[0])
			rest = rest[1:]
		}
	}
	if len(positional) != 1 {
		return errors.New("analyze requires exactly one results file")
	}
	resultsFile := positional[0]

	logger := logging.New()
	logger.Printf("analyzing %s", resultsFile)

	tel := telemetry.NewStore()
	metrics, err := analysis.LoadFile(resultsFile, logger, tel)
	if err != nil {
		return err
	}
	logger.Printf("loaded %d configurations (%d malformed lines skipped)",
		len(metrics), tel.Snapshot().ParseSkips)

	report := analysis.BuildReport(metrics, analysis.NewComparator())
	report.Write(os.Stdout)

	if *jsonOut != "" {
		if err := report.WriteExportFile(*jsonOut, time.Now()); err != nil {
			return err
		}
		logger.Printf("exported JSON: %s", *jsonOut)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv(ctx)
	}
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func resolveManifest(ctx context.Context, cfg config.ProvisionConfig) (provision.Manifest, error) {
	if cfg.OutputsFile != "" {
		return provision.FromFile(cfg.OutputsFile)
	}
	return provision.FromCommand(ctx, cfg.Dir, provision.Dependencies{})
}
