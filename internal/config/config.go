package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "LATSWEEP_CONFIG"
	DefaultConfigPath = "/etc/latsweep/config.yaml"
)

type Config struct {
	Sweep     SweepConfig     `yaml:"sweep"`
	Gate      GateConfig      `yaml:"gate"`
	Probes    ProbesConfig    `yaml:"probes"`
	Provision ProvisionConfig `yaml:"provision"`
}

// SweepConfig drives the collection phase: how long to wait, how long to
// measure, how often to poll, and where the log goes.
type SweepConfig struct {
	ExperimentID    string `yaml:"experiment_id"`
	WarmupSec       int    `yaml:"warmup_sec"`
	MeasurementSec  int    `yaml:"measurement_sec"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	OutputDir       string `yaml:"output_dir"`
}

func (c SweepConfig) Warmup() time.Duration      { return time.Duration(c.WarmupSec) * time.Second }
func (c SweepConfig) Measurement() time.Duration { return time.Duration(c.MeasurementSec) * time.Second }
func (c SweepConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

type GateConfig struct {
	TimeoutSec     int `yaml:"timeout_sec"`
	PollSec        int `yaml:"poll_sec"`
	CallTimeoutSec int `yaml:"call_timeout_sec"`
}

func (c GateConfig) Timeout() time.Duration     { return time.Duration(c.TimeoutSec) * time.Second }
func (c GateConfig) Poll() time.Duration        { return time.Duration(c.PollSec) * time.Second }
func (c GateConfig) CallTimeout() time.Duration { return time.Duration(c.CallTimeoutSec) * time.Second }

type ProbesConfig struct {
	MetricsPort       int     `yaml:"metrics_port"`
	CallTimeoutSec    int     `yaml:"call_timeout_sec"`
	Workers           int     `yaml:"workers"`
	MaxRequestsPerSec float64 `yaml:"max_requests_per_sec"`
}

func (c ProbesConfig) CallTimeout() time.Duration { return time.Duration(c.CallTimeoutSec) * time.Second }

type ProvisionConfig struct {
	Dir         string `yaml:"dir"`
	OutputsFile string `yaml:"outputs_file"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Sweep: SweepConfig{
			WarmupSec:       300,
			MeasurementSec:  3600,
			PollIntervalSec: 60,
			OutputDir:       "./results",
		},
		Gate: GateConfig{
			TimeoutSec:     600,
			PollSec:        10,
			CallTimeoutSec: 5,
		},
		Probes: ProbesConfig{
			CallTimeoutSec: 30,
			Workers:        8,
		},
	}
}

func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads the file named by LATSWEEP_CONFIG, falling back to
// built-in defaults when the variable is unset.
func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		return Default(), nil
	}
	return Load(ctx, path)
}
