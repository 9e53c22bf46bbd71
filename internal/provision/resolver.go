// Package provision turns the declarative-infrastructure tool's output
// document into a typed list of probe endpoints. The provisioner itself
// is an external collaborator; this package only reads what it reports.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/sweeplabs/latsweep/pkg/types"
)

// ErrNoEndpoints indicates the provisioner reported no live probes,
// typically because the infrastructure was never deployed.
var ErrNoEndpoints = errors.New("no probe endpoints in provisioner outputs")

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	RunCommand func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Manifest is the resolved view of one deployment: the endpoints to
// sweep and the experiment identifier the provisioner tagged them with.
type Manifest struct {
	ExperimentID string
	Endpoints    []types.ProbeEndpoint
}

type outputValue struct {
	Value json.RawMessage `json:"value"`
}

// FromCommand shells out to the provisioner for its outputs document and
// parses it. dir is the provisioner's working directory.
func FromCommand(ctx context.Context, dir string, deps Dependencies) (Manifest, error) {
	runCommand := deps.RunCommand
	if runCommand == nil {
		runCommand = func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Dir = dir
			return cmd.Output()
		}
	}

	raw, err := runCommand(ctx, dir, "terraform", "output", "-json")
	if err != nil {
		return Manifest{}, fmt.Errorf("fetch provisioner outputs: %w", err)
	}
	return Parse(raw)
}

// FromFile reads a previously captured outputs document.
func FromFile(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read provisioner outputs %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes an outputs document into a Manifest. The endpoint list
// is sorted by region/family so downstream iteration order is stable.
func Parse(raw []byte) (Manifest, error) {
	var outputs map[string]outputValue
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return Manifest{}, fmt.Errorf("parse provisioner outputs: %w", err)
	}

	var manifest Manifest

	if out, ok := outputs["experiment_id"]; ok {
		var id string
		if err := json.Unmarshal(out.Value, &id); err == nil {
			manifest.ExperimentID = id
		}
	}

	out, ok := outputs["probe_endpoints"]
	if !ok {
		return Manifest{}, ErrNoEndpoints
	}

	var byName map[string]types.ProbeEndpoint
	if err := json.Unmarshal(out.Value, &byName); err != nil {
		return Manifest{}, fmt.Errorf("parse probe_endpoints output: %w", err)
	}

	for _, ep := range byName {
		if ep.Address == "" {
			continue
		}
		manifest.Endpoints = append(manifest.Endpoints, ep)
	}
	if len(manifest.Endpoints) == 0 {
		return Manifest{}, ErrNoEndpoints
	}

	sort.Slice(manifest.Endpoints, func(i, j int) bool {
		a, b := manifest.Endpoints[i], manifest.Endpoints[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.InstanceFamily < b.InstanceFamily
	})

	return manifest, nil
}
