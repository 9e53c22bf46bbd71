package types

import "fmt"

// DefaultMetricsPort is the port probes expose their health and metrics
// endpoints on unless the provisioner says otherwise.
const DefaultMetricsPort = 9090

// ProbeEndpoint identifies one deployed probe instance under test. The
// (Region, InstanceFamily) pair is the unit of comparison; Address and
// InstanceID locate the machine serving it.
type ProbeEndpoint struct {
	Region         string `json:"region"`
	InstanceFamily string `json:"instance_family"`
	Address        string `json:"public_ip"`
	InstanceID     string `json:"instance_id"`
	MetricsPort    int    `json:"metrics_port,omitempty"`
}

func (p ProbeEndpoint) port() int {
	if p.MetricsPort > 0 {
		return p.MetricsPort
	}
	return DefaultMetricsPort
}

// HealthURL returns the probe's readiness endpoint.
func (p ProbeEndpoint) HealthURL() string {
	return fmt.Sprintf("http://%s:%d/health", p.Address, p.port())
}

// MetricsURL returns the probe's metrics endpoint.
func (p ProbeEndpoint) MetricsURL() string {
	return fmt.Sprintf("http://%s:%d/metrics", p.Address, p.port())
}

// Name returns the region/family label used in logs and reports.
func (p ProbeEndpoint) Name() string {
	return p.Region + "/" + p.InstanceFamily
}
