package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sweeplabs/latsweep/pkg/types"
)

// Client issues health and metrics requests against probe instances.
// One client serves a whole sweep; probe calls are independent and may
// run concurrently.
type Client struct {
	httpClient *http.Client
	logger     *log.Logger
}

// Dependencies allow test overrides for HTTP client and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewClient builds a probe client from dependencies.
func NewClient(deps Dependencies) *Client {
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
			},
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// CheckHealth performs one bounded request against the probe's health
// endpoint. Any 2xx status within the timeout counts as healthy; network
// failures and other statuses are returned as ordinary errors, never
// treated as fatal by callers.
func (c *Client) CheckHealth(ctx context.Context, ep types.ProbeEndpoint, timeout time.Duration) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, ep.HealthURL(), nil)
	if err != nil {
		return fmt.Errorf("build health request for %s: %w", ep.Name(), err)
	}
	req.Header.Set("User-Agent", "latsweep/0.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check %s: %w", ep.Name(), err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check %s: status %s", ep.Name(), resp.Status)
	}
	return nil
}

// FetchMetrics performs one bounded request against the probe's metrics
// endpoint and decodes the payload. Missing aggregate or counters
// sub-objects decode as zero values.
func (c *Client) FetchMetrics(ctx context.Context, ep types.ProbeEndpoint, timeout time.Duration) (types.MetricsPayload, error) {
	var payload types.MetricsPayload

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, ep.MetricsURL(), nil)
	if err != nil {
		return payload, fmt.Errorf("build metrics request for %s: %w", ep.Name(), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "latsweep/0.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return payload, fmt.Errorf("fetch metrics %s: %w", ep.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return payload, fmt.Errorf("fetch metrics %s: status %s", ep.Name(), resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode metrics %s: %w", ep.Name(), err)
	}
	return payload, nil
}
