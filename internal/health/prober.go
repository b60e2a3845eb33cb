// Package health probes the sidecar's HTTP liveness endpoint.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Default prober settings.
const (
	DefaultInterval         = 30 * time.Second
	DefaultTimeout          = 5 * time.Second
	DefaultFailureThreshold = 3
	DefaultSuccessThreshold = 2

	// pollInterval is the fixed delay between probes inside WaitUntilHealthy.
	pollInterval = 500 * time.Millisecond
)

// Config tunes the prober and the consecutive-failure accounting done by the
// supervisor's monitor loop.
type Config struct {
	Interval         time.Duration `json:"interval" mapstructure:"interval"`
	Timeout          time.Duration `json:"timeout" mapstructure:"timeout"`
	FailureThreshold int           `json:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" mapstructure:"success_threshold"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	return c
}

// Prober issues bounded liveness checks against one endpoint.
type Prober struct {
	client   *http.Client
	endpoint string
	cfg      Config
}

// NewProber builds a prober for the conventional endpoint on the given port.
func NewProber(port int, cfg Config) *Prober {
	cfg = cfg.WithDefaults()
	return &Prober{
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: fmt.Sprintf("http://localhost:%d/health", port),
		cfg:      cfg,
	}
}

// Endpoint returns the probed URL.
func (p *Prober) Endpoint() string { return p.endpoint }

// Interval returns the configured monitor interval.
func (p *Prober) Interval() time.Duration { return p.cfg.Interval }

// FailureThreshold returns how many consecutive failures count as unhealthy.
func (p *Prober) FailureThreshold() int { return p.cfg.FailureThreshold }

// SuccessThreshold returns how many consecutive successes count as stable.
func (p *Prober) SuccessThreshold() int { return p.cfg.SuccessThreshold }

// ProbeOnce performs a single liveness check. Any 2xx response is healthy;
// timeouts, connection errors and non-2xx statuses are all unhealthy. It never
// returns an error.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitUntilHealthy polls until a probe succeeds or maxDuration elapses. The
// returned error carries elapsed time and attempt count for diagnostics; the
// caller maps it to its own startup-timeout failure.
func (p *Prober) WaitUntilHealthy(ctx context.Context, maxDuration time.Duration) error {
	start := time.Now()
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(start) > maxDuration {
			return fmt.Errorf("health check timeout after %v (%d attempts)", maxDuration, attempts)
		}
		if p.ProbeOnce(ctx) {
			return nil
		}
		attempts++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
