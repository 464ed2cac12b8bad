// Package health probes the platform on a cron schedule and keeps the
// last result for /healthz and the platform_up gauge.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/erptools/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Pinger reports the user the platform credentials authenticate as
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// Status is the outcome of the most recent probe
type Status struct {
	Up        bool      `json:"up"`
	User      string    `json:"user,omitempty"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
}

// Prober runs platform probes
type Prober struct {
	pinger   Pinger
	schedule string
	timeout  time.Duration
	cron     *cron.Cron

	mu     sync.RWMutex
	status Status
}

// NewProber creates a prober; schedule uses standard cron syntax or descriptors such as "@every 1m"
func NewProber(pinger Pinger, schedule string, timeout time.Duration) (*Prober, error) {
	if pinger == nil {
		return nil, fmt.Errorf("pinger is required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid probe schedule %q: %w", schedule, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Prober{
		pinger:   pinger,
		schedule: schedule,
		timeout:  timeout,
		cron:     cron.New(),
	}, nil
}

// Check probes the platform once and records the result
func (p *Prober) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	user, err := p.pinger.Ping(ctx)
	status := Status{
		Up:        err == nil,
		User:      user,
		CheckedAt: start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
	}

	p.mu.Lock()
	wasUp := p.status.Up
	first := p.status.CheckedAt.IsZero()
	p.status = status
	p.mu.Unlock()

	observability.SetPlatformUp(status.Up)

	switch {
	case !status.Up && (wasUp || first):
		log.Warn().Err(err).Msg("Platform probe failed")
	case status.Up && !wasUp:
		log.Info().Str("user", user).Int64("latency_ms", status.LatencyMS).Msg("Platform reachable")
	default:
		log.Debug().Bool("up", status.Up).Int64("latency_ms", status.LatencyMS).Msg("Platform probe")
	}

	return status
}

// Start runs an initial probe and schedules the rest
func (p *Prober) Start(ctx context.Context) error {
	if _, err := p.cron.AddFunc(p.schedule, func() { p.Check(ctx) }); err != nil {
		return fmt.Errorf("scheduling probe: %w", err)
	}
	p.Check(ctx)
	p.cron.Start()
	log.Info().Str("schedule", p.schedule).Msg("Platform health probe started")
	return nil
}

// Stop stops scheduling and waits for a running probe to finish
func (p *Prober) Stop() {
	<-p.cron.Stop().Done()
}

// Status returns the last probe result
func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}
