package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/sidus-go/internal/telemetry/logger"
)

// DefaultProbeInterval is how often a Probe runs when no interval is given.
const DefaultProbeInterval = 10 * time.Second

// State is the device state shown to operators.
type State string

const (
	StateDisconnected State = "disconnected"
	StateOK           State = "ok"
	StateUnknownError State = "unknown_error"
)

// Status is a point-in-time copy of a StatusTracker.
type Status struct {
	State               State     `json:"state" yaml:"state"`
	Message             string    `json:"message,omitempty" yaml:"message,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty" yaml:"last_success,omitempty"`
	LastAttempt         time.Time `json:"last_attempt,omitempty" yaml:"last_attempt,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures" yaml:"consecutive_failures"`
}

// StatusTracker records the outcome of device probes.
type StatusTracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewStatusTracker creates a tracker in the disconnected state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		status: Status{State: StateDisconnected},
		now:    time.Now,
	}
}

// RecordSuccess marks the device reachable, keeping the reported protocol
// versions as the status message.
func (t *StatusTracker) RecordSuccess(versions json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.status = Status{
		State:       StateOK,
		Message:     fmt.Sprintf("Protocol: %s", compactJSON(versions)),
		LastSuccess: now,
		LastAttempt: now,
	}
}

// RecordFailure marks the device in error.
func (t *StatusTracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.State = StateUnknownError
	t.status.Message = err.Error()
	t.status.LastAttempt = t.now()
	t.status.ConsecutiveFailures++
}

// Reset returns the tracker to disconnected, e.g. after a profile change.
func (t *StatusTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = Status{State: StateDisconnected}
}

// Snapshot returns a copy of the current status.
func (t *StatusTracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Reachable reports whether the last probe succeeded.
func (t *StatusTracker) Reachable() bool {
	return t.Snapshot().State == StateOK
}

// LastSuccess returns the time of the last successful probe.
func (t *StatusTracker) LastSuccess() time.Time {
	return t.Snapshot().LastSuccess
}

// ConsecutiveFailures returns the failures since the last success.
func (t *StatusTracker) ConsecutiveFailures() int {
	return t.Snapshot().ConsecutiveFailures
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// Prober is the request a Probe issues. *Dispatcher satisfies it.
type Prober interface {
	ProtocolVersions(ctx context.Context) (json.RawMessage, error)
}

// Probe periodically asks the device for its protocol versions and feeds
// the result to a StatusTracker.
type Probe struct {
	prober   Prober
	tracker  *StatusTracker
	interval time.Duration
	logger   logger.Logger
}

// NewProbe creates a Probe. A non-positive interval means DefaultProbeInterval.
func NewProbe(prober Prober, tracker *StatusTracker, interval time.Duration, l logger.Logger) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if l == nil {
		l = logger.Default()
	}
	return &Probe{
		prober:   prober,
		tracker:  tracker,
		interval: interval,
		logger:   l.With("component", "probe"),
	}
}

// Once runs a single probe and records it.
func (p *Probe) Once(ctx context.Context) error {
	versions, err := p.prober.ProtocolVersions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.tracker.RecordFailure(err)
		p.logger.Error("probe failed", "error", err)
		return err
	}

	p.tracker.RecordSuccess(versions)
	p.logger.Debug("probe ok", "protocol_versions", string(versions))
	return nil
}

// Run probes immediately and then every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		_ = p.Once(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
