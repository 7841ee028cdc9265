package readiness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"
	"ledger-backend/internal/metrics"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// ErrTimeout is wrapped in the StorageUnavailable error returned when the deadline passes.
var ErrTimeout = errors.New("storage did not become ready in time")

// Source is the part of db.Provider the gate depends on.
type Source interface {
	Health() db.Status
	HandleIfReady() *db.Handle
	Changed() <-chan struct{}
	Err() error
}

// HandleSource is what repositories and services depend on.
type HandleSource interface {
	AwaitHandle(ctx context.Context, probe db.Store) (*db.Handle, error)
}

type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Gate hands out a verified storage handle, waiting for the provider when it
// is still opening. It works whether the provider finished first or the
// consumer asked first.
type Gate struct {
	src      Source
	timeout  time.Duration
	interval time.Duration
}

func NewGate(src Source, opts Options) *Gate {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Gate{src: src, timeout: opts.Timeout, interval: opts.PollInterval}
}

func (g *Gate) Timeout() time.Duration { return g.timeout }

// AwaitHandle returns a handle whose schema contains probe, or a
// StorageUnavailable error once the single deadline has passed.
func (g *Gate) AwaitHandle(ctx context.Context, probe db.Store) (*db.Handle, error) {
	start := time.Now()

	if h, done, err := g.check(probe); done {
		g.observe(start, "fast", err)
		return h, err
	}

	deadline := time.NewTimer(g.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		changed := g.src.Changed()
		if h, done, err := g.check(probe); done {
			g.observe(start, "waited", err)
			return h, err
		}

		select {
		case <-ctx.Done():
			metrics.ReadinessOutcomes.WithLabelValues("canceled").Inc()
			return nil, apperrors.StorageUnavailable(string(probe), ctx.Err())
		case <-deadline.C:
			metrics.ReadinessOutcomes.WithLabelValues("timeout").Inc()
			metrics.ReadinessWaitSeconds.Observe(time.Since(start).Seconds())
			log.Printf("[Readiness] gave up waiting for %s after %s", probe, g.timeout)
			return nil, apperrors.StorageUnavailable(string(probe), ErrTimeout)
		case <-changed:
		case <-ticker.C:
		}
	}
}

// check reports done when it has a definitive answer.
func (g *Gate) check(probe db.Store) (*db.Handle, bool, error) {
	switch g.src.Health() {
	case db.StatusReady:
		h := g.src.HandleIfReady()
		if h == nil {
			return nil, false, nil
		}
		if !h.HasStore(probe) {
			return nil, true, apperrors.StorageUnavailable(string(probe),
				fmt.Errorf("store %q missing from schema v%d", probe, h.SchemaVersion()))
		}
		return h, true, nil
	case db.StatusFailed:
		return nil, true, apperrors.StorageUnavailable(string(probe), g.src.Err())
	}
	return nil, false, nil
}

func (g *Gate) observe(start time.Time, outcome string, err error) {
	if err != nil {
		outcome = "failed"
	}
	metrics.ReadinessOutcomes.WithLabelValues(outcome).Inc()
	metrics.ReadinessWaitSeconds.Observe(time.Since(start).Seconds())
}
