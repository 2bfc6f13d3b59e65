// Package refresh drives the polling backstop: a periodic re-fetch of
// provider state whose cadence adapts to push-channel health.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller invokes a cycle function on an adaptive interval. Cycles never
// overlap: a cycle still in flight suppresses the next tick.
type Poller struct {
	mu       sync.Mutex
	interval time.Duration
	inFlight bool

	cycle func(ctx context.Context)
	wake  chan struct{}
}

// New creates a poller. cycle runs on the poller's goroutine.
func New(interval time.Duration, cycle func(ctx context.Context)) *Poller {
	return &Poller{
		interval: interval,
		cycle:    cycle,
		wake:     make(chan struct{}, 1),
	}
}

// SetInterval switches the polling cadence. Takes effect for the next
// wait; an in-flight cycle is unaffected.
func (p *Poller) SetInterval(d time.Duration) {
	p.mu.Lock()
	changed := p.interval != d
	p.interval = d
	p.mu.Unlock()

	if changed {
		slog.Debug("refresh interval changed", "interval", d)
		p.Kick()
	}
}

// Kick schedules an immediate cycle (unless one is already running).
func (p *Poller) Kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, executing cycles on the current
// interval.
func (p *Poller) Run(ctx context.Context) {
	for {
		p.mu.Lock()
		interval := p.interval
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		case <-p.wake:
		}

		p.runOnce(ctx)
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	p.cycle(ctx)
}
