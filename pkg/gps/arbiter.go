package gps

import (
	"context"
	"errors"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/hardware"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

// powerCycleHold is how long the GPS power pin stays low during a cycle.
const powerCycleHold = 2 * time.Second

// Arbiter selects among the configured GPS sources. The primary gets a
// sub-slice of the overall budget when a secondary exists, so a dead
// primary cannot starve the fallback.
type Arbiter struct {
	primary   Source
	secondary Source
	powerPin  hardware.Pin
	logger    *logx.Logger

	budget          time.Duration
	powerCycleAfter int

	consecutiveTimeouts int
	health              map[string]*SourceHealth
}

// NewArbiter creates an arbiter. secondary and powerPin may be nil.
func NewArbiter(primary, secondary Source, powerPin hardware.Pin, budget time.Duration, powerCycleAfter int, logger *logx.Logger) *Arbiter {
	a := &Arbiter{
		primary:         primary,
		secondary:       secondary,
		powerPin:        powerPin,
		logger:          logger,
		budget:          budget,
		powerCycleAfter: powerCycleAfter,
		health:          map[string]*SourceHealth{primary.Name(): {}},
	}
	if secondary != nil {
		a.health[secondary.Name()] = &SourceHealth{}
	}
	return a
}

// AcquireFix tries the primary source, then the secondary if enabled,
// inside the overall timeout budget. Returns ErrFixTimeout when neither
// yields a fix. After the configured number of consecutive timeouts the
// GPS power pin is cycled before the attempt.
func (a *Arbiter) AcquireFix(ctx context.Context) (*Fix, error) {
	if a.powerCycleAfter > 0 && a.consecutiveTimeouts >= a.powerCycleAfter {
		a.powerCycle()
	}

	deadline := time.Now().Add(a.budget)
	primaryBudget := a.budget
	if a.secondary != nil {
		primaryBudget = a.budget / 2
	}

	fix, err := a.trySource(ctx, a.primary, time.Now().Add(primaryBudget))
	if err == nil {
		a.consecutiveTimeouts = 0
		return fix, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, ctxErr
	}

	if a.secondary != nil {
		fix, err = a.trySource(ctx, a.secondary, deadline)
		if err == nil {
			a.consecutiveTimeouts = 0
			return fix, nil
		}
	}

	a.consecutiveTimeouts++
	a.logger.Warn("no GPS fix within budget",
		"budget", a.budget,
		"consecutive_timeouts", a.consecutiveTimeouts)
	return nil, ErrFixTimeout
}

func (a *Arbiter) trySource(ctx context.Context, src Source, deadline time.Time) (*Fix, error) {
	srcCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	started := time.Now()
	fix, err := src.AcquireFix(srcCtx)
	h := a.health[src.Name()]
	if err != nil {
		h.recordError(err)
		a.logger.Debug("GPS source failed", "source", src.Name(), "elapsed", time.Since(started), "error", err)
		return nil, err
	}
	h.recordSuccess()
	a.logger.Debug("GPS fix acquired",
		"source", src.Name(),
		"lat", fix.Latitude,
		"lon", fix.Longitude,
		"satellites", fix.Satellites,
		"elapsed", time.Since(started))
	return fix, nil
}

func (a *Arbiter) powerCycle() {
	a.consecutiveTimeouts = 0
	if a.powerPin == nil {
		return
	}
	a.logger.Warn("power-cycling GPS module after repeated fix timeouts")
	if err := a.powerPin.Cycle(powerCycleHold); err != nil {
		a.logger.Error("GPS power cycle failed", "error", err)
	}
}

// Health reports per-source reliability counters.
func (a *Arbiter) Health() map[string]SourceHealth {
	out := make(map[string]SourceHealth, len(a.health))
	for name, h := range a.health {
		out[name] = *h
	}
	return out
}
