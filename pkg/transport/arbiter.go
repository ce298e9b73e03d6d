package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/logx"
	"github.com/markus-lassfolk/trackerd/pkg/telem"
)

// Arbiter holds exactly one active bearer, reconnects it no more often
// than the configured delay, and falls back to the secondary bearer after
// repeated failures. Sends are attempted at most once per call; the
// caller decides what to do with a failed record.
type Arbiter struct {
	primary  Bearer
	fallback Bearer
	active   Bearer
	session  *telem.Session
	logger   *logx.Logger

	reconnectDelay time.Duration
	failoverAfter  int

	state               State
	consecutiveFailures int
	lastAttempt         time.Time
	failovers           uint64
	reconnects          uint64

	failoverCallbacks []func(from, to string)
}

// NewArbiter creates an arbiter over the configured bearers. fallback may
// be nil when no fallback path is enabled.
func NewArbiter(primary, fallback Bearer, session *telem.Session, reconnectDelay time.Duration, failoverAfter int, logger *logx.Logger) *Arbiter {
	a := &Arbiter{
		primary:        primary,
		fallback:       fallback,
		active:         primary,
		session:        session,
		logger:         logger,
		reconnectDelay: reconnectDelay,
		failoverAfter:  failoverAfter,
		state:          Disconnected,
	}
	session.SetTransportMode(primary.Name())
	return a
}

// AddFailoverCallback registers a function invoked after a bearer switch.
func (a *Arbiter) AddFailoverCallback(fn func(from, to string)) {
	a.failoverCallbacks = append(a.failoverCallbacks, fn)
}

func (a *Arbiter) State() State         { return a.state }
func (a *Arbiter) ActiveBearer() string { return a.active.Name() }
func (a *Arbiter) Failovers() uint64    { return a.failovers }
func (a *Arbiter) Reconnects() uint64   { return a.reconnects }

// Connected reports whether the active bearer is usable right now.
func (a *Arbiter) Connected() bool {
	if a.state != Connected {
		return false
	}
	if !a.active.Connected() {
		// Keepalive failure observed between sends.
		a.state = Disconnected
		return false
	}
	return true
}

// TryConnect attempts to connect the active bearer, spaced no closer than
// the reconnect delay. Returns false when the attempt was suppressed by
// the spacing rule.
func (a *Arbiter) TryConnect(ctx context.Context) (bool, error) {
	if a.Connected() {
		return false, nil
	}
	if !a.lastAttempt.IsZero() && time.Since(a.lastAttempt) < a.reconnectDelay {
		return false, nil
	}

	a.lastAttempt = time.Now()
	a.reconnects++
	a.state = Connecting
	a.logger.Info("connecting transport", "bearer", a.active.Name())

	if err := a.active.Connect(ctx); err != nil {
		a.state = Disconnected
		a.recordFailure()
		a.logger.Warn("transport connect failed", "bearer", a.active.Name(), "error", err)
		return true, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	a.state = Connected
	a.consecutiveFailures = 0
	a.session.SetTransportMode(a.active.Name())
	return true, nil
}

// Send delivers one encoded record over the active bearer. On failure the
// arbiter transitions to Disconnected and counts toward failover; it never
// retries within the call.
func (a *Arbiter) Send(ctx context.Context, rec *telem.Record) error {
	payload, err := rec.Encode()
	if err != nil {
		return err
	}

	if err := a.active.Send(ctx, payload); err != nil {
		a.state = Disconnected
		a.recordFailure()
		return fmt.Errorf("%w (%s): %v", ErrSendFailure, a.active.Name(), err)
	}

	a.state = Connected
	a.consecutiveFailures = 0
	a.session.SetTransportMode(a.active.Name())
	return nil
}

// recordFailure counts a failure and switches bearers once the threshold
// is reached. With both bearers failing the arbiter alternates between
// them, so a recovered primary is picked up again without special casing.
func (a *Arbiter) recordFailure() {
	a.consecutiveFailures++
	if a.fallback == nil || a.consecutiveFailures < a.failoverAfter {
		return
	}

	from := a.active
	to := a.fallback
	if a.active == a.fallback {
		to = a.primary
	}

	a.active = to
	a.consecutiveFailures = 0
	a.failovers++
	// Allow the switched bearer an immediate connect attempt.
	a.lastAttempt = time.Time{}
	a.session.SetTransportMode(to.Name())
	a.logger.Warn("transport failover", "from", from.Name(), "to", to.Name())

	for _, fn := range a.failoverCallbacks {
		fn(from.Name(), to.Name())
	}
}

// Close shuts down both bearers.
func (a *Arbiter) Close() error {
	var firstErr error
	if err := a.primary.Close(); err != nil {
		firstErr = err
	}
	if a.fallback != nil {
		if err := a.fallback.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
