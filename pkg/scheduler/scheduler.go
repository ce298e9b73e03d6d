// Package scheduler drives the control loop: when to sample location,
// when to send records or heartbeats, and when to attempt reconnection.
// One goroutine runs the loop; every component it touches is owned by it.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/buffer"
	"github.com/markus-lassfolk/trackerd/pkg/config"
	"github.com/markus-lassfolk/trackerd/pkg/gps"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
	"github.com/markus-lassfolk/trackerd/pkg/metrics"
	"github.com/markus-lassfolk/trackerd/pkg/movement"
	"github.com/markus-lassfolk/trackerd/pkg/telem"
)

// tickInterval is the loop granularity; well under the shortest
// configurable sampling interval.
const tickInterval = time.Second

// FixProvider is the location arbiter as the scheduler sees it.
type FixProvider interface {
	AcquireFix(ctx context.Context) (*gps.Fix, error)
}

// Transport is the transport arbiter as the scheduler sees it.
type Transport interface {
	Connected() bool
	TryConnect(ctx context.Context) (bool, error)
	Send(ctx context.Context, rec *telem.Record) error
}

// Scheduler holds only the mutable "time of last action" per action kind;
// all interval values and enable flags come from static configuration.
type Scheduler struct {
	cfg        *config.Config
	location   FixProvider
	classifier *movement.Classifier
	transport  Transport
	buf        *buffer.Buffer
	session    *telem.Session
	metrics    *metrics.Metrics
	logger     *logx.Logger

	// clock injection for tests
	now func() time.Time

	// statusSource runs on the loop goroutine; statusMu guards the
	// published document, the only loop state HTTP handlers may read.
	statusSource func() interface{}
	statusMu     sync.Mutex
	statusDoc    interface{}

	lastSample    time.Time
	lastHeartbeat time.Time
	lastFix       *gps.Fix
	lastState     movement.State
	pending       *telem.Record
}

func New(cfg *config.Config, location FixProvider, classifier *movement.Classifier, transport Transport, buf *buffer.Buffer, session *telem.Session, m *metrics.Metrics, logger *logx.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		location:   location,
		classifier: classifier,
		transport:  transport,
		buf:        buf,
		session:    session,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		lastState:  movement.Idle,
	}
}

// SetStatusSource registers the function producing the /status document.
// The scheduler invokes it after every tick, so it only ever observes
// loop-owned state from the loop goroutine. Must be called before Run;
// an initial document is published immediately.
func (s *Scheduler) SetStatusSource(fn func() interface{}) {
	s.statusSource = fn
	s.publishStatus()
}

// Status returns the most recently published status document. Safe to
// call from any goroutine.
func (s *Scheduler) Status() interface{} {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.statusDoc
}

func (s *Scheduler) publishStatus() {
	if s.statusSource == nil {
		return
	}
	doc := s.statusSource()
	s.statusMu.Lock()
	s.statusDoc = doc
	s.statusMu.Unlock()
}

// Run executes the control loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	start := s.now()
	s.lastHeartbeat = start

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.logger.Info("control loop started",
		"sampling_interval", s.session.SamplingInterval(),
		"heartbeat_enabled", s.cfg.EnableHeartbeat,
		"offline_capacity", s.cfg.MaxOfflineRecords)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("control loop stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs the per-tick decision table. No error stops the loop; every
// failure class is retried on a later tick, never in a tight loop.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	if !s.transport.Connected() {
		attempted, err := s.transport.TryConnect(ctx)
		if attempted {
			s.metrics.ReconnectAttempts.Inc()
			if err != nil {
				s.logger.Debug("reconnect attempt failed", "error", err)
			}
		}
	}

	if s.lastSample.IsZero() || now.Sub(s.lastSample) >= s.session.SamplingInterval() {
		s.sample(ctx, now)
	}

	if s.pending != nil {
		s.deliverPending(ctx)
	}

	if s.transport.Connected() && s.buf.Len() > 0 {
		s.drainOne(ctx)
	}

	if s.cfg.EnableHeartbeat && now.Sub(s.lastHeartbeat) >= s.cfg.HeartbeatInterval() {
		s.heartbeat(ctx, now)
	}

	s.metrics.BufferDepth.Set(float64(s.buf.Len()))
	s.publishStatus()
}

// sample acquires a fix, classifies movement and builds the next record.
// A fix timeout is reported as a gap; nothing is interpolated.
func (s *Scheduler) sample(ctx context.Context, now time.Time) {
	s.lastSample = now

	fixCtx, cancel := context.WithTimeout(ctx, s.cfg.GPSTimeout())
	fix, err := s.location.AcquireFix(fixCtx)
	cancel()
	if err != nil {
		if errors.Is(err, gps.ErrFixTimeout) {
			s.metrics.FixTimeouts.Inc()
			s.logger.Warn("sampling gap: no fix this interval")
		} else {
			s.logger.Error("fix acquisition failed", "error", err)
		}
		return
	}

	if s.cfg.EnableMovementDetection {
		state := s.classifier.Classify(s.lastFix, fix)
		if state != s.lastState {
			s.metrics.MovementStateChanges.Inc()
			s.logger.Info("movement state changed",
				"state", state.String(),
				"interval", s.classifier.Interval(state))
		}
		s.lastState = state
		s.session.SetSamplingInterval(s.classifier.Interval(state))
	}

	s.lastFix = fix
	s.pending = s.session.NewRecord(fix)
}

// deliverPending sends the freshest record, or hands it to the buffer
// when the transport is down or the send fails.
func (s *Scheduler) deliverPending(ctx context.Context) {
	rec := s.pending
	s.pending = nil

	if !s.transport.Connected() {
		if s.buf.Offer(rec) {
			s.metrics.BufferDrops.Inc()
		}
		return
	}

	if err := s.transport.Send(ctx, rec); err != nil {
		s.metrics.SendFailures.Inc()
		s.logger.Warn("live send failed, buffering record", "seq", rec.Seq, "error", err)
		if s.buf.Offer(rec) {
			s.metrics.BufferDrops.Inc()
		}
		return
	}
	s.metrics.RecordsSent.Inc()
}

// drainOne replays at most one buffered record per tick, so a long
// backlog cannot starve fresh samples.
func (s *Scheduler) drainOne(ctx context.Context) {
	rec := s.buf.Peek()
	if rec == nil {
		return
	}
	rec.Replayed = true

	if err := s.transport.Send(ctx, rec); err != nil {
		s.metrics.SendFailures.Inc()
		s.logger.Debug("replay failed, record stays buffered", "seq", rec.Seq, "error", err)
		return
	}
	s.buf.Ack(rec.Seq)
	s.metrics.RecordsReplayed.Inc()
	s.logger.Debug("replayed buffered record", "seq", rec.Seq, "remaining", s.buf.Len())
}

// heartbeat emits a liveness record independent of location data.
func (s *Scheduler) heartbeat(ctx context.Context, now time.Time) {
	s.lastHeartbeat = now
	rec := s.session.NewHeartbeat()
	s.metrics.Heartbeats.Inc()

	if !s.transport.Connected() {
		if s.buf.Offer(rec) {
			s.metrics.BufferDrops.Inc()
		}
		return
	}
	if err := s.transport.Send(ctx, rec); err != nil {
		s.metrics.SendFailures.Inc()
		if s.buf.Offer(rec) {
			s.metrics.BufferDrops.Inc()
		}
		return
	}
	s.metrics.RecordsSent.Inc()
}
