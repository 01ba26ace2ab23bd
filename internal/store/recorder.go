package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/metrics"
	"github.com/roach88/coordsys/internal/token"
	"github.com/roach88/coordsys/internal/tracking"
)

// DefaultQueueSize is the number of events and samples a Recorder holds
// before it starts dropping.
const DefaultQueueSize = 4096

var (
	// ErrQueueFull is returned by RecordSample when the write queue has
	// no room. The sample is dropped.
	ErrQueueFull = errors.New("recorder queue full")

	// ErrRecorderClosed is returned by RecordSample after Close.
	ErrRecorderClosed = errors.New("recorder closed")
)

// record is one queued write: exactly one of event and sample is set.
type record struct {
	event  *delegator.Event
	sample *tracking.Sample
}

// Recorder writes one session: the events published to a hub and the
// samples applied by a poller.
//
// Observe and RecordSample only queue; a single writer goroutine owned by
// the recorder performs the SQLite writes in arrival order, so request
// processing never waits on the database. Write failures are logged and
// counted, and a full queue drops the record.
type Recorder struct {
	store     *Store
	session   string
	ctx       context.Context
	logger    *slog.Logger
	metrics   *metrics.Metrics
	ids       token.Generator
	now       func() time.Time
	queueSize int

	// mu guards closed and the send side of queue.
	mu     sync.RWMutex
	closed bool
	queue  chan record
	done   chan struct{}

	hubMu sync.Mutex
	hub   *delegator.Hub
	sub   delegator.Subscription
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger. Defaults to slog.Default().
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorderMetrics counts write failures and dropped records.
func WithRecorderMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithSessionIDGenerator sets the generator for the session id.
// Defaults to token.UUIDv7Generator.
func WithSessionIDGenerator(gen token.Generator) RecorderOption {
	return func(r *Recorder) {
		if gen != nil {
			r.ids = gen
		}
	}
}

// WithWallClock sets the source of session start and end stamps.
func WithWallClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithQueueSize bounds the write queue. Defaults to DefaultQueueSize.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// NewRecorder starts a session for scene and its writer goroutine. ctx
// bounds every write the recorder makes; Close must be called to flush.
func NewRecorder(ctx context.Context, s *Store, scene string, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{
		store:     s,
		ctx:       ctx,
		logger:    slog.Default(),
		ids:       token.UUIDv7Generator{},
		now:       time.Now,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.session = r.ids.Generate()
	if err := s.CreateSession(ctx, r.session, scene, r.now()); err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}

	r.queue = make(chan record, r.queueSize)
	r.done = make(chan struct{})
	go r.writeLoop()

	r.logger.Info("recording session", "session", r.session, "scene", scene)
	return r, nil
}

// SessionID returns the id of the session being written.
func (r *Recorder) SessionID() string { return r.session }

// Attach subscribes the recorder to every event on h. Attaching again
// moves the subscription.
func (r *Recorder) Attach(h *delegator.Hub) {
	r.hubMu.Lock()
	defer r.hubMu.Unlock()

	if r.hub != nil {
		r.hub.Unsubscribe(r.sub)
	}
	r.hub = h
	r.sub = h.SubscribeAll(r.Observe)
}

// Observe queues one event. It has the delegator.Observer shape and never
// blocks.
func (r *Recorder) Observe(ev delegator.Event) {
	if err := r.enqueue(record{event: &ev}); errors.Is(err, ErrQueueFull) {
		r.logger.Warn("event not recorded", "session", r.session, "event", ev.Kind.String(), "error", err)
	}
}

// RecordSample implements tracking.SampleSink. It never blocks.
func (r *Recorder) RecordSample(s tracking.Sample) error {
	return r.enqueue(record{sample: &s})
}

func (r *Recorder) enqueue(rec record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- rec:
		return nil
	default:
		kind := "event"
		if rec.sample != nil {
			kind = "sample"
		}
		r.metrics.ObserveRecordDropped(kind)
		return ErrQueueFull
	}
}

// writeLoop drains the queue until Close closes it.
func (r *Recorder) writeLoop() {
	defer close(r.done)
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec record) {
	if rec.event != nil {
		if _, err := r.store.WriteEvent(r.ctx, r.session, *rec.event); err != nil {
			r.metrics.ObserveWriteFailure()
			r.logger.Error("record event failed", "session", r.session, "event", rec.event.Kind.String(), "error", err)
		}
		return
	}
	if _, err := r.store.WriteSample(r.ctx, r.session, *rec.sample); err != nil {
		r.metrics.ObserveWriteFailure()
		r.logger.Error("record sample failed", "session", r.session, "tool", rec.sample.Tool, "error", err)
	}
}

// Close detaches from the hub, writes everything still queued and stamps
// the session end. ctx bounds the wait for the queue and the final write;
// the recorder's own context may already be cancelled. Calling Close again
// only re-stamps the end.
func (r *Recorder) Close(ctx context.Context) error {
	r.hubMu.Lock()
	if r.hub != nil {
		r.hub.Unsubscribe(r.sub)
		r.hub = nil
	}
	r.hubMu.Unlock()

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return fmt.Errorf("flush session %s: %w", r.session, ctx.Err())
	}
	return r.store.EndSession(ctx, r.session, r.now())
}

var _ tracking.SampleSink = (*Recorder)(nil)
