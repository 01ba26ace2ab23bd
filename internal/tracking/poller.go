package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/metrics"
)

// Binding connects a tracked tool to the delegators its samples update.
type Binding struct {
	Tool *delegator.Delegator
	// Parent is the tracker the tool's pose is reported relative to.
	Parent *delegator.Delegator
	// Frequency is the device frequency in Hz; it sets the validity
	// window of every applied sample.
	Frequency float64
}

// SampleSink receives every sample the poller applies.
type SampleSink interface {
	RecordSample(s Sample) error
}

// Poller drains a Buffer and applies samples to delegators.
type Poller struct {
	buffer   *Buffer
	bindings map[string]Binding
	margin   clock.Millis
	interval time.Duration
	sink     SampleSink
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithMargin extends every validity window by m milliseconds beyond one
// device period. Defaults to 5ms.
func WithMargin(m clock.Millis) PollerOption {
	return func(p *Poller) {
		if m >= 0 {
			p.margin = m
		}
	}
}

// WithInterval sets the tick interval of Run. Defaults to 16ms.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithSink forwards every applied sample to s.
func WithSink(s SampleSink) PollerOption {
	return func(p *Poller) {
		p.sink = s
	}
}

// WithPollerLogger sets the logger. Defaults to slog.Default().
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPollerMetrics enables the applied and dropped counters.
func WithPollerMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

// NewPoller creates a poller applying samples for the tools in bindings.
func NewPoller(buffer *Buffer, bindings map[string]Binding, opts ...PollerOption) *Poller {
	p := &Poller{
		buffer:   buffer,
		bindings: bindings,
		margin:   5,
		interval: 16 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tick drains the buffer once and applies every sample with a bound, live
// tool. Other samples are dropped. Returns the number applied.
func (p *Poller) Tick() int {
	applied := 0
	for _, s := range p.buffer.Drain() {
		if p.Apply(s) {
			applied++
		}
	}
	return applied
}

// Apply issues the request for a single sample. It is also the entry
// point for replaying recorded samples.
func (p *Poller) Apply(s Sample) bool {
	b, ok := p.bindings[s.Tool]
	if !ok || b.Tool == nil {
		p.logger.Warn("sample for unbound tool dropped", "tool", s.Tool)
		p.metrics.ObserveDropped(s.Tool)
		return false
	}
	if b.Tool.Closed() {
		p.logger.Warn("sample for closed tool dropped", "tool", s.Tool)
		p.metrics.ObserveDropped(s.Tool)
		return false
	}

	validFor := clock.PeriodForFrequency(b.Frequency) + p.margin
	b.Tool.RequestSetTransformAndParent(s.Transform(validFor), b.Parent)
	p.metrics.ObserveApplied(s.Tool)

	if p.sink != nil {
		if err := p.sink.RecordSample(s); err != nil {
			p.logger.Error("record sample failed", "tool", s.Tool, "error", err)
		}
	}
	return true
}

// Run ticks until ctx is cancelled, then applies whatever is left in the
// buffer.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Tick()
			return nil
		case <-ticker.C:
			p.Tick()
		}
	}
}
