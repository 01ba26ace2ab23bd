package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/metrics"
)

// Acquirer polls one Source at the device frequency and writes every
// sample into a Buffer.
type Acquirer struct {
	source   Source
	buffer   *Buffer
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithAcquirerLogger sets the logger. Defaults to slog.Default().
func WithAcquirerLogger(l *slog.Logger) AcquirerOption {
	return func(a *Acquirer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAcquirerMetrics enables acquisition counters.
func WithAcquirerMetrics(m *metrics.Metrics) AcquirerOption {
	return func(a *Acquirer) {
		a.metrics = m
	}
}

// NewAcquirer creates an acquirer polling source at frequency hz.
// Non-positive frequencies fall back to 60 Hz.
func NewAcquirer(source Source, buffer *Buffer, hz float64, opts ...AcquirerOption) *Acquirer {
	if hz <= 0 {
		hz = 60
	}
	a := &Acquirer{
		source:   source,
		buffer:   buffer,
		interval: clock.PeriodForFrequency(hz).Duration(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Interval returns the polling interval.
func (a *Acquirer) Interval() time.Duration { return a.interval }

// Acquire reads the source once and buffers the result. Returns the
// number of samples buffered.
func (a *Acquirer) Acquire(ctx context.Context) (int, error) {
	samples, err := a.source.Sample(ctx)
	if err != nil {
		a.metrics.ObserveAcquisitionError(a.source.Name())
		return 0, err
	}

	for _, s := range samples {
		if a.buffer.Put(s) {
			a.metrics.ObserveDropped(s.Tool)
		}
		a.metrics.ObserveAcquired(s.Tool)
	}
	return len(samples), nil
}

// Run polls the source until ctx is cancelled. Read errors are logged and
// counted; the loop keeps going so a transient device fault only makes
// transforms stale.
func (a *Acquirer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("acquisition started", "source", a.source.Name(), "interval", a.interval)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("acquisition stopped", "source", a.source.Name())
			return nil
		case <-ticker.C:
			if _, err := a.Acquire(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("acquisition failed", "source", a.source.Name(), "error", err)
			}
		}
	}
}
