package fsm

import "log/slog"

// Option configures a Machine.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	onUnhandled func(UnhandledInput)
}

// WithLogger sets the logger used for processing diagnostics.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUnhandledHandler registers a callback invoked for every input that
// has no transition in the current state. The callback runs on the
// draining goroutine and must not block.
func WithUnhandledHandler(fn func(UnhandledInput)) Option {
	return func(o *options) {
		o.onUnhandled = fn
	}
}
