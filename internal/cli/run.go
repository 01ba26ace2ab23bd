package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/metrics"
	"github.com/roach88/coordsys/internal/scene"
	"github.com/roach88/coordsys/internal/store"
	"github.com/roach88/coordsys/internal/token"
	"github.com/roach88/coordsys/internal/tracking"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	Duration     time.Duration
	MetricsAddr  string
	PollInterval time.Duration
	MarginMS     float64

	// SessionGenerator overrides the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionGenerator token.Generator
}

// ToolPose is the last known pose of one tool in the reference frame.
type ToolPose struct {
	Tool      string         `json:"tool"`
	At        float64        `json:"at"`
	Connected bool           `json:"connected"`
	Stale     bool           `json:"stale"`
	Transform *TransformView `json:"transform,omitempty"`
}

// SessionResult summarises a run or a replay.
type SessionResult struct {
	SessionID string     `json:"session_id"`
	Scene     string     `json:"scene"`
	Reference string     `json:"reference,omitempty"`
	Samples   int        `json:"samples"`
	Applied   int        `json:"applied"`
	Events    int        `json:"events,omitempty"`
	Tools     []ToolPose `json:"tools"`
}

func (r SessionResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Session %s (scene %q)\n", r.SessionID, r.Scene)
	fmt.Fprintf(w, "  samples: %d applied: %d", r.Samples, r.Applied)
	if r.Events > 0 {
		fmt.Fprintf(w, " events: %d", r.Events)
	}
	fmt.Fprintln(w)
	if r.Reference == "" {
		fmt.Fprintln(w, "  no reference frame; tool poses not resolved")
		return
	}
	for _, p := range r.Tools {
		switch {
		case !p.Connected:
			fmt.Fprintf(w, "  %s -> %s: disconnected\n", p.Tool, r.Reference)
		default:
			t := p.Transform
			status := ""
			if p.Stale {
				status = " (stale)"
			}
			fmt.Fprintf(w, "  %s -> %s at t=%.1f: [%.3f %.3f %.3f] ±%.3g%s\n",
				p.Tool, r.Reference, p.At, t.Translation[0], t.Translation[1], t.Translation[2], t.Error, status)
			if verbose {
				fmt.Fprintf(w, "    rotation [%.6g %.6g %.6g %.6g] window %s\n",
					t.Rotation[0], t.Rotation[1], t.Rotation[2], t.Rotation[3], t.window())
			}
		}
	}
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scene>",
		Short: "Drive a scene from simulated trackers and record the session",
		Long: `Build a scene, start one simulated tracker per tracker node and feed
tool poses into the graph until interrupted or --duration elapses.

Every applied sample and every delegator event is recorded to the session
database so the run can be replayed. When --metrics-addr is set, Prometheus
metrics are served on /metrics.

Flags default to the COORDSYS_* environment variables.

Example:
  coordsys run --db ./bench.db --duration 5s bench.yaml
  coordsys run --metrics-addr :9090 bench.cue --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $COORDSYS_DB)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", 0, "buffer poll interval (default $COORDSYS_POLL_INTERVAL)")
	cmd.Flags().Float64Var(&opts.MarginMS, "margin", -1, "validity margin in ms (default $COORDSYS_VALIDITY_MARGIN_MS)")

	return cmd
}

// applyDefaults fills unset flags from the environment configuration.
func (o *RunOptions) applyDefaults() error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	if o.Database == "" {
		o.Database = cfg.DBPath
	}
	if o.MetricsAddr == "" {
		o.MetricsAddr = cfg.MetricsAddr
	}
	if o.PollInterval <= 0 {
		o.PollInterval = cfg.PollInterval
	}
	if o.MarginMS < 0 {
		o.MarginMS = cfg.ValidityMarginMS
	}
	return nil
}

func runSession(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	if err := opts.applyDefaults(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	desc, err := loadScene(formatter, path)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if opts.Duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, opts.Duration)
		defer cancelTimeout()
	}

	reg, m, err := metrics.NewRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	if opts.MetricsAddr != "" {
		stop := serveMetrics(opts.MetricsAddr, reg, logger)
		defer stop()
	}

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	recOpts := []store.RecorderOption{
		store.WithRecorderLogger(logger),
		store.WithRecorderMetrics(m),
	}
	if opts.SessionGenerator != nil {
		recOpts = append(recOpts, store.WithSessionIDGenerator(opts.SessionGenerator))
	}
	// Writes outlive ctx: the poller flushes the buffer after cancellation.
	rec, err := store.NewRecorder(context.WithoutCancel(ctx), st, desc.Name, recOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}

	hub := delegator.NewHub()
	rec.Attach(hub)
	events := countEvents(hub)

	s, err := scene.Build(desc,
		scene.WithHub(hub),
		scene.WithLogger(logger),
		scene.WithMetrics(m),
	)
	if err != nil {
		_ = rec.Close(context.Background())
		return WrapExitError(ExitFailure, "failed to build scene", err)
	}
	defer s.Close()

	sink := newLastSampleSink(rec)
	buffer := tracking.NewBuffer()
	poller := tracking.NewPoller(buffer, s.Bindings(),
		tracking.WithMargin(clock.Millis(opts.MarginMS)),
		tracking.WithInterval(opts.PollInterval),
		tracking.WithSink(sink),
		tracking.WithPollerLogger(logger),
		tracking.WithPollerMetrics(m),
	)

	pollCtx, stopPolling := context.WithCancel(context.WithoutCancel(ctx))
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = poller.Run(pollCtx)
	}()

	logger.Info("session started", "session", rec.SessionID(), "scene", desc.Name, "tools", len(s.Tools()))
	g, gctx := errgroup.WithContext(ctx)
	for _, dev := range s.SimulatedDevices() {
		acq := tracking.NewAcquirer(dev.Source, buffer, dev.Frequency,
			tracking.WithAcquirerLogger(logger),
			tracking.WithAcquirerMetrics(m),
		)
		g.Go(func() error { return acq.Run(gctx) })
	}
	runErr := g.Wait()

	// Acquisition has stopped; let the poller apply what is left.
	stopPolling()
	<-pollDone
	logger.Info("session stopped", "session", rec.SessionID())

	result := SessionResult{
		SessionID: rec.SessionID(),
		Scene:     desc.Name,
		Reference: desc.Reference,
		Samples:   buffer.Received(),
		Applied:   sink.count(),
		Events:    events(),
		Tools:     resolveTools(context.Background(), s, desc.Reference, sink.lastTimes()),
	}

	if err := rec.Close(context.Background()); err != nil {
		logger.Error("error ending session", "session", rec.SessionID(), "error", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "acquisition error", runErr)
	}

	return formatter.Success(result)
}

// serveMetrics starts the Prometheus endpoint and returns a func that shuts
// it down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// countEvents subscribes to h and returns a func reporting how many
// events have been published so far.
func countEvents(h *delegator.Hub) func() int {
	var mu sync.Mutex
	n := 0
	h.SubscribeAll(func(delegator.Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return n
	}
}

// lastSampleSink forwards samples and remembers each tool's latest sample
// time, the natural time to resolve its pose at.
type lastSampleSink struct {
	next tracking.SampleSink

	mu   sync.Mutex
	n    int
	last map[string]clock.Millis
}

func newLastSampleSink(next tracking.SampleSink) *lastSampleSink {
	return &lastSampleSink{next: next, last: make(map[string]clock.Millis)}
}

func (s *lastSampleSink) RecordSample(sample tracking.Sample) error {
	s.mu.Lock()
	s.n++
	if sample.Time > s.last[sample.Tool] {
		s.last[sample.Tool] = sample.Time
	}
	s.mu.Unlock()
	return s.next.RecordSample(sample)
}

func (s *lastSampleSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *lastSampleSink) lastTimes() map[string]clock.Millis {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]clock.Millis, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}

// resolveTools resolves every tool to reference at its last sample time.
// Tools that never reported are resolved at the scene clock's now and
// come back disconnected.
func resolveTools(ctx context.Context, s *scene.Scene, reference string, last map[string]clock.Millis) []ToolPose {
	poses := make([]ToolPose, 0, len(s.Tools()))
	if reference == "" {
		return poses
	}
	for _, tool := range s.Tools() {
		at, ok := last[tool.Name]
		if !ok {
			at = s.Clock().Now()
		}
		ev, err := s.Resolve(ctx, tool.Name, reference, at)
		if err != nil {
			poses = append(poses, ToolPose{Tool: tool.Name, At: float64(at)})
			continue
		}
		r := resultFromEvent(tool.Name, reference, at, ev)
		poses = append(poses, ToolPose{
			Tool:      tool.Name,
			At:        r.At,
			Connected: r.Connected,
			Stale:     r.Stale,
			Transform: r.Transform,
		})
	}
	return poses
}
