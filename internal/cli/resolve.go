package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/scene"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	At         float64
	AllowStale bool
}

// ResolveResult is the outcome of one resolve query.
type ResolveResult struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	At        float64        `json:"at"`
	Connected bool           `json:"connected"`
	Stale     bool           `json:"stale"`
	Transform *TransformView `json:"transform,omitempty"`
}

func (r ResolveResult) RenderText(w io.Writer, verbose bool) {
	if !r.Connected {
		fmt.Fprintf(w, "%s -> %s: disconnected\n", r.From, r.To)
		return
	}
	status := "valid"
	if r.Stale {
		status = "STALE"
	}
	t := r.Transform
	fmt.Fprintf(w, "%s -> %s at t=%g: %s\n", r.From, r.To, r.At, status)
	fmt.Fprintf(w, "  rotation    [%.6g %.6g %.6g %.6g]\n", t.Rotation[0], t.Rotation[1], t.Rotation[2], t.Rotation[3])
	fmt.Fprintf(w, "  translation [%.6g %.6g %.6g]\n", t.Translation[0], t.Translation[1], t.Translation[2])
	fmt.Fprintf(w, "  error       %.6g\n", t.Error)
	if verbose {
		fmt.Fprintf(w, "  window      %s\n", t.window())
	}
}

func resultFromEvent(from, to string, at clock.Millis, ev delegator.Event) ResolveResult {
	r := ResolveResult{From: from, To: to, At: float64(at)}
	if ev.Kind != delegator.TransformToEvent {
		return r
	}
	view := NewTransformView(ev.Transform)
	r.Connected = true
	r.Stale = ev.Stale
	r.Transform = &view
	return r
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <scene> <from> [to]",
		Short: "Resolve the static transform between two nodes",
		Long: `Build a scene and resolve the transform that maps points in <from> into
[to]. [to] defaults to the scene's reference frame.

Only static calibration transforms exist in a freshly built scene, so
tracked tools are reported as disconnected; use run or replay for those.

Exit codes:
  0 - Transform resolved and valid at --at
  1 - Disconnected, or stale (unless --allow-stale)
  2 - Command error

Examples:
  coordsys resolve bench.yaml CT World
  coordsys resolve bench.cue Tracker --at 120 --format json`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.At, "at", 0, "query time in milliseconds")
	cmd.Flags().BoolVar(&opts.AllowStale, "allow-stale", false, "exit 0 for stale transforms")

	return cmd
}

func runResolve(opts *ResolveOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	desc, err := loadScene(formatter, args[0])
	if err != nil {
		return err
	}

	from := args[1]
	to := desc.Reference
	if len(args) == 3 {
		to = args[2]
	}
	if to == "" {
		_ = formatter.Error(ErrCodeNotFound, "no target given and scene has no reference frame", nil)
		return NewExitError(ExitCommandError, "missing target")
	}

	at := clock.Millis(opts.At)
	s, err := scene.Build(desc,
		scene.WithClock(clock.NewManual(at)),
		scene.WithLogger(opts.logger(cmd.ErrOrStderr())),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build scene", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ev, err := s.Resolve(ctx, from, to, at)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve failed", err)
	}

	result := resultFromEvent(from, to, at, ev)
	if err := formatter.Success(result); err != nil {
		return err
	}

	switch {
	case !result.Connected:
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s is not connected to %s", ErrCodeDisconnected, from, to))
	case result.Stale && !opts.AllowStale:
		return NewExitError(ExitFailure, fmt.Sprintf("%s: transform %s -> %s is stale at %g", ErrCodeStale, from, to, opts.At))
	}
	return nil
}
