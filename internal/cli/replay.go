package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/scene"
	"github.com/roach88/coordsys/internal/store"
	"github.com/roach88/coordsys/internal/tracking"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - latest session if empty
	MarginMS float64
}

// ReplayResult is a replayed session plus the determinism check.
type ReplayResult struct {
	SessionResult
	Deterministic bool `json:"deterministic"`
}

func (r ReplayResult) RenderText(w io.Writer, verbose bool) {
	r.SessionResult.RenderText(w, verbose)
	if r.Deterministic {
		fmt.Fprintln(w, "✓ Replay deterministic")
		return
	}
	fmt.Fprintln(w, "✗ Replays differ")
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scene>",
		Short: "Replay a recorded session and verify determinism",
		Long: `Feed a recorded session's samples, in recorded order, into a fresh build
of the scene and report every tool's final pose in the reference frame.

The session is replayed twice into two independent scenes driven by a
manual clock set to each sample's time; both replays must produce
identical poses.

Exit codes:
  0 - Replay is deterministic
  1 - Replays differ
  2 - Command error (database or session not found, etc.)

Examples:
  coordsys replay --db ./bench.db bench.yaml
  coordsys replay --db ./bench.db --session 0190... bench.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $COORDSYS_DB)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default latest)")
	cmd.Flags().Float64Var(&opts.MarginMS, "margin", -1, "validity margin in ms (default $COORDSYS_VALIDITY_MARGIN_MS)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.config()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Database == "" {
		opts.Database = cfg.DBPath
	}
	if opts.MarginMS < 0 {
		opts.MarginMS = cfg.ValidityMarginMS
	}

	desc, err := loadScene(formatter, path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// store.Open would create a missing database.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database %s not found", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	session, err := findSession(ctx, st, opts.Session)
	if err != nil {
		code := ErrCodeStore
		if errors.Is(err, store.ErrSessionNotFound) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "no session to replay", err)
	}
	if session.Scene != desc.Name {
		formatter.VerboseLog("Session %s was recorded for scene %q, replaying into %q", session.ID, session.Scene, desc.Name)
	}

	logger := opts.logger(cmd.ErrOrStderr())
	margin := clock.Millis(opts.MarginMS)
	first, err := replayOnce(ctx, st, desc, session.ID, margin, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	second, err := replayOnce(ctx, st, desc, session.ID, margin, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	counts, err := st.CountEventsByKind(ctx, session.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}
	for _, n := range counts {
		first.Events += n
	}

	result := ReplayResult{
		SessionResult: first,
		Deterministic: reflect.DeepEqual(first.Tools, second.Tools),
	}
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "replays of session "+session.ID+" differ")
	}
	return nil
}

func findSession(ctx context.Context, st *store.Store, id string) (store.Session, error) {
	if id != "" {
		return st.GetSession(ctx, id)
	}
	return st.LatestSession(ctx)
}

// replayOnce builds a fresh scene on a manual clock and feeds it the
// session's samples.
func replayOnce(ctx context.Context, st *store.Store, desc *scene.Description, sessionID string, margin clock.Millis, logger *slog.Logger) (SessionResult, error) {
	clk := clock.NewManual(0)
	s, err := scene.Build(desc,
		scene.WithClock(clk),
		scene.WithLogger(logger),
	)
	if err != nil {
		return SessionResult{}, err
	}
	defer s.Close()

	poller := tracking.NewPoller(tracking.NewBuffer(), s.Bindings(),
		tracking.WithMargin(margin),
		tracking.WithPollerLogger(logger),
	)

	last := make(map[string]clock.Millis)
	summary, err := st.Replay(ctx, sessionID, func(sample tracking.Sample) bool {
		clk.Set(sample.Time)
		if !poller.Apply(sample) {
			return false
		}
		last[sample.Tool] = sample.Time
		return true
	})
	if err != nil {
		return SessionResult{}, err
	}

	return SessionResult{
		SessionID: sessionID,
		Scene:     desc.Name,
		Reference: desc.Reference,
		Samples:   summary.Samples,
		Applied:   summary.Applied,
		Tools:     resolveTools(ctx, s, desc.Reference, last),
	}, nil
}
