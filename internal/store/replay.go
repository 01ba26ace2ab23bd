package store

import (
	"context"
	"fmt"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/tracking"
)

// ReplaySummary reports what a replay fed back.
type ReplaySummary struct {
	SessionID string
	Samples   int
	Applied   int
	// LastTime is the sample time of the final sample, the natural query
	// time for resolving transforms after the replay.
	LastTime clock.Millis
}

// Replay feeds a session's samples to apply in seq order. apply reports
// whether the sample was applied; tracking.Poller.Apply has this shape.
//
// Replay is deterministic: the same session replayed into two fresh
// scenes issues identical request sequences.
func (s *Store) Replay(ctx context.Context, sessionID string, apply func(tracking.Sample) bool) (ReplaySummary, error) {
	summary := ReplaySummary{SessionID: sessionID}

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return summary, fmt.Errorf("replay: %w", err)
	}

	samples, err := s.ReadSamples(ctx, sessionID)
	if err != nil {
		return summary, fmt.Errorf("replay: %w", err)
	}

	for _, rec := range samples {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("replay interrupted after %d samples: %w", summary.Samples, err)
		}
		summary.Samples++
		if apply(rec.Sample) {
			summary.Applied++
		}
		summary.LastTime = rec.Time
	}
	return summary, nil
}
