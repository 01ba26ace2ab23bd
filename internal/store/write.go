package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/tracking"
)

// CreateSession inserts a session row. Uses ON CONFLICT(id) DO NOTHING so
// a retried create is harmless.
func (s *Store) CreateSession(ctx context.Context, id, scene string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, scene, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, scene, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ? WHERE id = ?
	`, endedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// WriteSample appends an applied tracker sample and returns its seq.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteSample(ctx context.Context, sessionID string, sample tracking.Sample) (int64, error) {
	q, v := sample.Rotation, sample.Translation
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO samples
		(session_id, tool, rot_w, rot_x, rot_y, rot_z, trans_x, trans_y, trans_z, error, time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		sample.Tool,
		q.W, q.V[0], q.V[1], q.V[2],
		v[0], v[1], v[2],
		sample.Error,
		float64(sample.Time),
	)
	if err != nil {
		return 0, fmt.Errorf("write sample: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write sample: %w", err)
	}
	return seq, nil
}

// WriteEvent appends a delegator event and returns its seq. The transform
// is stored only for the kinds that carry one.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, sessionID string, ev delegator.Event) (int64, error) {
	var transformJSON any
	if carriesTransform(ev.Kind) {
		data, err := marshalTransform(ev.Transform)
		if err != nil {
			return 0, fmt.Errorf("write event: %w", err)
		}
		transformJSON = data
	}

	stale := 0
	if ev.Stale {
		stale = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(session_id, kind, node, parent, target, transform, stale, at_ms, time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		ev.Kind.String(),
		ev.Node.Name,
		ev.Parent.Name,
		ev.Target.Name,
		transformJSON,
		stale,
		float64(ev.At),
		float64(ev.Time),
	)
	if err != nil {
		return 0, fmt.Errorf("write event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write event: %w", err)
	}
	return seq, nil
}

func carriesTransform(k delegator.EventKind) bool {
	switch k {
	case delegator.TransformSetEvent, delegator.TransformToParentEvent, delegator.TransformToEvent:
		return true
	}
	return false
}
