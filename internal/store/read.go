package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/tracking"
	"github.com/roach88/coordsys/internal/transform"
)

// ErrSessionNotFound is returned when a session id (or any session, for
// LatestSession) does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is one recorded run.
type Session struct {
	ID        string
	Scene     string
	StartedAt time.Time
	// EndedAt is zero while the session is still recording or if the
	// process died before closing it.
	EndedAt time.Time
}

// SampleRecord is a stored sample with its position in the log.
type SampleRecord struct {
	Seq int64
	tracking.Sample
}

// EventRecord is a stored delegator event. Node names are recorded
// instead of graph IDs because IDs are only meaningful within one process.
type EventRecord struct {
	Seq       int64
	SessionID string
	Kind      string
	Node      string
	Parent    string
	Target    string
	// Transform is nil for kinds that carry none.
	Transform *transform.Transform
	Stale     bool
	At        clock.Millis
	Time      clock.Millis
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scene, started_at, ended_at
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scene, started_at, ended_at
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("latest session: %w", ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session, oldest first.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scene, started_at, ended_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSamples returns a session's samples in seq order.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadSamples(ctx context.Context, sessionID string) ([]SampleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tool, rot_w, rot_x, rot_y, rot_z, trans_x, trans_y, trans_z, error, time_ms
		FROM samples
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := []SampleRecord{}
	for rows.Next() {
		var (
			rec    SampleRecord
			q      mgl64.Quat
			v      mgl64.Vec3
			timeMs float64
		)
		if err := rows.Scan(&rec.Seq, &rec.Tool,
			&q.W, &q.V[0], &q.V[1], &q.V[2],
			&v[0], &v[1], &v[2],
			&rec.Error, &timeMs,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		rec.Rotation = q
		rec.Translation = v
		rec.Time = clock.Millis(timeMs)
		samples = append(samples, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// ReadEvents returns a session's events in seq order.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadEvents(ctx context.Context, sessionID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, kind, node, parent, target, transform, stale, at_ms, time_ms
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var (
			rec           EventRecord
			transformJSON sql.NullString
			stale         int
			at, tm        float64
		)
		if err := rows.Scan(&rec.Seq, &rec.SessionID, &rec.Kind, &rec.Node, &rec.Parent, &rec.Target,
			&transformJSON, &stale, &at, &tm,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if transformJSON.Valid {
			t, err := unmarshalTransform(transformJSON.String)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", rec.Seq, err)
			}
			rec.Transform = &t
		}
		rec.Stale = stale != 0
		rec.At = clock.Millis(at)
		rec.Time = clock.Millis(tm)
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEventsByKind returns the number of events of each kind recorded in
// a session.
func (s *Store) CountEventsByKind(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM events
		WHERE session_id = ?
		GROUP BY kind
		ORDER BY kind COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess    Session
		started string
		ended   sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.Scene, &started, &ended); err != nil {
		return Session{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = t

	if ended.Valid {
		t, err := time.Parse(time.RFC3339Nano, ended.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = t
	}
	return sess, nil
}
