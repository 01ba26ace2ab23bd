package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/transform"
)

// transformRecord is the stored JSON shape of a transform. Nil window
// edges stand for the unbounded sentinels; Never marks an empty window.
type transformRecord struct {
	Rotation    [4]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
	Error       float64    `json:"error"`
	Start       *float64   `json:"start"`
	Expiration  *float64   `json:"expiration"`
	Never       bool       `json:"never,omitempty"`
}

func windowEdge(m clock.Millis) *float64 {
	if m.IsInf() {
		return nil
	}
	v := float64(m)
	return &v
}

// marshalTransform converts a transform to JSON TEXT for storage.
func marshalTransform(t transform.Transform) (string, error) {
	q, v := t.Rotation(), t.Translation()
	rec := transformRecord{
		Rotation:    [4]float64{q.W, q.V[0], q.V[1], q.V[2]},
		Translation: [3]float64{v[0], v[1], v[2]},
		Error:       t.Error(),
		Start:       windowEdge(t.Start()),
		Expiration:  windowEdge(t.Expiration()),
		Never:       t.IsNeverValid(),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("marshal transform: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalTransform parses JSON TEXT back into a transform.
func unmarshalTransform(data string) (transform.Transform, error) {
	var rec transformRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return transform.Transform{}, fmt.Errorf("unmarshal transform: %w", err)
	}

	start, expiration := clock.NegativeInfinity, clock.PositiveInfinity
	if rec.Never {
		start, expiration = clock.PositiveInfinity, clock.NegativeInfinity
	}
	if rec.Start != nil {
		start = clock.Millis(*rec.Start)
	}
	if rec.Expiration != nil {
		expiration = clock.Millis(*rec.Expiration)
	}

	rot := mgl64.Quat{W: rec.Rotation[0], V: mgl64.Vec3{rec.Rotation[1], rec.Rotation[2], rec.Rotation[3]}}
	trans := mgl64.Vec3{rec.Translation[0], rec.Translation[1], rec.Translation[2]}
	return transform.NewWindow(rot, trans, rec.Error, start, expiration), nil
}
