// Package transform implements the time-qualified rigid transform carried
// by every edge of the coordinate-system graph.
//
// A Transform is a rotation (unit quaternion) followed by a translation,
// an estimated spatial error and a validity window. Values are immutable:
// every operation returns a new Transform.
//
// Composition rules:
//   - rotation and translation compose as rigid motions
//   - errors add (the estimate never shrinks along a chain)
//   - validity windows intersect; an empty intersection yields a
//     transform that is never valid
package transform

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/coordsys/internal/clock"
)

// Tolerance is the absolute tolerance used by Equal for every component.
// Tests compare against the same value.
const Tolerance = 1e-6

// Transform maps points from a child frame into its parent frame and is
// trusted only between Start and Expiration (inclusive).
type Transform struct {
	rotation    mgl64.Quat
	translation mgl64.Vec3
	err         float64
	start       clock.Millis
	expiration  clock.Millis
}

// New creates a transform valid from start for validFor milliseconds.
// The rotation is normalized; a zero quaternion becomes the identity.
// Negative errors are clamped to zero.
func New(rot mgl64.Quat, trans mgl64.Vec3, errorValue float64, start, validFor clock.Millis) Transform {
	return NewWindow(rot, trans, errorValue, start, start+validFor)
}

// NewWindow creates a transform valid on [start, expiration]. A window
// with expiration before start is never valid.
func NewWindow(rot mgl64.Quat, trans mgl64.Vec3, errorValue float64, start, expiration clock.Millis) Transform {
	t := Transform{
		rotation:    rot.Normalize(),
		translation: trans,
		err:         clampError(errorValue),
		start:       start,
		expiration:  expiration,
	}
	if expiration < start {
		t.start, t.expiration = neverWindow()
	}
	return t
}

// Static creates a transform valid for all time, the form used for
// calibration results that are installed once and never refreshed.
func Static(rot mgl64.Quat, trans mgl64.Vec3, errorValue float64) Transform {
	return NewWindow(rot, trans, errorValue, clock.NegativeInfinity, clock.PositiveInfinity)
}

// Identity returns the identity transform with zero error and an
// unbounded validity window.
func Identity() Transform {
	return Static(mgl64.QuatIdent(), mgl64.Vec3{}, 0)
}

// Translate returns a pure translation valid for all time.
func Translate(x, y, z float64) Transform {
	return Static(mgl64.QuatIdent(), mgl64.Vec3{x, y, z}, 0)
}

// Rotation returns the unit quaternion part.
func (t Transform) Rotation() mgl64.Quat { return t.rotation }

// Translation returns the translation part.
func (t Transform) Translation() mgl64.Vec3 { return t.translation }

// Error returns the estimated spatial error.
func (t Transform) Error() float64 { return t.err }

// Start returns the first instant the transform is valid.
func (t Transform) Start() clock.Millis { return t.start }

// Expiration returns the last instant the transform is valid.
func (t Transform) Expiration() clock.Millis { return t.expiration }

// IsValidAtTime reports whether at lies inside the validity window.
func (t Transform) IsValidAtTime(at clock.Millis) bool {
	return t.start <= at && at <= t.expiration
}

// IsValidForAllTime reports whether the window is unbounded on both ends.
func (t Transform) IsValidForAllTime() bool {
	return t.start == clock.NegativeInfinity && t.expiration == clock.PositiveInfinity
}

// IsNeverValid reports whether the window is empty.
func (t Transform) IsNeverValid() bool {
	return t.start > t.expiration
}

// WithWindow returns a copy of t with a new validity window.
func (t Transform) WithWindow(start, expiration clock.Millis) Transform {
	return NewWindow(t.rotation, t.translation, t.err, start, expiration)
}

// Apply maps a point expressed in the child frame into the parent frame.
func (t Transform) Apply(p mgl64.Vec3) mgl64.Vec3 {
	return t.rotation.Rotate(p).Add(t.translation)
}

// Compose returns outer∘inner: the transform that applies inner first and
// then outer. If inner maps A into B and outer maps B into C, the result
// maps A into C.
func Compose(outer, inner Transform) Transform {
	rot := outer.rotation.Mul(inner.rotation).Normalize()
	trans := outer.rotation.Rotate(inner.translation).Add(outer.translation)

	start := clock.Millis(math.Max(float64(outer.start), float64(inner.start)))
	expiration := clock.Millis(math.Min(float64(outer.expiration), float64(inner.expiration)))
	if start > expiration {
		start, expiration = neverWindow()
	}

	return Transform{
		rotation:    rot,
		translation: trans,
		err:         outer.err + inner.err,
		start:       start,
		expiration:  expiration,
	}
}

// Inverse returns the transform mapping the parent frame back into the
// child frame. Error and validity window are unchanged.
func Inverse(t Transform) Transform {
	conj := t.rotation.Conjugate()
	return Transform{
		rotation:    conj,
		translation: conj.Rotate(t.translation.Mul(-1)),
		err:         t.err,
		start:       t.start,
		expiration:  t.expiration,
	}
}

// Equal reports whether a and b match in rotation, translation, error and
// window within Tolerance. q and -q describe the same rotation and compare
// equal.
func Equal(a, b Transform) bool {
	return RigidEqual(a, b) &&
		floatEqual(a.err, b.err) &&
		floatEqual(float64(a.start), float64(b.start)) &&
		floatEqual(float64(a.expiration), float64(b.expiration))
}

// RigidEqual compares only rotation and translation within Tolerance.
func RigidEqual(a, b Transform) bool {
	return quatEqual(a.rotation, b.rotation) && vecEqual(a.translation, b.translation)
}

// String formats the transform for logs.
func (t Transform) String() string {
	q, v := t.rotation, t.translation
	return fmt.Sprintf("rot=[%.6g %.6g %.6g %.6g] trans=[%.6g %.6g %.6g] err=%.6g window=[%g,%g]",
		q.W, q.V[0], q.V[1], q.V[2], v[0], v[1], v[2], t.err, float64(t.start), float64(t.expiration))
}

func neverWindow() (clock.Millis, clock.Millis) {
	return clock.PositiveInfinity, clock.NegativeInfinity
}

func clampError(e float64) float64 {
	if e < 0 || math.IsNaN(e) {
		return 0
	}
	return e
}

func floatEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= Tolerance
}

func vecEqual(a, b mgl64.Vec3) bool {
	for i := range a {
		if !floatEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func quatEqual(a, b mgl64.Quat) bool {
	same := floatEqual(a.W, b.W) && vecEqual(a.V, b.V)
	flipped := floatEqual(a.W, -b.W) && vecEqual(a.V, b.V.Mul(-1))
	return same || flipped
}
