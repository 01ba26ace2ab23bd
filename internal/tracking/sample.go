package tracking

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/transform"
)

// Sample is one pose reported by a tracking device for one tool, in the
// frame of the device.
type Sample struct {
	Tool        string
	Rotation    mgl64.Quat
	Translation mgl64.Vec3
	Error       float64
	Time        clock.Millis
}

// Transform converts the sample into a transform valid from the sample
// time for validFor milliseconds.
func (s Sample) Transform(validFor clock.Millis) transform.Transform {
	return transform.New(s.Rotation, s.Translation, s.Error, s.Time, validFor)
}
