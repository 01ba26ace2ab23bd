package tracking

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/coordsys/internal/clock"
)

// Source is a tracking device. Sample returns the current pose of every
// tool the device sees; a tool out of view is simply absent.
type Source interface {
	Name() string
	Sample(ctx context.Context) ([]Sample, error)
}

// SimulatedTool describes one tool moving on a circle around the origin
// of the device frame.
type SimulatedTool struct {
	Name   string
	Radius float64
	// Period is the time for one revolution, in milliseconds.
	Period clock.Millis
	Error  float64
}

// SimulatedSource is a deterministic Source: the pose of every tool is a
// pure function of the clock reading. The tool faces along its direction
// of travel.
type SimulatedSource struct {
	name  string
	clock clock.Clock
	tools []SimulatedTool
}

// NewSimulatedSource creates a simulated device reading c.
func NewSimulatedSource(name string, c clock.Clock, tools ...SimulatedTool) *SimulatedSource {
	return &SimulatedSource{name: name, clock: c, tools: tools}
}

func (s *SimulatedSource) Name() string { return s.name }

// Sample implements Source.
func (s *SimulatedSource) Sample(ctx context.Context) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]Sample, 0, len(s.tools))
	for _, tool := range s.tools {
		out = append(out, SimulatedPose(tool, now))
	}
	return out, nil
}

// SimulatedPose returns the pose of tool at time at.
func SimulatedPose(tool SimulatedTool, at clock.Millis) Sample {
	var angle float64
	if tool.Period > 0 {
		angle = 2 * math.Pi * math.Mod(float64(at), float64(tool.Period)) / float64(tool.Period)
	}
	return Sample{
		Tool:        tool.Name,
		Rotation:    mgl64.QuatRotate(angle+math.Pi/2, mgl64.Vec3{0, 0, 1}),
		Translation: mgl64.Vec3{tool.Radius * math.Cos(angle), tool.Radius * math.Sin(angle), 0},
		Error:       tool.Error,
		Time:        at,
	}
}

var _ Source = (*SimulatedSource)(nil)
