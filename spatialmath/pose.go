package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Pose is the pose of a sole frame on flat ground: a 3D position plus a heading about +Z.
// Pitch and roll of the sole are not represented.
type Pose struct {
	Position r3.Vector `json:"position"`
	Yaw      float64   `json:"yaw"`
}

// NewPose returns a pose at (x, y, z) with the given heading in radians.
func NewPose(x, y, z, yaw float64) Pose {
	return Pose{Position: r3.Vector{X: x, Y: y, Z: z}, Yaw: yaw}
}

// NewPoseFromPoint returns a pose at p with zero heading.
func NewPoseFromPoint(p r3.Vector) Pose {
	return Pose{Position: p}
}

// Point2 returns the planar position of the pose.
func (p Pose) Point2() r2.Point {
	return r2.Point{X: p.Position.X, Y: p.Position.Y}
}

// Forward returns the unit vector along the pose heading.
func (p Pose) Forward() r2.Point {
	return r2.Point{X: math.Cos(p.Yaw), Y: math.Sin(p.Yaw)}
}

// Left returns the unit vector 90 degrees counterclockwise of the heading.
func (p Pose) Left() r2.Point {
	return p.Forward().Ortho()
}

// TransformToWorld maps a point expressed in the pose's frame into the world frame.
func (p Pose) TransformToWorld(local r2.Point) r2.Point {
	return Rotate(local, p.Yaw).Add(p.Point2())
}

// TransformToLocal maps a world point into the pose's frame.
func (p Pose) TransformToLocal(world r2.Point) r2.Point {
	return Rotate(world.Sub(p.Point2()), -p.Yaw)
}

// Translate returns the pose shifted by the planar offset d, heading unchanged.
func (p Pose) Translate(d r2.Point) Pose {
	p.Position.X += d.X
	p.Position.Y += d.Y
	return p
}

// AlmostEqual reports whether both poses agree in position and heading within epsilon.
func (p Pose) AlmostEqual(other Pose, epsilon float64) bool {
	return p.Position.Sub(other.Position).Norm() <= epsilon &&
		math.Abs(AngleDifference(p.Yaw, other.Yaw)) <= epsilon
}

func (p Pose) String() string {
	return fmt.Sprintf("{X:%.4f Y:%.4f Z:%.4f Yaw:%.4f}", p.Position.X, p.Position.Y, p.Position.Z, p.Yaw)
}

// Rotate rotates v counterclockwise by yaw radians.
func Rotate(v r2.Point, yaw float64) r2.Point {
	s, c := math.Sincos(yaw)
	return r2.Point{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y}
}

// AngleDifference returns a-b wrapped to (-pi, pi].
func AngleDifference(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	switch {
	case d > math.Pi:
		d -= 2 * math.Pi
	case d <= -math.Pi:
		d += 2 * math.Pi
	}
	return d
}

// InterpolateYaw returns the heading a fraction alpha of the way from a to b along the short arc.
func InterpolateYaw(a, b, alpha float64) float64 {
	return a + alpha*AngleDifference(b, a)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b r2.Point) r2.Point {
	return a.Add(b).Mul(0.5)
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b r2.Point) float64 {
	return a.Sub(b).Norm()
}
