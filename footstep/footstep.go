package footstep

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"go.viam.com/balance/spatialmath"
)

// TrajectoryType selects how the swing trajectory collaborator shapes the swing.
type TrajectoryType int

// Known swing trajectory shapes.
const (
	TrajectoryDefault TrajectoryType = iota
	TrajectoryObstacleClearance
	TrajectoryCustom
)

func (t TrajectoryType) String() string {
	switch t {
	case TrajectoryDefault:
		return "default"
	case TrajectoryObstacleClearance:
		return "obstacle_clearance"
	case TrajectoryCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Footstep is a planned foothold. Side is the side of the foot that is placed by this step, so the
// opposite side supports the robot while the step swings.
type Footstep struct {
	ID   uuid.UUID        `json:"id"`
	Pose spatialmath.Pose `json:"pose"`
	Side Side             `json:"side"`
	// ContactPoints is the predicted sole polygon in the foot frame. Empty means use the default foot.
	ContactPoints  []r2.Point     `json:"contact_points,omitempty"`
	TrajectoryType TrajectoryType `json:"trajectory_type"`
	SwingHeight    float64        `json:"swing_height"`
	// Waypoints are only used with TrajectoryCustom.
	Waypoints []r3.Vector `json:"waypoints,omitempty"`
}

// New returns a default-trajectory footstep with a fresh ID.
func New(side Side, pose spatialmath.Pose) Footstep {
	return Footstep{
		ID:   uuid.New(),
		Pose: pose,
		Side: side,
	}
}

// SupportSide is the side that carries the robot while this step swings.
func (f Footstep) SupportSide() Side {
	return f.Side.Opposite()
}

// Position2 returns the planar target position.
func (f Footstep) Position2() r2.Point {
	return f.Pose.Point2()
}

// Polygon returns the footstep's contact polygon in world frame, falling back to defaultSole (foot frame)
// when the footstep carries no predicted contact points.
func (f Footstep) Polygon(defaultSole spatialmath.ConvexPolygon) spatialmath.ConvexPolygon {
	if len(f.ContactPoints) >= 3 {
		return spatialmath.NewConvexPolygon(f.ContactPoints...).TransformToWorld(f.Pose)
	}
	return defaultSole.TransformToWorld(f.Pose)
}

// Adjust shifts the footstep target by a planar world-frame offset.
func (f *Footstep) Adjust(delta r2.Point) {
	f.Pose = f.Pose.Translate(delta)
}

// Clone returns a deep copy.
func (f Footstep) Clone() Footstep {
	out := f
	if f.ContactPoints != nil {
		out.ContactPoints = append([]r2.Point(nil), f.ContactPoints...)
	}
	if f.Waypoints != nil {
		out.Waypoints = append([]r3.Vector(nil), f.Waypoints...)
	}
	return out
}
