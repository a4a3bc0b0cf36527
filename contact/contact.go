// Package contact tracks which part of each foot carries load and derives the support polygon from it.
package contact

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/balance/config"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/spatialmath"
)

// Constraint is the contact mode of one foot.
type Constraint int

// The contact modes.
const (
	ConstraintFull Constraint = iota
	ConstraintToes
	ConstraintSwing
)

func (c Constraint) String() string {
	switch c {
	case ConstraintFull:
		return "full"
	case ConstraintToes:
		return "toes"
	case ConstraintSwing:
		return "swing"
	}
	return "unknown"
}

// State is the contact of one foot. Points are in the sole frame.
type State struct {
	Constraint Constraint
	Points     []r2.Point
	Friction   float64
}

// InContact reports whether the foot carries load.
func (s State) InContact() bool {
	return s.Constraint != ConstraintSwing
}

// Manager owns both feet's contact states. The support polygon is recomputed on every mutation.
type Manager struct {
	toeOff config.ToeOffConfig
	logger logging.Logger

	sole     spatialmath.ConvexPolygon
	toes     spatialmath.LineSegment
	friction float64

	states       [2]State
	poses        [2]spatialmath.Pose
	footPolygons [2]spatialmath.ConvexPolygon
	support      spatialmath.ConvexPolygon
}

// NewManager returns a manager with both feet in full contact at the given poses.
func NewManager(foot config.FootConfig, toeOff config.ToeOffConfig, poses [2]spatialmath.Pose, logger logging.Logger) (*Manager, error) {
	sole := foot.SolePolygon()
	if sole.NumVertices() < 3 {
		return nil, errors.New("foot polygon needs at least three vertices")
	}
	m := &Manager{
		toeOff:   toeOff,
		logger:   logger,
		sole:     sole,
		toes:     toeSegment(sole, toeOff.ToeWidthFraction),
		friction: foot.Friction,
		poses:    poses,
	}
	for _, side := range footstep.Sides {
		m.states[side] = State{Constraint: ConstraintFull, Points: sole.Vertices(), Friction: foot.Friction}
	}
	m.update()
	return m, nil
}

// toeSegment is the front-most edge of the sole scaled about its midpoint by widthFraction.
func toeSegment(sole spatialmath.ConvexPolygon, widthFraction float64) spatialmath.LineSegment {
	forward := r2.Point{X: 1}
	var best spatialmath.LineSegment
	bestScore := -1.0
	for _, e := range sole.Edges() {
		d := e.End.Sub(e.Start)
		// counterclockwise, so the outward normal is (dy, -dx)
		normal := r2.Point{X: d.Y, Y: -d.X}.Normalize()
		if score := normal.Dot(forward); score > bestScore {
			best, bestScore = e, score
		}
	}
	if widthFraction <= 0 {
		widthFraction = 1
	}
	return best.Shrink(widthFraction)
}

func (m *Manager) update() {
	var points []r2.Point
	for _, side := range footstep.Sides {
		st := m.states[side]
		if !st.InContact() {
			m.footPolygons[side] = spatialmath.ConvexPolygon{}
			continue
		}
		m.footPolygons[side] = spatialmath.NewConvexPolygon(st.Points...).TransformToWorld(m.poses[side])
		points = append(points, m.footPolygons[side].Vertices()...)
	}
	m.support = spatialmath.NewConvexPolygon(points...)
}

// SetFootPose moves a foot.
func (m *Manager) SetFootPose(side footstep.Side, pose spatialmath.Pose) {
	m.poses[side] = pose
	m.update()
}

// SetFootPoses moves both feet.
func (m *Manager) SetFootPoses(poses [2]spatialmath.Pose) {
	m.poses = poses
	m.update()
}

// FootPose returns the sole pose of a foot.
func (m *Manager) FootPose(side footstep.Side) spatialmath.Pose {
	return m.poses[side]
}

// FootPoses returns both sole poses.
func (m *Manager) FootPoses() [2]spatialmath.Pose {
	return m.poses
}

// SetFull puts the whole sole in contact.
func (m *Manager) SetFull(side footstep.Side) {
	m.states[side] = State{Constraint: ConstraintFull, Points: m.sole.Vertices(), Friction: m.friction}
	m.update()
}

// SetToes restricts the contact to the toe line.
func (m *Manager) SetToes(side footstep.Side) {
	m.states[side] = State{
		Constraint: ConstraintToes,
		Points:     []r2.Point{m.toes.Start, m.toes.End},
		Friction:   m.friction,
	}
	m.update()
}

// SetSwing removes a foot from contact.
func (m *Manager) SetSwing(side footstep.Side) {
	m.states[side] = State{Constraint: ConstraintSwing, Friction: m.friction}
	m.update()
}

// State returns the contact state of a foot.
func (m *Manager) State(side footstep.Side) State {
	st := m.states[side]
	st.Points = append([]r2.Point(nil), st.Points...)
	return st
}

// Constraint returns the contact mode of a foot.
func (m *Manager) Constraint(side footstep.Side) Constraint {
	return m.states[side].Constraint
}

// InDoubleSupport reports whether both feet carry load.
func (m *Manager) InDoubleSupport() bool {
	return m.states[footstep.Left].InContact() && m.states[footstep.Right].InContact()
}

// FootPolygon returns the world polygon of the loaded part of a foot, empty in swing.
func (m *Manager) FootPolygon(side footstep.Side) spatialmath.ConvexPolygon {
	return m.footPolygons[side]
}

// FullFootPolygon returns the world polygon of the whole sole regardless of contact.
func (m *Manager) FullFootPolygon(side footstep.Side) spatialmath.ConvexPolygon {
	return m.sole.TransformToWorld(m.poses[side])
}

// SupportPolygon returns the convex hull of every loaded contact point.
func (m *Manager) SupportPolygon() spatialmath.ConvexPolygon {
	return m.support
}

// SolePolygon returns the foot polygon in the sole frame.
func (m *Manager) SolePolygon() spatialmath.ConvexPolygon {
	return m.sole
}

// ToeLine returns the world toe segment of a foot.
func (m *Manager) ToeLine(side footstep.Side) spatialmath.LineSegment {
	pose := m.poses[side]
	return spatialmath.LineSegment{
		Start: pose.TransformToWorld(m.toes.Start),
		End:   pose.TransformToWorld(m.toes.End),
	}
}
