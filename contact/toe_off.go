package contact

import (
	"github.com/golang/geo/r2"

	"go.viam.com/balance/footstep"
	"go.viam.com/balance/spatialmath"
)

// ToeOffInput is the balance state the toe-off checks look at.
type ToeOffInput struct {
	DesiredICP   r2.Point
	CapturePoint r2.Point
	DesiredCMP   r2.Point

	// ExitCMP is the stance foot's exit CMP, used in single support.
	ExitCMP r2.Point
	// NextFootPolygon is the world polygon of the upcoming footstep, used in single support.
	NextFootPolygon spatialmath.ConvexPolygon
	// RemainingSwingTime is the planned swing time left, used in single support.
	RemainingSwingTime float64
}

// ToeOffPolygon is the support polygon the trailing foot would leave when rolling onto its toes.
func (m *Manager) ToeOffPolygon(trailing footstep.Side, leading spatialmath.ConvexPolygon) spatialmath.ConvexPolygon {
	toes := m.ToeLine(trailing)
	return leading.Union(spatialmath.NewConvexPolygon(toes.Start, toes.End))
}

// CheckDoubleSupportToeOff reports whether the trailing foot may roll onto its toes during transfer.
func (m *Manager) CheckDoubleSupportToeOff(trailing footstep.Side, in ToeOffInput) bool {
	if !m.toeOff.DoToeOffInDoubleSupport || !m.InDoubleSupport() {
		return false
	}
	if m.states[trailing].Constraint == ConstraintToes {
		return false
	}
	leading := trailing.Opposite()
	trailingPose := m.poses[trailing]
	forward := trailingPose.Forward()
	stepLength := m.poses[leading].Point2().Sub(trailingPose.Point2()).Dot(forward)
	if stepLength < m.toeOff.MinStepLengthForToeOff {
		return false
	}

	polygon := m.ToeOffPolygon(trailing, m.FullFootPolygon(leading))
	if !m.icpInside(polygon, in) || !polygon.Contains(in.DesiredCMP) {
		return false
	}
	toes := m.ToeLine(trailing)
	return in.DesiredCMP.Sub(toes.Midpoint()).Dot(forward) >= -m.toeOff.ECMPProximity
}

// CheckSingleSupportToeOff reports whether the stance foot may roll onto its toes late in the swing.
func (m *Manager) CheckSingleSupportToeOff(stance footstep.Side, in ToeOffInput) bool {
	if !m.toeOff.DoToeOffInSingleSupport || m.states[stance].Constraint != ConstraintFull {
		return false
	}
	if in.RemainingSwingTime > m.toeOff.MaxRemainingSwingForToeOff {
		return false
	}
	if spatialmath.Distance(in.DesiredCMP, in.ExitCMP) > m.toeOff.ECMPProximity {
		return false
	}
	if in.NextFootPolygon.IsEmpty() {
		return false
	}
	toes := m.ToeLine(stance)
	forward := m.poses[stance].Forward()
	for _, p := range []r2.Point{in.DesiredICP, in.CapturePoint} {
		if p.Sub(toes.Midpoint()).Dot(forward) <= 0 {
			return false
		}
	}
	return m.icpInside(m.ToeOffPolygon(stance, in.NextFootPolygon), in)
}

func (m *Manager) icpInside(polygon spatialmath.ConvexPolygon, in ToeOffInput) bool {
	margin := -m.toeOff.ICPMargin
	return polygon.ContainsWithMargin(in.DesiredICP, margin) && polygon.ContainsWithMargin(in.CapturePoint, margin)
}
