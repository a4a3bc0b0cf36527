package icpplanner

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/spatialmath"
	"go.viam.com/balance/utils"
)

// maxSplitRatio keeps every sub-segment of a step non-degenerate.
const maxSplitRatio = 0.7

// RecursionMultipliers describe the ICP at the start of the first footstep's CMP time as a weighted sum of
// the upcoming entry and exit CMPs and the final ICP. Index 0 of Entry and Exit is the first footstep.
type RecursionMultipliers struct {
	Entry []float64
	Exit  []float64
	Final float64
	// StanceExit and StanceCorner give the corner ICP as StanceExit*exitCMP + StanceCorner*recursionICP.
	StanceExit   float64
	StanceCorner float64
}

// plan is everything derived from the footsteps, timings, ratios and omega. It is rebuilt when dirty.
type plan struct {
	numFeet     int
	queueEnds   bool
	entryCMPs   []r2.Point // per foot, index 0 is the stance foot
	exitCMPs    []r2.Point
	entryX      []float64
	entryY      []float64
	exitX       []float64
	exitY       []float64
	recursion   RecursionMultipliers
	recursionAt r2.Point // ICP at the start of the first footstep's CMP time
	finalICP    r2.Point

	corner        r2.Point
	footWeight    float64 // d(corner)/d(first footstep position)
	timeOnEntry0  float64
	timeOnExit0   float64
	swingDuration float64

	transferDuration   float64
	exitSwitchTime     float64
	splineHalfDuration float64
	useSpline          bool
}

func (p *Planner) resizePlan(n int) {
	pl := &p.plan
	if cap(pl.entryCMPs) < n+1 {
		pl.entryCMPs = make([]r2.Point, n+1)
		pl.exitCMPs = make([]r2.Point, n+1)
		pl.entryX = make([]float64, n)
		pl.entryY = make([]float64, n)
		pl.exitX = make([]float64, n)
		pl.exitY = make([]float64, n)
		pl.recursion.Entry = make([]float64, n)
		pl.recursion.Exit = make([]float64, n)
	}
	pl.entryCMPs = pl.entryCMPs[:n+1]
	pl.exitCMPs = pl.exitCMPs[:n+1]
	pl.entryX, pl.entryY = pl.entryX[:n], pl.entryY[:n]
	pl.exitX, pl.exitY = pl.exitX[:n], pl.exitY[:n]
	pl.recursion.Entry = pl.recursion.Entry[:n]
	pl.recursion.Exit = pl.recursion.Exit[:n]
}

func (p *Planner) transferSplit() float64 {
	return utils.Clamp(p.cfg.TransferSplitFraction, 0, maxSplitRatio)
}

func (p *Planner) exitRatio() float64 {
	if !p.cfg.UseTwoCMPs {
		return 0
	}
	return utils.Clamp(p.cfg.ExitCMPRatio, 0, maxSplitRatio)
}

// transferDurationOf is the transfer before swing i; past the queue it is the final transfer, then nothing.
func (p *Planner) transferDurationOf(i int) float64 {
	switch {
	case i < len(p.timings):
		return p.timings[i].TransferTime
	case i == len(p.timings):
		return p.finalTransferTime
	}
	return 0
}

func (p *Planner) swingDurationOf(i int) float64 {
	if i < len(p.timings) {
		return p.timings[i].SwingTime
	}
	return 0
}

// footDuration is the time foot j holds the CMP: the end of the transfer onto it, its support time and the
// start of the transfer off it.
func (p *Planner) footDuration(j int) float64 {
	alpha := p.transferSplit()
	return p.transferDurationOf(j)*(1-alpha) + p.swingDurationOf(j) + p.transferDurationOf(j+1)*alpha
}

// footPlacement returns the pose, side and world polygon of foot j.
func (p *Planner) footPlacement(j int) (spatialmath.Pose, footstep.Side, spatialmath.ConvexPolygon) {
	if j == 0 {
		pose := p.feet[p.supportSide]
		return pose, p.supportSide, p.sole.TransformToWorld(pose)
	}
	step := p.steps[j-1]
	return step.Pose, step.Side, step.Polygon(p.sole)
}

// referenceCMPs places the entry and exit CMPs of a foot from the configured offsets, keeping them inside
// the foot polygon.
func (p *Planner) referenceCMPs(pose spatialmath.Pose, side footstep.Side, polygon spatialmath.ConvexPolygon) (r2.Point, r2.Point) {
	place := func(offset r2.Point) r2.Point {
		local := r2.Point{X: offset.X, Y: offset.Y * side.Sign()}
		return constrainToPolygon(pose.TransformToWorld(local), polygon, p.cfg.CMPSafeDistanceFromEdge)
	}
	entry := place(p.cfg.EntryCMPOffset)
	if !p.cfg.UseTwoCMPs {
		return entry, entry
	}
	return entry, place(p.cfg.ExitCMPOffset)
}

// constrainToPolygon moves pt at least margin inside polygon, or onto its centroid when the polygon is too
// small for the margin.
func constrainToPolygon(pt r2.Point, polygon spatialmath.ConvexPolygon, margin float64) r2.Point {
	if polygon.IsEmpty() || polygon.ContainsWithMargin(pt, -margin) {
		return pt
	}
	q := polygon.ClosestPoint(pt)
	toCentroid := polygon.Centroid().Sub(q)
	dist := toCentroid.Norm()
	if dist <= margin {
		return polygon.Centroid()
	}
	return q.Add(toCentroid.Mul(margin / dist))
}

// computeRecursion rebuilds the per-foot CMPs and the backward recursion over the preview horizon.
func (p *Planner) computeRecursion() {
	pl := &p.plan
	maxSteps := p.cfg.MaxStepsToConsider
	if maxSteps < 1 {
		maxSteps = 1
	}
	n := len(p.steps)
	pl.queueEnds = n <= maxSteps
	if n > maxSteps {
		n = maxSteps
	}
	pl.numFeet = n
	p.resizePlan(n)

	for j := 0; j <= n; j++ {
		pose, side, polygon := p.footPlacement(j)
		pl.entryCMPs[j], pl.exitCMPs[j] = p.referenceCMPs(pose, side, polygon)
	}

	beta := p.exitRatio()
	discount := 1.
	for j := 1; j <= n; j++ {
		total := p.footDuration(j)
		onExit := beta * total
		onEntry := total - onExit
		entry := capturepoint.NewSegment(p.omega, onEntry)
		exit := capturepoint.NewSegment(p.omega, onExit)
		pl.recursion.Entry[j-1] = discount * entry.BackwardCMPWeight()
		pl.recursion.Exit[j-1] = discount * entry.ExpNegative() * exit.BackwardCMPWeight()
		discount *= entry.ExpNegative() * exit.ExpNegative()

		pl.entryX[j-1], pl.entryY[j-1] = pl.entryCMPs[j].X, pl.entryCMPs[j].Y
		pl.exitX[j-1], pl.exitY[j-1] = pl.exitCMPs[j].X, pl.exitCMPs[j].Y
	}
	pl.recursion.Final = discount

	finalFootWeight := 0.
	switch {
	case n == 0:
		pl.finalICP = pl.entryCMPs[0]
	case pl.queueEnds:
		pl.finalICP = spatialmath.Midpoint(pl.entryCMPs[n-1], pl.entryCMPs[n])
		if n <= 2 {
			finalFootWeight = 0.5
		}
	default:
		pl.finalICP = pl.entryCMPs[n]
		if n == 1 {
			finalFootWeight = 1
		}
	}

	pl.recursionAt = r2.Point{
		X: floats.Dot(pl.recursion.Entry, pl.entryX) + floats.Dot(pl.recursion.Exit, pl.exitX) + pl.recursion.Final*pl.finalICP.X,
		Y: floats.Dot(pl.recursion.Entry, pl.entryY) + floats.Dot(pl.recursion.Exit, pl.exitY) + pl.recursion.Final*pl.finalICP.Y,
	}

	firstFootWeight := 0.
	if n > 0 {
		firstFootWeight = pl.recursion.Entry[0] + pl.recursion.Exit[0] + pl.recursion.Final*finalFootWeight
	}

	// stance foot
	total0 := p.footDuration(0)
	pl.timeOnExit0 = beta * total0
	pl.timeOnEntry0 = total0 - pl.timeOnExit0
	pl.swingDuration = p.swingDurationOf(0)
	pl.exitSwitchTime = pl.swingDuration + p.transferDurationOf(1)*p.transferSplit() - pl.timeOnExit0
	stanceExit := capturepoint.NewSegment(p.omega, pl.timeOnExit0)
	exitDecay := stanceExit.ExpNegative()
	pl.recursion.StanceExit = stanceExit.BackwardCMPWeight()
	pl.recursion.StanceCorner = exitDecay
	pl.corner = pl.exitCMPs[0].Mul(pl.recursion.StanceExit).Add(pl.recursionAt.Mul(exitDecay))
	pl.footWeight = exitDecay * firstFootWeight

	pl.useSpline = false
	pl.splineHalfDuration = 0
	if p.cfg.UseTwoCMPs && pl.exitSwitchTime > 0 && pl.exitSwitchTime < pl.swingDuration {
		h := math.Min(p.cfg.SplineHalfDuration, math.Min(pl.exitSwitchTime/2, (pl.swingDuration-pl.exitSwitchTime)/2))
		if h > utils.Epsilon {
			pl.useSpline = true
			pl.splineHalfDuration = h
		}
	}
}
