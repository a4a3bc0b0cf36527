package icpoptimization

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/balance/qpsolver"
	"go.viam.com/balance/spatialmath"
)

// minimumPolygonMargin keeps a line or point support polygon from collapsing the feasible set.
const minimumPolygonMargin = 1e-3

// weights are per-axis costs in the stance frame, index 0 forward and 1 lateral.
type weights struct {
	feedback       [2]float64
	footstep       [2]float64
	regularization float64
	relaxation     float64
	gain           [2]float64
}

// layout maps the decision variables into x.
type layout struct {
	withFootstep bool
	numIneq      int
}

func (l layout) numVariables() int {
	if l.withFootstep {
		return 6
	}
	return 4
}

func (l layout) slack() int {
	return l.numVariables() - 2
}

// problemInput is everything the QP needs, already expressed in the stance frame where noted.
type problemInput struct {
	yaw          float64
	polygon      spatialmath.ConvexPolygon // world, already grown by the exit margins
	referenceCMP r2.Point                  // world
	icpError     r2.Point                  // stance frame
	multiplier   float64
	previous     r2.Point // previous footstep adjustment, stance frame
	reach        [2]float64
}

// problemBuffer reuses the QP matrices between ticks when the dimensions do not change.
type problemBuffer struct {
	problem qpsolver.Problem
	layout  layout
	guess   []float64
}

func (b *problemBuffer) resize(l layout) {
	n := l.numVariables()
	if b.problem.H != nil && b.layout == l {
		b.problem.H.Zero()
		b.problem.Aeq.Zero()
		b.problem.Ain.Zero()
		for i := range b.problem.F {
			b.problem.F[i] = 0
		}
		return
	}
	b.layout = l
	b.problem = qpsolver.Problem{
		H:   mat.NewDense(n, n, nil),
		F:   make([]float64, n),
		Aeq: mat.NewDense(2, n, nil),
		Beq: make([]float64, 2),
		Ain: mat.NewDense(l.numIneq, n, nil),
		Bin: make([]float64, l.numIneq),
	}
	b.guess = make([]float64, n)
}

// build fills the buffer with
//
//	min  w_d d'd + w_f df'df + w_reg (df - df_prev)'(df - df_prev) + w_s s's
//	s.t. d_i/K_i + phi df_i + s_i = e_i
//	     polygon rows on ref + R d, |df_i| <= reach_i
//
// and a feasible initial guess.
func (b *problemBuffer) build(in problemInput, w weights, withFootstep bool) {
	planes := in.polygon.HalfPlanes()
	numIneq := len(planes)
	if withFootstep {
		numIneq += 4
	}
	l := layout{withFootstep: withFootstep, numIneq: numIneq}
	b.resize(l)
	p := &b.problem
	s := l.slack()

	for i := 0; i < 2; i++ {
		p.H.Set(i, i, 2*w.feedback[i])
		p.H.Set(s+i, s+i, 2*w.relaxation)
		p.Aeq.Set(i, i, 1/w.gain[i])
		p.Aeq.Set(i, s+i, 1)
		p.Beq[i] = axis(in.icpError, i)
		if withFootstep {
			p.H.Set(2+i, 2+i, 2*(w.footstep[i]+w.regularization))
			p.F[2+i] = -2 * w.regularization * axis(in.previous, i)
			p.Aeq.Set(i, 2+i, in.multiplier)
		}
	}

	for k, plane := range planes {
		local := spatialmath.Rotate(plane.Normal, -in.yaw)
		p.Ain.Set(k, 0, local.X)
		p.Ain.Set(k, 1, local.Y)
		p.Bin[k] = plane.Offset - plane.Normal.Dot(in.referenceCMP)
	}
	if withFootstep {
		row := len(planes)
		for i := 0; i < 2; i++ {
			p.Ain.Set(row, 2+i, 1)
			p.Bin[row] = in.reach[i]
			p.Ain.Set(row+1, 2+i, -1)
			p.Bin[row+1] = in.reach[i]
			row += 2
		}
	}

	// Start from the closest admissible CMP, no adjustment, and whatever slack closes the equality.
	closest := in.polygon.ClosestPoint(in.referenceCMP)
	delta := spatialmath.Rotate(closest.Sub(in.referenceCMP), -in.yaw)
	for i := range b.guess {
		b.guess[i] = 0
	}
	b.guess[0], b.guess[1] = delta.X, delta.Y
	for i := 0; i < 2; i++ {
		b.guess[s+i] = axis(in.icpError, i) - axis(delta, i)/w.gain[i]
	}
}

func axis(p r2.Point, i int) float64 {
	if i == 0 {
		return p.X
	}
	return p.Y
}

// supportPolygon grows the support polygon by the exit margins, or by a minimum margin when it has no area.
func supportPolygon(polygon spatialmath.ConvexPolygon, yaw, forwardMargin, lateralMargin float64) spatialmath.ConvexPolygon {
	if polygon.NumVertices() < 3 {
		forwardMargin = math.Max(forwardMargin, minimumPolygonMargin)
		lateralMargin = math.Max(lateralMargin, minimumPolygonMargin)
	}
	return polygon.GrowBox(yaw, forwardMargin, lateralMargin)
}
