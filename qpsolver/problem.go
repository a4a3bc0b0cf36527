// Package qpsolver solves small dense convex quadratic programs
//
//	minimize    0.5 x'Hx + f'x
//	subject to  Aeq x  = beq
//	            Ain x <= bin
//
// with a primal active-set method on gonum, or with nlopt's SLSQP on cgo builds.
package qpsolver

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotConverged is returned when the solver runs out of iterations or hits a singular system.
	ErrNotConverged = errors.New("quadratic program did not converge")
	// ErrInfeasible is returned when the starting point violates the constraints.
	ErrInfeasible = errors.New("quadratic program start point is infeasible")
)

// Problem is a convex QP. Aeq and Ain may be nil.
type Problem struct {
	H   *mat.Dense
	F   []float64
	Aeq *mat.Dense
	Beq []float64
	Ain *mat.Dense
	Bin []float64
}

// Solution is the solver output.
type Solution struct {
	X          []float64
	Cost       float64
	Iterations int
	// ActiveSet lists the inequality rows that hold with equality at X. It can seed the next solve.
	ActiveSet []int
}

// Solver solves a Problem from an initial guess. warmStart is a previous active set and may be ignored.
type Solver interface {
	Solve(problem *Problem, initialGuess []float64, warmStart []int) (*Solution, error)
}

// NumVariables returns the problem dimension.
func (p *Problem) NumVariables() int {
	return len(p.F)
}

// NumEqualities returns the number of equality rows.
func (p *Problem) NumEqualities() int {
	return len(p.Beq)
}

// NumInequalities returns the number of inequality rows.
func (p *Problem) NumInequalities() int {
	return len(p.Bin)
}

// Validate checks the dimensions of the problem.
func (p *Problem) Validate() error {
	n := p.NumVariables()
	if n == 0 {
		return errors.New("problem has no variables")
	}
	if r, c := p.H.Dims(); r != n || c != n {
		return errors.Errorf("hessian is %dx%d, want %dx%d", r, c, n, n)
	}
	if p.Aeq != nil {
		if r, c := p.Aeq.Dims(); r != len(p.Beq) || c != n {
			return errors.Errorf("equality matrix is %dx%d, want %dx%d", r, c, len(p.Beq), n)
		}
	} else if len(p.Beq) > 0 {
		return errors.New("equality bounds given without an equality matrix")
	}
	if p.Ain != nil {
		if r, c := p.Ain.Dims(); r != len(p.Bin) || c != n {
			return errors.Errorf("inequality matrix is %dx%d, want %dx%d", r, c, len(p.Bin), n)
		}
	} else if len(p.Bin) > 0 {
		return errors.New("inequality bounds given without an inequality matrix")
	}
	return nil
}

// Cost evaluates 0.5 x'Hx + f'x.
func (p *Problem) Cost(x []float64) float64 {
	xv := mat.NewVecDense(len(x), x)
	return 0.5*mat.Inner(xv, p.H, xv) + floats.Dot(p.F, x)
}

// gradient writes Hx + f into dst.
func (p *Problem) gradient(x, dst []float64) {
	g := mat.NewVecDense(len(dst), dst)
	g.MulVec(p.H, mat.NewVecDense(len(x), x))
	floats.Add(dst, p.F)
}

func rowDot(m *mat.Dense, i int, x []float64) float64 {
	return floats.Dot(m.RawRowView(i), x)
}

// MaxViolation returns the largest constraint violation at x, 0 when feasible.
func (p *Problem) MaxViolation(x []float64) float64 {
	worst := 0.
	for i := range p.Beq {
		worst = math.Max(worst, math.Abs(rowDot(p.Aeq, i, x)-p.Beq[i]))
	}
	for i := range p.Bin {
		worst = math.Max(worst, rowDot(p.Ain, i, x)-p.Bin[i])
	}
	return worst
}

// ActiveInequalities lists the inequality rows within tol of equality at x.
func (p *Problem) ActiveInequalities(x []float64, tol float64) []int {
	var active []int
	for i := range p.Bin {
		if math.Abs(rowDot(p.Ain, i, x)-p.Bin[i]) <= tol {
			active = append(active, i)
		}
	}
	return active
}
