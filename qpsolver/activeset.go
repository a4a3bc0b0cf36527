package qpsolver

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultMaxIterations        = 100
	defaultTolerance            = 1e-9
	defaultFeasibilityTolerance = 1e-7
)

// ActiveSetSolver is a primal active-set method for convex QPs with a positive definite Hessian. Each
// iteration solves the equality-constrained subproblem on the working set through its KKT system.
type ActiveSetSolver struct {
	MaxIterations        int
	Tolerance            float64
	FeasibilityTolerance float64
}

// NewActiveSetSolver returns a solver; non-positive arguments select defaults.
func NewActiveSetSolver(maxIterations int, tolerance float64) *ActiveSetSolver {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &ActiveSetSolver{
		MaxIterations:        maxIterations,
		Tolerance:            tolerance,
		FeasibilityTolerance: math.Max(defaultFeasibilityTolerance, 10*tolerance),
	}
}

// Solve runs the active-set iterations from a feasible initialGuess. Rows of warmStart that are active at
// initialGuess seed the working set.
func (s *ActiveSetSolver) Solve(problem *Problem, initialGuess []float64, warmStart []int) (*Solution, error) {
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	n := problem.NumVariables()
	if len(initialGuess) != n {
		return nil, errors.Errorf("initial guess has %d entries, want %d", len(initialGuess), n)
	}
	if v := problem.MaxViolation(initialGuess); v > s.FeasibilityTolerance {
		return nil, errors.Wrapf(ErrInfeasible, "violation %.3g", v)
	}

	x := append([]float64(nil), initialGuess...)
	working := make([]int, 0, problem.NumInequalities())
	for _, i := range warmStart {
		if i < 0 || i >= problem.NumInequalities() || containsInt(working, i) {
			continue
		}
		if math.Abs(rowDot(problem.Ain, i, x)-problem.Bin[i]) <= s.FeasibilityTolerance {
			working = append(working, i)
		}
	}

	g := make([]float64, n)
	for iter := 1; iter <= s.MaxIterations; iter++ {
		problem.gradient(x, g)
		step, multipliers, err := solveEqualityProblem(problem, g, working)
		if err != nil {
			return nil, errors.Wrapf(ErrNotConverged, "iteration %d: %v", iter, err)
		}

		if floats.Norm(step, math.Inf(1)) <= s.Tolerance {
			drop, most := -1, -s.Tolerance
			for k := range working {
				if lambda := multipliers[problem.NumEqualities()+k]; lambda < most {
					drop, most = k, lambda
				}
			}
			if drop < 0 {
				return &Solution{
					X:          x,
					Cost:       problem.Cost(x),
					Iterations: iter,
					ActiveSet:  append([]int(nil), working...),
				}, nil
			}
			working = append(working[:drop], working[drop+1:]...)
			continue
		}

		alpha, blocking := 1., -1
		for i := 0; i < problem.NumInequalities(); i++ {
			if containsInt(working, i) {
				continue
			}
			ap := rowDot(problem.Ain, i, step)
			if ap <= s.Tolerance {
				continue
			}
			if ratio := (problem.Bin[i] - rowDot(problem.Ain, i, x)) / ap; ratio < alpha {
				alpha, blocking = math.Max(ratio, 0), i
			}
		}
		floats.AddScaled(x, alpha, step)
		if blocking >= 0 {
			working = append(working, blocking)
		}
	}
	return nil, errors.Wrapf(ErrNotConverged, "no solution after %d iterations", s.MaxIterations)
}

// solveEqualityProblem solves min 0.5 p'Hp + g'p s.t. A_W p = 0 through
//
//	[H  A_W'] [p]   [-g]
//	[A_W  0 ] [l] = [ 0]
//
// returning the step p and the multipliers l, equality rows first.
func solveEqualityProblem(problem *Problem, g []float64, working []int) ([]float64, []float64, error) {
	n := problem.NumVariables()
	m := problem.NumEqualities() + len(working)
	kkt := mat.NewDense(n+m, n+m, nil)
	kkt.Slice(0, n, 0, n).(*mat.Dense).Copy(problem.H)

	row := n
	addRow := func(a []float64) {
		for j, v := range a {
			kkt.Set(row, j, v)
			kkt.Set(j, row, v)
		}
		row++
	}
	for i := 0; i < problem.NumEqualities(); i++ {
		addRow(problem.Aeq.RawRowView(i))
	}
	for _, i := range working {
		addRow(problem.Ain.RawRowView(i))
	}

	rhs := mat.NewVecDense(n+m, nil)
	for i, v := range g {
		rhs.SetVec(i, -v)
	}
	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		return nil, nil, err
	}
	raw := sol.RawVector().Data
	return raw[:n], raw[n:], nil
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
