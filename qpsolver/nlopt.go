//go:build !windows && !no_cgo

package qpsolver

import (
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
)

// NloptSolver solves the QP with nlopt's SLSQP. It ignores warm starts.
type NloptSolver struct {
	maxEvaluations int
	tolerance      float64
}

// NewNloptSolver returns an SLSQP backed solver.
func NewNloptSolver(maxEvaluations int, tolerance float64) (*NloptSolver, error) {
	if maxEvaluations <= 0 {
		maxEvaluations = 10 * defaultMaxIterations
	}
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &NloptSolver{maxEvaluations: maxEvaluations, tolerance: tolerance}, nil
}

// Solve runs SLSQP from initialGuess.
func (s *NloptSolver) Solve(problem *Problem, initialGuess []float64, _ []int) (*Solution, error) {
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	n := problem.NumVariables()
	if len(initialGuess) != n {
		return nil, errors.Errorf("initial guess has %d entries, want %d", len(initialGuess), n)
	}
	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(n))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	evaluations := 0
	objective := func(x, gradient []float64) float64 {
		evaluations++
		if len(gradient) > 0 {
			problem.gradient(x, gradient)
		}
		return problem.Cost(x)
	}
	linear := func(row []float64, bound float64) nlopt.Func {
		return func(x, gradient []float64) float64 {
			if len(gradient) > 0 {
				copy(gradient, row)
			}
			return floats.Dot(row, x) - bound
		}
	}

	err = multierr.Combine(
		opt.SetMinObjective(objective),
		opt.SetXtolAbs1(s.tolerance),
		opt.SetFtolAbs(s.tolerance*s.tolerance),
		opt.SetMaxEval(s.maxEvaluations),
	)
	for i := 0; i < problem.NumEqualities(); i++ {
		err = multierr.Combine(err, opt.AddEqualityConstraint(linear(problem.Aeq.RawRowView(i), problem.Beq[i]), s.tolerance))
	}
	for i := 0; i < problem.NumInequalities(); i++ {
		err = multierr.Combine(err, opt.AddInequalityConstraint(linear(problem.Ain.RawRowView(i), problem.Bin[i]), s.tolerance))
	}
	if err != nil {
		return nil, errors.Wrap(err, "nlopt setup error")
	}

	x, cost, err := opt.Optimize(append([]float64(nil), initialGuess...))
	if err != nil {
		return nil, errors.Wrapf(ErrNotConverged, "nlopt: %v", err)
	}
	if v := problem.MaxViolation(x); v > defaultFeasibilityTolerance*10 {
		return nil, errors.Wrapf(ErrInfeasible, "nlopt solution violates constraints by %.3g", v)
	}
	return &Solution{
		X:          x,
		Cost:       cost,
		Iterations: evaluations,
		ActiveSet:  problem.ActiveInequalities(x, defaultFeasibilityTolerance*10),
	}, nil
}
