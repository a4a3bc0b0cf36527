//go:build !windows && !no_cgo

package qpsolver

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestNloptMatchesActiveSet(t *testing.T) {
	rnd := rand.New(rand.NewSource(19))
	slsqp, err := NewNloptSolver(0, 1e-7)
	test.That(t, err, test.ShouldBeNil)
	activeSet := NewActiveSetSolver(0, 0)
	for i := 0; i < 100; i++ {
		target := []float64{4*rnd.Float64() - 2, 4*rnd.Float64() - 2, 4*rnd.Float64() - 2}
		limit := 0.1 + rnd.Float64()
		problem := boxProblem(target, limit)

		want, err := activeSet.Solve(problem, []float64{0, 0, 0}, nil)
		test.That(t, err, test.ShouldBeNil)
		got, err := slsqp.Solve(problem, []float64{0, 0, 0}, nil)
		test.That(t, err, test.ShouldBeNil)
		for j := range target {
			test.That(t, got.X[j], test.ShouldAlmostEqual, want.X[j], 1e-5)
		}
		test.That(t, got.Cost, test.ShouldAlmostEqual, want.Cost, 1e-6)
	}
}

func TestNloptEqualityConstraint(t *testing.T) {
	problem := &Problem{
		H:   mat.NewDense(2, 2, []float64{2, 0, 0, 8}),
		F:   []float64{0, 0},
		Aeq: mat.NewDense(1, 2, []float64{1, 1}),
		Beq: []float64{1},
		Ain: mat.NewDense(1, 2, []float64{0, 1}),
		Bin: []float64{0.1},
	}
	solver, err := New(Nlopt, 0, 1e-7)
	test.That(t, err, test.ShouldBeNil)
	_, ok := solver.(*NloptSolver)
	test.That(t, ok, test.ShouldBeTrue)

	sol, err := solver.Solve(problem, []float64{1, 0}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sol.X[0], test.ShouldAlmostEqual, 0.9, 1e-5)
	test.That(t, sol.X[1], test.ShouldAlmostEqual, 0.1, 1e-5)

	_, err = solver.Solve(problem, []float64{1}, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
