package qpsolver

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// boxProblem is min |x - target|^2 subject to |x_i| <= limit.
func boxProblem(target []float64, limit float64) *Problem {
	n := len(target)
	h := mat.NewDense(n, n, nil)
	f := make([]float64, n)
	ain := mat.NewDense(2*n, n, nil)
	bin := make([]float64, 2*n)
	for i, v := range target {
		h.Set(i, i, 2)
		f[i] = -2 * v
		ain.Set(2*i, i, 1)
		ain.Set(2*i+1, i, -1)
		bin[2*i] = limit
		bin[2*i+1] = limit
	}
	return &Problem{H: h, F: f, Ain: ain, Bin: bin}
}

func TestActiveSetUnconstrainedOptimum(t *testing.T) {
	solver := NewActiveSetSolver(0, 0)
	sol, err := solver.Solve(boxProblem([]float64{0.2, -0.3}, 1), []float64{0, 0}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sol.X[0], test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, sol.X[1], test.ShouldAlmostEqual, -0.3, 1e-9)
	test.That(t, sol.ActiveSet, test.ShouldBeEmpty)
	test.That(t, sol.Cost, test.ShouldAlmostEqual, -(0.04 + 0.09), 1e-9)
}

func TestActiveSetBoxClamps(t *testing.T) {
	solver := NewActiveSetSolver(0, 0)
	problem := boxProblem([]float64{2, -0.3, -5}, 1)
	sol, err := solver.Solve(problem, []float64{0, 0, 0}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sol.X[0], test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, sol.X[1], test.ShouldAlmostEqual, -0.3, 1e-9)
	test.That(t, sol.X[2], test.ShouldAlmostEqual, -1, 1e-9)
	test.That(t, sol.ActiveSet, test.ShouldHaveLength, 2)

	// warm starting from the solution converges on the first iteration
	warm, err := solver.Solve(problem, sol.X, sol.ActiveSet)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, warm.Iterations, test.ShouldEqual, 1)
	test.That(t, warm.X[0], test.ShouldAlmostEqual, 1, 1e-9)
}

func TestActiveSetEqualityConstraint(t *testing.T) {
	// min x^2 + 4y^2 s.t. x + y = 1, y <= 0.1
	problem := &Problem{
		H:   mat.NewDense(2, 2, []float64{2, 0, 0, 8}),
		F:   []float64{0, 0},
		Aeq: mat.NewDense(1, 2, []float64{1, 1}),
		Beq: []float64{1},
		Ain: mat.NewDense(1, 2, []float64{0, 1}),
		Bin: []float64{0.1},
	}
	sol, err := NewActiveSetSolver(10, 1e-10).Solve(problem, []float64{1, 0}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sol.X[0], test.ShouldAlmostEqual, 0.9, 1e-9)
	test.That(t, sol.X[1], test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, sol.ActiveSet, test.ShouldResemble, []int{0})

	problem.Bin[0] = 1
	sol, err = NewActiveSetSolver(10, 1e-10).Solve(problem, []float64{1, 0}, []int{0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sol.X[0], test.ShouldAlmostEqual, 0.8, 1e-9)
	test.That(t, sol.X[1], test.ShouldAlmostEqual, 0.2, 1e-9)
}

func TestActiveSetFailures(t *testing.T) {
	solver := NewActiveSetSolver(0, 0)
	_, err := solver.Solve(boxProblem([]float64{0, 0}, 1), []float64{2, 0}, nil)
	test.That(t, errors.Is(err, ErrInfeasible), test.ShouldBeTrue)

	_, err = solver.Solve(boxProblem([]float64{0, 0}, 1), []float64{0}, nil)
	test.That(t, err, test.ShouldNotBeNil)

	limited := NewActiveSetSolver(1, 0)
	_, err = limited.Solve(boxProblem([]float64{3, 3}, 1), []float64{0, 0}, nil)
	test.That(t, errors.Is(err, ErrNotConverged), test.ShouldBeTrue)

	bad := &Problem{H: mat.NewDense(2, 2, nil), F: []float64{1, 1, 1}}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
}

func TestActiveSetRandomBoxes(t *testing.T) {
	rnd := rand.New(rand.NewSource(19))
	solver := NewActiveSetSolver(0, 0)
	for i := 0; i < 100; i++ {
		target := []float64{4*rnd.Float64() - 2, 4*rnd.Float64() - 2, 4*rnd.Float64() - 2}
		limit := 0.1 + rnd.Float64()
		sol, err := solver.Solve(boxProblem(target, limit), []float64{0, 0, 0}, nil)
		test.That(t, err, test.ShouldBeNil)
		for j, v := range target {
			test.That(t, sol.X[j], test.ShouldAlmostEqual, math.Max(-limit, math.Min(limit, v)), 1e-9)
		}
	}
}

func TestNew(t *testing.T) {
	solver, err := New("", 0, 0)
	test.That(t, err, test.ShouldBeNil)
	_, ok := solver.(*ActiveSetSolver)
	test.That(t, ok, test.ShouldBeTrue)
	_, err = New("simplex", 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
}
