package qpsolver

import (
	"github.com/pkg/errors"
)

// Solver names.
const (
	ActiveSet = "active_set"
	Nlopt     = "nlopt"
)

// New returns the named solver. An empty name selects the active-set solver.
func New(name string, maxIterations int, tolerance float64) (Solver, error) {
	switch name {
	case "", ActiveSet:
		return NewActiveSetSolver(maxIterations, tolerance), nil
	case Nlopt:
		solver, err := NewNloptSolver(10*maxIterations, tolerance)
		if err != nil {
			return nil, err
		}
		return solver, nil
	default:
		return nil, errors.Errorf("unknown QP solver %q", name)
	}
}
