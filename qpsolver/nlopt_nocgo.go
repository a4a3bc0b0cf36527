//go:build windows || no_cgo

package qpsolver

import "github.com/pkg/errors"

// NloptSolver mimics the type in the cgo compiled code.
type NloptSolver struct{}

// NewNloptSolver is not supported on no_cgo builds.
func NewNloptSolver(maxEvaluations int, tolerance float64) (*NloptSolver, error) {
	return nil, errors.New("nlopt is not supported on this build")
}

// Solve refuses to solve problems without cgo.
func (s *NloptSolver) Solve(problem *Problem, initialGuess []float64, warmStart []int) (*Solution, error) {
	return nil, errors.New("nlopt is not supported on this build")
}
