package config

import (
	"math"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

func positive(path, field string, v float64) error {
	if math.IsNaN(v) || v <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("%s must be positive, got %v", field, v))
	}
	return nil
}

func nonNegative(path, field string, v float64) error {
	if math.IsNaN(v) || v < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("%s must be non-negative, got %v", field, v))
	}
	return nil
}

func unitInterval(path, field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf("%s must be in [0, 1], got %v", field, v))
	}
	return nil
}

func omega(gravity, comHeight float64) float64 {
	if comHeight <= 0 || gravity <= 0 {
		return 0
	}
	return math.Sqrt(gravity / comHeight)
}
