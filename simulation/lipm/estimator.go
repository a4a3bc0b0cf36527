package lipm

import (
	"context"
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/control"
	"go.viam.com/balance/walking"
)

const (
	// processNoise is the acceleration variance of the constant velocity model.
	processNoise = 1e4
	// minimumMeasurementNoise keeps the velocity estimate damped when measurements are exact.
	minimumMeasurementNoise = 1e-6
)

// Estimator measures the plant's CoM position with optional Gaussian noise and recovers position and
// velocity with one Kalman filter per axis.
type Estimator struct {
	plant   *Plant
	noise   float64
	rnd     *rand.Rand
	filters [2]*control.KalmanFilter
	started bool
}

// NewEstimator returns an estimator of plant. noise is the standard deviation of the position measurement
// in meters.
func NewEstimator(plant *Plant, noise float64, seed int64) *Estimator {
	com, vel := plant.CoM()
	e := &Estimator{
		plant: plant,
		noise: noise,
		//nolint:gosec
		rnd: rand.New(rand.NewSource(seed)),
	}
	variance := math.Max(noise*noise, minimumMeasurementNoise)
	initial := [2][]float64{{com.X, vel.X}, {com.Y, vel.Y}}
	for i := range e.filters {
		e.filters[i] = control.NewConstantVelocityFilter(plant.dt, processNoise, variance)
		e.filters[i].Reset(initial[i], variance)
	}
	return e
}

// Estimate implements walking.Estimator.
func (e *Estimator) Estimate(ctx context.Context) (walking.Estimate, error) {
	com, _ := e.plant.com3()
	measured := [2]float64{com.X, com.Y}
	for i, f := range e.filters {
		if e.started {
			f.Predict()
		}
		z := measured[i]
		if e.noise > 0 {
			z += e.rnd.NormFloat64() * e.noise
		}
		if err := f.Update([]float64{z}); err != nil {
			return walking.Estimate{}, err
		}
	}
	e.started = true

	pos := r2.Point{X: e.filters[0].State(0), Y: e.filters[1].State(0)}
	vel := r2.Point{X: e.filters[0].State(1), Y: e.filters[1].State(1)}
	return walking.Estimate{
		CoMPosition:  r3.Vector{X: pos.X, Y: pos.Y, Z: com.Z},
		CoMVelocity:  r3.Vector{X: vel.X, Y: vel.Y},
		CapturePoint: capturepoint.CapturePoint(e.plant.omega, pos, vel),
		FootPoses:    e.plant.FootPoses(),
		Dt:           e.plant.dt,
	}, nil
}
