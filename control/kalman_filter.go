package control

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// KalmanFilter is a linear Kalman filter x' = F x + w, z = H x + v.
type KalmanFilter struct {
	X *mat.VecDense // state
	P *mat.Dense    // state covariance
	F *mat.Dense
	H *mat.Dense
	Q *mat.Dense
	R *mat.Dense
}

// NewConstantVelocityFilter returns a filter over [position, velocity] that measures position only.
func NewConstantVelocityFilter(dt, processNoise, measurementNoise float64) *KalmanFilter {
	dt2 := dt * dt
	return &KalmanFilter{
		X: mat.NewVecDense(2, nil),
		P: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		F: mat.NewDense(2, 2, []float64{1, dt, 0, 1}),
		H: mat.NewDense(1, 2, []float64{1, 0}),
		// white-noise acceleration model
		Q: mat.NewDense(2, 2, []float64{
			processNoise * dt2 * dt2 / 4, processNoise * dt2 * dt / 2,
			processNoise * dt2 * dt / 2, processNoise * dt2,
		}),
		R: mat.NewDense(1, 1, []float64{measurementNoise}),
	}
}

// Reset sets the state and a diagonal covariance.
func (kf *KalmanFilter) Reset(x []float64, variance float64) {
	n := kf.X.Len()
	for i := 0; i < n; i++ {
		kf.X.SetVec(i, x[i])
		for j := 0; j < n; j++ {
			kf.P.Set(i, j, 0)
		}
		kf.P.Set(i, i, variance)
	}
}

// Predict propagates the state one step.
func (kf *KalmanFilter) Predict() {
	var x mat.VecDense
	x.MulVec(kf.F, kf.X)
	kf.X.CopyVec(&x)

	var fp, p mat.Dense
	fp.Mul(kf.F, kf.P)
	p.Mul(&fp, kf.F.T())
	p.Add(&p, kf.Q)
	kf.P.Copy(&p)
}

// Update corrects the state with measurement z.
func (kf *KalmanFilter) Update(z []float64) error {
	m, _ := kf.H.Dims()
	if len(z) != m {
		return errors.Errorf("expected %d measurements, got %d", m, len(z))
	}
	var hx mat.VecDense
	hx.MulVec(kf.H, kf.X)
	innovation := mat.NewVecDense(m, nil)
	innovation.SubVec(mat.NewVecDense(m, z), &hx)

	var ph, s mat.Dense
	ph.Mul(kf.P, kf.H.T())
	s.Mul(kf.H, &ph)
	s.Add(&s, kf.R)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return errors.Wrap(err, "innovation covariance is singular")
	}
	var gain mat.Dense
	gain.Mul(&ph, &sInv)

	var dx mat.VecDense
	dx.MulVec(&gain, innovation)
	kf.X.AddVec(kf.X, &dx)

	n := kf.X.Len()
	var kh mat.Dense
	kh.Mul(&gain, kf.H)
	ikh := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)
	var p mat.Dense
	p.Mul(ikh, kf.P)
	kf.P.Copy(&p)
	return nil
}

// State returns element i of the state estimate.
func (kf *KalmanFilter) State(i int) float64 {
	return kf.X.AtVec(i)
}
