package control

import (
	"github.com/pkg/errors"

	"go.viam.com/balance/utils"
)

// PIDGains configures a PID controller. IntegralLimit and OutputLimit are symmetric bounds, 0 means unbounded.
type PIDGains struct {
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	IntegralLimit float64 `json:"integral_limit"`
	OutputLimit   float64 `json:"output_limit"`
}

// Validate checks the gains.
func (g PIDGains) Validate() error {
	if g.Kp == 0 && g.Ki == 0 && g.Kd == 0 {
		return errors.New("pid should have at least one of kp, ki or kd")
	}
	if g.IntegralLimit < 0 || g.OutputLimit < 0 {
		return errors.New("pid limits cannot be negative")
	}
	return nil
}

// PID is a discrete PID controller. The derivative acts on the error rate supplied by the caller, so a
// measured velocity can be used instead of differencing.
type PID struct {
	gains    PIDGains
	integral float64
	// sat is the sign of the saturated integral, 0 when not saturated.
	sat int
	y   float64
}

// NewPID returns a PID controller with the given gains.
func NewPID(gains PIDGains) (*PID, error) {
	if err := gains.Validate(); err != nil {
		return nil, err
	}
	return &PID{gains: gains}, nil
}

// Reset clears the integral and saturation state.
func (p *PID) Reset() {
	p.integral = 0
	p.sat = 0
	p.y = 0
}

// Next computes one step. errRate is the time derivative of err. Returns false when the integral is
// saturated in the direction of the error, in which case the integral is left unchanged.
func (p *PID) Next(err, errRate, dt float64) (float64, bool) {
	ok := true
	if (p.sat > 0 && err > 0) || (p.sat < 0 && err < 0) {
		ok = false
	} else {
		p.integral += p.gains.Ki * err * dt
		p.sat = 0
		if lim := p.gains.IntegralLimit; lim > 0 {
			if p.integral > lim {
				p.integral = lim
				p.sat = 1
			} else if p.integral < -lim {
				p.integral = -lim
				p.sat = -1
			}
		}
	}
	out := p.gains.Kp*err + p.integral + p.gains.Kd*errRate
	if lim := p.gains.OutputLimit; lim > 0 {
		out = utils.ClampSymmetric(out, lim)
	}
	p.y = out
	return out, ok
}

// Output returns the last output.
func (p *PID) Output() float64 {
	return p.y
}
