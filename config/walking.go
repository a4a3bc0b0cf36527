// Package config defines the walking controller configuration, its defaults, validation and file loading.
package config

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/balance/control"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/spatialmath"
)

// MaxControlFrequencyHz bounds the control loop frequency.
const MaxControlFrequencyHz = 1000

// WalkingConfig is the full configuration of the balance controller. It is loaded once at startup.
type WalkingConfig struct {
	ControlFrequencyHz float64 `json:"control_frequency_hz"`
	Gravity            float64 `json:"gravity"`
	CoMHeight          float64 `json:"com_height"`

	Foot            FootConfig            `json:"foot"`
	Timing          TimingConfig          `json:"timing"`
	Planner         PlannerConfig         `json:"planner"`
	ICPOptimization ICPOptimizationConfig `json:"icp_optimization"`
	ToeOff          ToeOffConfig          `json:"toe_off"`
	PushRecovery    PushRecoveryConfig    `json:"push_recovery"`
	// TransferToSingleSupport is the ICP error box inside which a transfer may end while the ICP is
	// still inside the support polygon.
	TransferToSingleSupport ErrorBox `json:"transfer_to_single_support"`
	// CoMHeightGains drive the vertical CoM acceleration toward com_height.
	CoMHeightGains control.PIDGains `json:"com_height_gains"`

	Log []logging.LoggerPatternConfig `json:"log,omitempty"`
}

// FootConfig describes the sole of the foot in the sole frame (x forward, y left).
type FootConfig struct {
	ToeX      float64 `json:"toe_x"`
	HeelX     float64 `json:"heel_x"`
	ToeWidth  float64 `json:"toe_width"`
	HeelWidth float64 `json:"heel_width"`
	Friction  float64 `json:"friction"`
}

// TimingConfig bounds step timing and drives swing speed-up.
type TimingConfig struct {
	DefaultSwingTime    float64 `json:"default_swing_time"`
	DefaultTransferTime float64 `json:"default_transfer_time"`
	FinalTransferTime   float64 `json:"final_transfer_time"`
	MinimumSwingTime    float64 `json:"minimum_swing_time"`
	MaximumSwingTime    float64 `json:"maximum_swing_time"`
	MinimumTransferTime float64 `json:"minimum_transfer_time"`
	MaximumTransferTime float64 `json:"maximum_transfer_time"`

	MinimumSwingFraction                   float64 `json:"minimum_swing_fraction"`
	FallRecoveryMinimumSwingTime           float64 `json:"fall_recovery_minimum_swing_time"`
	MinimumSwingTimeForDisturbanceRecovery float64 `json:"minimum_swing_time_for_disturbance_recovery"`
	AllowSwingSpeedUp                      bool    `json:"allow_swing_speed_up"`
	ICPErrorThresholdToSpeedUpSwing        float64 `json:"icp_error_threshold_to_speed_up_swing"`
	MalformedTimingTicksBeforeFatal        int     `json:"malformed_timing_ticks_before_fatal"`
}

// PlannerConfig configures the ICP trajectory generator.
type PlannerConfig struct {
	MaxStepsToConsider int  `json:"max_steps_to_consider"`
	UseTwoCMPs         bool `json:"use_two_cmps"`
	// ExitCMPRatio is the fraction of a foot's CMP time spent on its exit CMP.
	ExitCMPRatio float64 `json:"exit_cmp_ratio"`
	// TransferSplitFraction is the fraction of a transfer spent on the trailing foot.
	TransferSplitFraction float64 `json:"transfer_split_fraction"`
	SplineHalfDuration    float64 `json:"spline_half_duration"`
	// Offsets are expressed for the left foot; the lateral component is mirrored for the right foot.
	EntryCMPOffset r2.Point `json:"entry_cmp_offset"`
	ExitCMPOffset  r2.Point `json:"exit_cmp_offset"`
	// CMPSafeDistanceFromEdge keeps planned CMPs this far inside the foot polygon.
	CMPSafeDistanceFromEdge float64 `json:"cmp_safe_distance_from_edge"`
}

// ICPOptimizationConfig configures the feedback QP.
type ICPOptimizationConfig struct {
	ForwardFeedbackWeight float64 `json:"forward_feedback_weight"`
	LateralFeedbackWeight float64 `json:"lateral_feedback_weight"`
	ForwardFeedbackGain   float64 `json:"forward_feedback_gain"`
	LateralFeedbackGain   float64 `json:"lateral_feedback_gain"`

	ForwardFootstepWeight        float64 `json:"forward_footstep_weight"`
	LateralFootstepWeight        float64 `json:"lateral_footstep_weight"`
	FootstepRegularizationWeight float64 `json:"footstep_regularization_weight"`

	DynamicRelaxationWeight                      float64 `json:"dynamic_relaxation_weight"`
	DynamicRelaxationDoubleSupportWeightModifier float64 `json:"dynamic_relaxation_double_support_weight_modifier"`
	MinimumFeedbackWeight                        float64 `json:"minimum_feedback_weight"`
	MinimumFootstepWeight                        float64 `json:"minimum_footstep_weight"`

	ScaleFeedbackWeightWithGain bool `json:"scale_feedback_weight_with_gain"`
	UseStepAdjustment           bool `json:"use_step_adjustment"`
	UseFootstepRegularization   bool `json:"use_footstep_regularization"`
	UseWarmStartInSolver        bool `json:"use_warm_start_in_solver"`

	SingleSupportForwardExitMargin float64 `json:"single_support_forward_exit_margin"`
	SingleSupportLateralExitMargin float64 `json:"single_support_lateral_exit_margin"`
	DoubleSupportForwardExitMargin float64 `json:"double_support_forward_exit_margin"`
	DoubleSupportLateralExitMargin float64 `json:"double_support_lateral_exit_margin"`

	ForwardReachability float64 `json:"forward_reachability"`
	LateralReachability float64 `json:"lateral_reachability"`
	AdjustmentDeadband  float64 `json:"adjustment_deadband"`

	// FeedbackBreakFrequency low-pass filters the CMP feedback, 0 disables.
	FeedbackBreakFrequency float64 `json:"feedback_break_frequency"`
	// MaxAdjustmentRate limits footstep adjustment speed in m/s, 0 disables.
	MaxAdjustmentRate float64 `json:"max_adjustment_rate"`

	// Solver is "active_set" or "nlopt".
	Solver               string  `json:"solver"`
	MaxIterations        int     `json:"max_iterations"`
	ConvergenceTolerance float64 `json:"convergence_tolerance"`
}

// ToeOffConfig configures toe-off eligibility.
type ToeOffConfig struct {
	DoToeOffInDoubleSupport    bool    `json:"do_toe_off_in_double_support"`
	DoToeOffInSingleSupport    bool    `json:"do_toe_off_in_single_support"`
	MinStepLengthForToeOff     float64 `json:"min_step_length_for_toe_off"`
	ICPMargin                  float64 `json:"icp_margin"`
	ECMPProximity              float64 `json:"ecmp_proximity"`
	MaxRemainingSwingForToeOff float64 `json:"max_remaining_swing_for_toe_off"`
	ToeWidthFraction           float64 `json:"toe_width_fraction"`
}

// PushRecoveryConfig configures recovery stepping.
type PushRecoveryConfig struct {
	Enabled                          bool    `json:"enabled"`
	RecoverySwingTime                float64 `json:"recovery_swing_time"`
	RecoveryTransferTime             float64 `json:"recovery_transfer_time"`
	ICPDistanceOutsideSupportForStep float64 `json:"icp_distance_outside_support_for_step"`
	LateralOffset                    float64 `json:"lateral_offset"`
	MaxStepLength                    float64 `json:"max_step_length"`
	MinStepWidth                     float64 `json:"min_step_width"`
	MaxStepWidth                     float64 `json:"max_step_width"`
	ReachTolerance                   float64 `json:"reach_tolerance"`
}

// ErrorBox bounds an error vector in the stance foot frame. Inner points toward the other foot.
type ErrorBox struct {
	Forward  float64 `json:"forward"`
	Backward float64 `json:"backward"`
	Inner    float64 `json:"inner"`
	Outer    float64 `json:"outer"`
}

// Default returns a configuration suitable for a human-sized biped.
func Default() WalkingConfig {
	return WalkingConfig{
		ControlFrequencyHz: 500,
		Gravity:            9.81,
		CoMHeight:          0.9,
		Foot: FootConfig{
			ToeX:      0.11,
			HeelX:     -0.09,
			ToeWidth:  0.09,
			HeelWidth: 0.08,
			Friction:  0.8,
		},
		Timing: TimingConfig{
			DefaultSwingTime:                       0.6,
			DefaultTransferTime:                    0.25,
			FinalTransferTime:                      1.0,
			MinimumSwingTime:                       0.3,
			MaximumSwingTime:                       3.0,
			MinimumTransferTime:                    0.05,
			MaximumTransferTime:                    3.0,
			MinimumSwingFraction:                   0.5,
			FallRecoveryMinimumSwingTime:           0.15,
			MinimumSwingTimeForDisturbanceRecovery: 0.35,
			AllowSwingSpeedUp:                      true,
			ICPErrorThresholdToSpeedUpSwing:        0.05,
			MalformedTimingTicksBeforeFatal:        10,
		},
		Planner: PlannerConfig{
			MaxStepsToConsider:      3,
			UseTwoCMPs:              true,
			ExitCMPRatio:            0.5,
			TransferSplitFraction:   0.5,
			SplineHalfDuration:      0.1,
			EntryCMPOffset:          r2.Point{X: 0, Y: -0.005},
			ExitCMPOffset:           r2.Point{X: 0.04, Y: 0.01},
			CMPSafeDistanceFromEdge: 0.01,
		},
		ICPOptimization: ICPOptimizationConfig{
			ForwardFeedbackWeight:                        0.5,
			LateralFeedbackWeight:                        0.5,
			ForwardFeedbackGain:                          2.5,
			LateralFeedbackGain:                          3.0,
			ForwardFootstepWeight:                        5,
			LateralFootstepWeight:                        5,
			FootstepRegularizationWeight:                 0.1,
			DynamicRelaxationWeight:                      500,
			DynamicRelaxationDoubleSupportWeightModifier: 4,
			MinimumFeedbackWeight:                        1e-4,
			MinimumFootstepWeight:                        1e-4,
			ScaleFeedbackWeightWithGain:                  true,
			UseStepAdjustment:                            true,
			UseFootstepRegularization:                    true,
			UseWarmStartInSolver:                         true,
			SingleSupportForwardExitMargin:               0,
			SingleSupportLateralExitMargin:               0,
			DoubleSupportForwardExitMargin:               0.01,
			DoubleSupportLateralExitMargin:               0.01,
			ForwardReachability:                          0.3,
			LateralReachability:                          0.2,
			AdjustmentDeadband:                           0.02,
			FeedbackBreakFrequency:                       0,
			MaxAdjustmentRate:                            0,
			Solver:                                       "active_set",
			MaxIterations:                                100,
			ConvergenceTolerance:                         1e-9,
		},
		ToeOff: ToeOffConfig{
			DoToeOffInDoubleSupport:    true,
			DoToeOffInSingleSupport:    false,
			MinStepLengthForToeOff:     0.15,
			ICPMargin:                  0.0,
			ECMPProximity:              0.04,
			MaxRemainingSwingForToeOff: 0.2,
			ToeWidthFraction:           0.8,
		},
		PushRecovery: PushRecoveryConfig{
			Enabled:                          true,
			RecoverySwingTime:                0.5,
			RecoveryTransferTime:             0.2,
			ICPDistanceOutsideSupportForStep: 0.03,
			LateralOffset:                    0.02,
			MaxStepLength:                    0.6,
			MinStepWidth:                     0.1,
			MaxStepWidth:                     0.5,
			ReachTolerance:                   0.2,
		},
		TransferToSingleSupport: ErrorBox{
			Forward:  0.08,
			Backward: 0.05,
			Inner:    0.04,
			Outer:    0.06,
		},
		CoMHeightGains: control.PIDGains{
			Kp:          100,
			Kd:          20,
			OutputLimit: 5,
		},
	}
}

// Omega returns sqrt(gravity / comHeight).
func (cfg *WalkingConfig) Omega() float64 {
	return omega(cfg.Gravity, cfg.CoMHeight)
}

// DefaultTiming is the swing and transfer time used for steps submitted without timing.
func (cfg *TimingConfig) DefaultTiming() (swing, transfer float64) {
	return cfg.DefaultSwingTime, cfg.DefaultTransferTime
}

// SolePolygon returns the foot polygon in the sole frame.
func (cfg *FootConfig) SolePolygon() spatialmath.ConvexPolygon {
	return spatialmath.NewConvexPolygon(
		r2.Point{X: cfg.ToeX, Y: cfg.ToeWidth / 2},
		r2.Point{X: cfg.ToeX, Y: -cfg.ToeWidth / 2},
		r2.Point{X: cfg.HeelX, Y: cfg.HeelWidth / 2},
		r2.Point{X: cfg.HeelX, Y: -cfg.HeelWidth / 2},
	)
}

// Validate ensures all parts of the config are valid.
func (cfg *WalkingConfig) Validate(path string) error {
	if !(cfg.ControlFrequencyHz > 0 && cfg.ControlFrequencyHz <= MaxControlFrequencyHz) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("control_frequency_hz must be in (0, %d], got %v", MaxControlFrequencyHz, cfg.ControlFrequencyHz))
	}
	if cfg.Gravity <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "gravity")
	}
	if cfg.CoMHeight <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "com_height")
	}
	if err := cfg.Foot.Validate(fmt.Sprintf("%s.%s", path, "foot")); err != nil {
		return err
	}
	if err := cfg.Timing.Validate(fmt.Sprintf("%s.%s", path, "timing")); err != nil {
		return err
	}
	if err := cfg.Planner.Validate(fmt.Sprintf("%s.%s", path, "planner")); err != nil {
		return err
	}
	if err := cfg.ICPOptimization.Validate(fmt.Sprintf("%s.%s", path, "icp_optimization")); err != nil {
		return err
	}
	if err := cfg.ToeOff.Validate(fmt.Sprintf("%s.%s", path, "toe_off")); err != nil {
		return err
	}
	if err := cfg.PushRecovery.Validate(fmt.Sprintf("%s.%s", path, "push_recovery")); err != nil {
		return err
	}
	if err := cfg.TransferToSingleSupport.Validate(fmt.Sprintf("%s.%s", path, "transfer_to_single_support")); err != nil {
		return err
	}
	if err := cfg.CoMHeightGains.Validate(); err != nil {
		return goutils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "com_height_gains"), err)
	}
	for idx, lc := range cfg.Log {
		if !logging.ValidatePattern(lc.Pattern) {
			return goutils.NewConfigValidationError(fmt.Sprintf("%s.%s.%d", path, "log", idx),
				errors.Errorf("invalid logger pattern %q", lc.Pattern))
		}
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			return goutils.NewConfigValidationError(fmt.Sprintf("%s.%s.%d", path, "log", idx), err)
		}
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *FootConfig) Validate(path string) error {
	if cfg.ToeX <= cfg.HeelX {
		return goutils.NewConfigValidationError(path, errors.New("toe_x must be ahead of heel_x"))
	}
	if cfg.ToeWidth <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "toe_width")
	}
	if cfg.HeelWidth <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "heel_width")
	}
	if cfg.Friction < 0 {
		return goutils.NewConfigValidationError(path, errors.New("friction must be non-negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *TimingConfig) Validate(path string) error {
	if err := positive(path, "default_swing_time", cfg.DefaultSwingTime); err != nil {
		return err
	}
	if err := nonNegative(path, "default_transfer_time", cfg.DefaultTransferTime); err != nil {
		return err
	}
	if err := positive(path, "final_transfer_time", cfg.FinalTransferTime); err != nil {
		return err
	}
	if cfg.MinimumSwingTime > cfg.MaximumSwingTime {
		return goutils.NewConfigValidationError(path, errors.New("minimum_swing_time exceeds maximum_swing_time"))
	}
	if cfg.MinimumTransferTime > cfg.MaximumTransferTime {
		return goutils.NewConfigValidationError(path, errors.New("minimum_transfer_time exceeds maximum_transfer_time"))
	}
	if cfg.MinimumSwingFraction < 0 || cfg.MinimumSwingFraction > 1 {
		return goutils.NewConfigValidationError(path, errors.New("minimum_swing_fraction must be in [0, 1]"))
	}
	if err := nonNegative(path, "fall_recovery_minimum_swing_time", cfg.FallRecoveryMinimumSwingTime); err != nil {
		return err
	}
	if err := nonNegative(path, "minimum_swing_time_for_disturbance_recovery", cfg.MinimumSwingTimeForDisturbanceRecovery); err != nil {
		return err
	}
	if cfg.MalformedTimingTicksBeforeFatal < 1 {
		return goutils.NewConfigValidationError(path, errors.New("malformed_timing_ticks_before_fatal must be at least 1"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *PlannerConfig) Validate(path string) error {
	if cfg.MaxStepsToConsider < 1 {
		return goutils.NewConfigValidationError(path, errors.New("max_steps_to_consider must be at least 1"))
	}
	if err := unitInterval(path, "exit_cmp_ratio", cfg.ExitCMPRatio); err != nil {
		return err
	}
	if err := unitInterval(path, "transfer_split_fraction", cfg.TransferSplitFraction); err != nil {
		return err
	}
	if err := nonNegative(path, "spline_half_duration", cfg.SplineHalfDuration); err != nil {
		return err
	}
	return nonNegative(path, "cmp_safe_distance_from_edge", cfg.CMPSafeDistanceFromEdge)
}

// Validate ensures all parts of the config are valid.
func (cfg *ICPOptimizationConfig) Validate(path string) error {
	for name, v := range map[string]float64{
		"forward_feedback_weight":        cfg.ForwardFeedbackWeight,
		"lateral_feedback_weight":        cfg.LateralFeedbackWeight,
		"forward_footstep_weight":        cfg.ForwardFootstepWeight,
		"lateral_footstep_weight":        cfg.LateralFootstepWeight,
		"footstep_regularization_weight": cfg.FootstepRegularizationWeight,
		"minimum_feedback_weight":        cfg.MinimumFeedbackWeight,
		"minimum_footstep_weight":        cfg.MinimumFootstepWeight,
		"forward_reachability":           cfg.ForwardReachability,
		"lateral_reachability":           cfg.LateralReachability,
		"adjustment_deadband":            cfg.AdjustmentDeadband,
		"feedback_break_frequency":       cfg.FeedbackBreakFrequency,
		"max_adjustment_rate":            cfg.MaxAdjustmentRate,
	} {
		if err := nonNegative(path, name, v); err != nil {
			return err
		}
	}
	if err := positive(path, "forward_feedback_gain", cfg.ForwardFeedbackGain); err != nil {
		return err
	}
	if err := positive(path, "lateral_feedback_gain", cfg.LateralFeedbackGain); err != nil {
		return err
	}
	if err := positive(path, "dynamic_relaxation_weight", cfg.DynamicRelaxationWeight); err != nil {
		return err
	}
	if err := positive(path, "dynamic_relaxation_double_support_weight_modifier",
		cfg.DynamicRelaxationDoubleSupportWeightModifier); err != nil {
		return err
	}
	switch cfg.Solver {
	case "", SolverActiveSet, SolverNlopt:
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown solver %q", cfg.Solver))
	}
	if cfg.MaxIterations < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_iterations must be non-negative"))
	}
	return nil
}

// Solver names accepted by ICPOptimizationConfig.Solver.
const (
	SolverActiveSet = "active_set"
	SolverNlopt     = "nlopt"
)

// Validate ensures all parts of the config are valid.
func (cfg *ToeOffConfig) Validate(path string) error {
	if err := unitInterval(path, "toe_width_fraction", cfg.ToeWidthFraction); err != nil {
		return err
	}
	if err := nonNegative(path, "ecmp_proximity", cfg.ECMPProximity); err != nil {
		return err
	}
	return nonNegative(path, "max_remaining_swing_for_toe_off", cfg.MaxRemainingSwingForToeOff)
}

// Validate ensures all parts of the config are valid.
func (cfg *PushRecoveryConfig) Validate(path string) error {
	if !cfg.Enabled {
		return nil
	}
	if err := positive(path, "recovery_swing_time", cfg.RecoverySwingTime); err != nil {
		return err
	}
	if err := nonNegative(path, "recovery_transfer_time", cfg.RecoveryTransferTime); err != nil {
		return err
	}
	if err := positive(path, "max_step_length", cfg.MaxStepLength); err != nil {
		return err
	}
	if cfg.MinStepWidth > cfg.MaxStepWidth {
		return goutils.NewConfigValidationError(path, errors.New("min_step_width exceeds max_step_width"))
	}
	return nonNegative(path, "reach_tolerance", cfg.ReachTolerance)
}

// Validate ensures all parts of the config are valid.
func (b *ErrorBox) Validate(path string) error {
	for name, v := range map[string]float64{
		"forward": b.Forward, "backward": b.Backward, "inner": b.Inner, "outer": b.Outer,
	} {
		if err := nonNegative(path, name, v); err != nil {
			return err
		}
	}
	return nil
}
