package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/balance/control"
	"go.viam.com/balance/logging"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate("walking"), test.ShouldBeNil)
	test.That(t, cfg.Omega(), test.ShouldAlmostEqual, math.Sqrt(9.81/0.9))

	sole := cfg.Foot.SolePolygon()
	test.That(t, sole.NumVertices(), test.ShouldEqual, 4)
	test.That(t, sole.Area(), test.ShouldAlmostEqual, 0.2*(0.09+0.08)/2)
}

func TestValidateErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*WalkingConfig)
		substr string
	}{
		{"frequency", func(c *WalkingConfig) { c.ControlFrequencyHz = 2000 }, "control_frequency_hz"},
		{"com height", func(c *WalkingConfig) { c.CoMHeight = 0 }, "com_height"},
		{"foot", func(c *WalkingConfig) { c.Foot.HeelX = 0.2 }, "walking.foot"},
		{"swing", func(c *WalkingConfig) { c.Timing.DefaultSwingTime = math.NaN() }, "default_swing_time"},
		{"ratio", func(c *WalkingConfig) { c.Planner.ExitCMPRatio = 1.5 }, "exit_cmp_ratio"},
		{"horizon", func(c *WalkingConfig) { c.Planner.MaxStepsToConsider = 0 }, "max_steps_to_consider"},
		{"gain", func(c *WalkingConfig) { c.ICPOptimization.LateralFeedbackGain = 0 }, "lateral_feedback_gain"},
		{"solver", func(c *WalkingConfig) { c.ICPOptimization.Solver = "magic" }, "magic"},
		{"weight", func(c *WalkingConfig) { c.ICPOptimization.ForwardFootstepWeight = -1 }, "forward_footstep_weight"},
		{"push", func(c *WalkingConfig) { c.PushRecovery.MinStepWidth = 1 }, "min_step_width"},
		{"com gains", func(c *WalkingConfig) { c.CoMHeightGains = control.PIDGains{} }, "com_height_gains"},
		{"log", func(c *WalkingConfig) { c.Log = append(c.Log, loggerPattern("a..b", "info")) }, "a..b"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate("walking")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.substr)
		})
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"com_height": 1.0,
		"planner": {"max_steps_to_consider": 4, "use_two_cmps": false, "exit_cmp_offset": {"x": 0.05, "y": 0}},
		"timing": {"malformed_timing_ticks_before_fatal": 3},
		"log": [{"pattern": "walking.*", "level": "debug"}]
	}`), "inline")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.CoMHeight, test.ShouldEqual, 1.0)
	test.That(t, cfg.Planner.MaxStepsToConsider, test.ShouldEqual, 4)
	test.That(t, cfg.Planner.UseTwoCMPs, test.ShouldBeFalse)
	test.That(t, cfg.Planner.ExitCMPOffset.X, test.ShouldEqual, 0.05)
	test.That(t, cfg.Timing.MalformedTimingTicksBeforeFatal, test.ShouldEqual, 3)
	// untouched fields keep their defaults
	test.That(t, cfg.Planner.ExitCMPRatio, test.ShouldEqual, Default().Planner.ExitCMPRatio)
	test.That(t, cfg.Timing.DefaultSwingTime, test.ShouldEqual, Default().Timing.DefaultSwingTime)
	test.That(t, len(cfg.Log), test.ShouldEqual, 1)

	_, err = Parse([]byte(`{"planner": {"max_steps": 4}}`), "inline")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_steps")

	_, err = Parse([]byte(`{"com_height": -1}`), "inline")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Parse([]byte(`{`), "inline")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walking.json")
	test.That(t, os.WriteFile(path, []byte(`{"control_frequency_hz": 250}`), 0o600), test.ShouldBeNil)
	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ControlFrequencyHz, test.ShouldEqual, 250.)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func loggerPattern(pattern, level string) logging.LoggerPatternConfig {
	return logging.LoggerPatternConfig{Pattern: pattern, Level: level}
}
