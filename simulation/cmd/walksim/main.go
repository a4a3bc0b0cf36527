// Package main runs the walking controller against a simulated pendulum and prints the trajectory as CSV.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/balance/config"
	"go.viam.com/balance/control"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/simulation/lipm"
	"go.viam.com/balance/spatialmath"
	"go.viam.com/balance/walking"
)

const (
	flagConfig   = "config"
	flagSteps    = "steps"
	flagLength   = "step-length"
	flagWidth    = "step-width"
	flagNoise    = "noise"
	flagSeed     = "seed"
	flagDuration = "duration"
	flagPush     = "push"
	flagPushTime = "push-time"
	flagRealtime = "realtime"
	flagOutput   = "output"
	flagDebug    = "debug"
)

func main() {
	app := &cli.App{
		Name:  "walksim",
		Usage: "walk a simulated biped and print its capture point trajectory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load the walking configuration from `FILE`",
			},
			&cli.IntFlag{Name: flagSteps, Value: 6, Usage: "number of steps to take"},
			&cli.Float64Flag{Name: flagLength, Value: 0.2, Usage: "step length in meters"},
			&cli.Float64Flag{Name: flagWidth, Value: 0.2, Usage: "distance between the feet in meters"},
			&cli.Float64Flag{Name: flagNoise, Usage: "standard deviation of the CoM measurement in meters"},
			&cli.Int64Flag{Name: flagSeed, Value: 1, Usage: "seed of the measurement noise"},
			&cli.DurationFlag{Name: flagDuration, Value: 10 * time.Second, Usage: "simulated time"},
			&cli.Float64Flag{Name: flagPush, Usage: "forward velocity change of a push in m/s"},
			&cli.DurationFlag{Name: flagPushTime, Value: time.Second, Usage: "when the push happens"},
			&cli.BoolFlag{Name: flagRealtime, Usage: "run on the wall clock instead of as fast as possible"},
			&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Usage: "write CSV to `FILE` instead of stdout"},
			&cli.BoolFlag{Name: flagDebug, Aliases: []string{"vvv"}, Usage: "enable debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) logging.Logger {
	logger := logging.NewBlankLogger("walksim")
	logger.AddAppender(logging.NewWriterAppender(os.Stderr))
	if !debug {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

func run(c *cli.Context) error {
	logger := newLogger(c.Bool(flagDebug))
	logging.ReplaceGlobal(logger)

	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Read(path)
		if err != nil {
			return err
		}
		cfg = *loaded
	}

	out := io.Writer(os.Stdout)
	if path := c.String(flagOutput); path != "" {
		//nolint:gosec
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "cannot create output file")
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Warnw("cannot close output file", "error", err)
			}
		}()
		out = f
	}

	width := c.Float64(flagWidth)
	feet := [2]spatialmath.Pose{
		spatialmath.NewPose(0, width/2, 0, 0),
		spatialmath.NewPose(0, -width/2, 0, 0),
	}
	dt := 1 / cfg.ControlFrequencyHz
	plant, err := lipm.NewPlant(cfg.Gravity, cfg.CoMHeight, dt, feet)
	if err != nil {
		return err
	}
	rec := newRecorder(out, plant)
	if err := rec.header(); err != nil {
		return err
	}

	deps := walking.Collaborators{
		Estimator: lipm.NewEstimator(plant, c.Float64(flagNoise), c.Int64(flagSeed)),
		Sink:      rec,
		Replanner: plant,
		Callbacks: walking.Callbacks{
			FootstepCompleted: func(step footstep.Footstep, actual spatialmath.Pose) {
				logger.Debugw("landed", "side", step.Side, "planned", step.Pose, "actual", actual)
			},
		},
	}
	// levels from the config's log patterns apply before the controller creates its subloggers
	registry := logging.NewRegistry()
	registry.Register(logger)
	walkingLogger := registry.Register(logger.Sublogger("walking"))
	if err := registry.UpdateConfig(cfg.Log); err != nil {
		return err
	}
	ctrl, err := walking.New(cfg, feet, deps, walkingLogger)
	if err != nil {
		return err
	}
	steps, timings := straightWalk(c.Int(flagSteps), c.Float64(flagLength), width)
	if err := ctrl.SubmitFootstepList(steps, timings); err != nil {
		return err
	}
	if push := c.Float64(flagPush); push != 0 {
		rec.pushAt(c.Duration(flagPushTime).Seconds(), push)
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()
	duration := c.Duration(flagDuration)
	if c.Bool(flagRealtime) {
		err = runRealtime(ctx, logger, cfg.ControlFrequencyHz, ctrl, duration)
	} else {
		err = runOffline(ctx, logger, cfg.ControlFrequencyHz, ctrl, duration)
	}
	if flushErr := rec.flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

// straightWalk alternates feet forward from the left and closes the feet on the last step.
func straightWalk(n int, length, width float64) ([]footstep.Footstep, []footstep.Timing) {
	steps := make([]footstep.Footstep, 0, n)
	timings := make([]footstep.Timing, 0, n)
	side := footstep.Left
	for i := 0; i < n; i++ {
		x := length * float64(i+1)
		if i == n-1 && i > 0 {
			x = length * float64(i)
		}
		steps = append(steps, footstep.New(side, spatialmath.NewPose(x, side.Sign()*width/2, 0, 0)))
		timings = append(timings, footstep.UnassignedTiming())
		side = side.Opposite()
	}
	return steps, timings
}

func runOffline(ctx context.Context, logger logging.Logger, frequency float64, ctrl *walking.Controller, duration time.Duration) error {
	period := time.Duration(float64(time.Second) / frequency)
	epoch := time.Now()
	for elapsed := time.Duration(0); elapsed < duration; elapsed += period {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ctrl.Tick(ctx, epoch.Add(elapsed), period); err != nil {
			if control.IsFatal(err) {
				return err
			}
			logger.Warnw("tick failed", "error", err)
		}
	}
	return nil
}

func runRealtime(ctx context.Context, logger logging.Logger, frequency float64, ctrl *walking.Controller, duration time.Duration) error {
	loop, err := control.NewLoop(logger.Sublogger("loop"), frequency, clock.New(), ctrl)
	if err != nil {
		return err
	}
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	waitCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	err = loop.Wait(waitCtx)
	ticks, overruns := loop.Stats()
	logger.Infow("loop finished", "ticks", ticks, "overruns", overruns)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// recorder applies commands to the plant and writes one CSV row per tick.
type recorder struct {
	w     *csv.Writer
	plant *lipm.Plant

	pushTime float64
	push     float64
	pushed   bool
}

func newRecorder(out io.Writer, plant *lipm.Plant) *recorder {
	return &recorder{w: csv.NewWriter(out), plant: plant, pushed: true}
}

func (r *recorder) pushAt(t, velocity float64) {
	r.pushTime = t
	r.push = velocity
	r.pushed = false
}

func (r *recorder) header() error {
	return r.w.Write([]string{
		"time", "phase", "icp_x", "icp_y", "desired_icp_x", "desired_icp_y", "cmp_x", "cmp_y",
		"left_x", "left_y", "right_x", "right_y", "queued",
	})
}

// Apply implements walking.CommandSink.
func (r *recorder) Apply(ctx context.Context, state walking.BalanceState) error {
	if err := r.plant.Apply(ctx, state); err != nil {
		return err
	}
	if !r.pushed && r.plant.Time() >= r.pushTime {
		r.plant.Push(r2.Point{X: r.push})
		r.pushed = true
	}
	feet := r.plant.FootPoses()
	row := []string{
		ftoa(state.Time), state.Phase.String(),
		ftoa(state.CapturePoint.X), ftoa(state.CapturePoint.Y),
		ftoa(state.DesiredICP.X), ftoa(state.DesiredICP.Y),
		ftoa(state.DesiredCMP.X), ftoa(state.DesiredCMP.Y),
		ftoa(feet[footstep.Left].Position.X), ftoa(feet[footstep.Left].Position.Y),
		ftoa(feet[footstep.Right].Position.X), ftoa(feet[footstep.Right].Position.Y),
		strconv.Itoa(state.QueuedSteps),
	}
	return r.w.Write(row)
}

func (r *recorder) flush() error {
	r.w.Flush()
	return r.w.Error()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}
