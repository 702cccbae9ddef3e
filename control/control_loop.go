// Package control drives the rig away from obstacles: it polls the distance sensor and either
// runs both motors forward or backs them up for a while.
package control

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/hubrobotics/avoider/components/motor"
	"github.com/hubrobotics/avoider/components/sensor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
)

// Action is the branch a step took.
type Action int

// The two branches of a step.
const (
	Forward Action = iota
	Reverse
)

func (a Action) String() string {
	switch a {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Config holds the loop tunables.
type Config struct {
	// ThresholdMM is the obstacle distance. Readings strictly below it back the rig up.
	ThresholdMM     int
	Speed           float64
	ReverseDuration time.Duration
	PollPeriod      time.Duration
}

// DefaultConfig returns the stock tunables: back up at 40 mm, run at 360, back up for a second,
// read ten times a second.
func DefaultConfig() Config {
	return Config{
		ThresholdMM:     config.DefaultThresholdMM,
		Speed:           config.DefaultSpeed,
		ReverseDuration: config.DefaultReverseMS * time.Millisecond,
		PollPeriod:      config.DefaultPollMS * time.Millisecond,
	}
}

// ConfigFromAvoidance converts the avoidance section of a rig config.
func ConfigFromAvoidance(a config.Avoidance) Config {
	return Config{
		ThresholdMM:     a.ThresholdMM,
		Speed:           a.Speed,
		ReverseDuration: a.ReverseDuration(),
		PollPeriod:      a.PollPeriod(),
	}
}

// Validate ensures the tunables describe a loop that can run.
func (cfg Config) Validate() error {
	if cfg.ThresholdMM <= 0 {
		return errors.Errorf("obstacle threshold must be positive, got %d", cfg.ThresholdMM)
	}
	if cfg.Speed <= 0 {
		return errors.Errorf("speed must be positive, got %v", cfg.Speed)
	}
	if cfg.ReverseDuration <= 0 {
		return errors.Errorf("reverse duration must be positive, got %v", cfg.ReverseDuration)
	}
	if cfg.PollPeriod <= 0 {
		return errors.Errorf("poll period must be positive, got %v", cfg.PollPeriod)
	}
	return nil
}

// Loop holds the devices and tunables of the avoidance loop. It is not safe to call Step or Run
// concurrently.
type Loop struct {
	cfg    Config
	left   motor.Motor
	right  motor.Motor
	sensor sensor.DistanceSensor
	clock  clock.Clock
	logger logging.Logger

	last  Action
	steps int
}

// NewLoop constructs a new avoidance loop over the two drive motors and the distance sensor.
func NewLoop(
	cfg Config,
	left, right motor.Motor,
	s sensor.DistanceSensor,
	clk clock.Clock,
	logger logging.Logger,
) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		return nil, errors.New("the loop needs both a left and a right motor")
	}
	if s == nil {
		return nil, errors.New("the loop needs a distance sensor")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		cfg:    cfg,
		left:   left,
		right:  right,
		sensor: s,
		clock:  clk,
		logger: logger,
		last:   -1,
	}, nil
}

// Step performs one iteration: read, act on the reading, then wait out the poll period.
func (l *Loop) Step(ctx context.Context) (Action, error) {
	dist, err := l.sensor.Distance(ctx)
	if err != nil {
		return Forward, errors.Wrapf(err, "reading distance sensor %s", l.sensor.Name())
	}
	l.steps++

	action := Forward
	if dist < l.cfg.ThresholdMM {
		action = Reverse
	}
	l.logger.Debugw("distance", "mm", dist, "step", l.steps, "action", action.String())
	if action != l.last {
		l.logger.Infow("changing direction", "action", action.String(), "mm", dist)
		l.last = action
	}

	switch action {
	case Reverse:
		if err := l.runBoth(ctx, -l.cfg.Speed); err != nil {
			return action, err
		}
		if err := l.wait(ctx, l.cfg.ReverseDuration); err != nil {
			// the backoff never ends with the motors still running
			return action, multierr.Combine(err, l.stopBoth(context.Background()))
		}
		if err := l.stopBoth(ctx); err != nil {
			return action, err
		}
	default:
		// forward motion persists until the next obstacle
		if err := l.runBoth(ctx, l.cfg.Speed); err != nil {
			return action, err
		}
	}

	return action, l.wait(ctx, l.cfg.PollPeriod)
}

// Run steps until ctx is done or a device fails. On cancellation it stops the motors and returns
// nil. On a device error it still tries to stop the motors and returns every error encountered.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Infow("starting avoidance loop",
		"threshold_mm", l.cfg.ThresholdMM,
		"speed", l.cfg.Speed,
		"reverse", l.cfg.ReverseDuration,
		"poll", l.cfg.PollPeriod,
	)
	for {
		if ctx.Err() != nil {
			return l.shutdown()
		}
		if _, err := l.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return l.shutdown()
			}
			l.logger.Errorw("avoidance loop failed", "error", err)
			return multierr.Combine(err, l.stopBoth(context.Background()))
		}
	}
}

func (l *Loop) shutdown() error {
	l.logger.Infow("stopping avoidance loop", "steps", l.steps)
	return l.stopBoth(context.Background())
}

func (l *Loop) runBoth(ctx context.Context, speed float64) error {
	for _, m := range []motor.Motor{l.left, l.right} {
		if err := m.Run(ctx, speed); err != nil {
			return errors.Wrapf(err, "running motor %s at %v", m.Name(), speed)
		}
	}
	return nil
}

// stopBoth stops both motors even if the first fails.
func (l *Loop) stopBoth(ctx context.Context) error {
	var err error
	for _, m := range []motor.Motor{l.left, l.right} {
		err = multierr.Combine(err, errors.Wrapf(m.Stop(ctx), "stopping motor %s", m.Name()))
	}
	return err
}

// wait blocks for d on the loop clock, or until ctx is done.
func (l *Loop) wait(ctx context.Context, d time.Duration) error {
	timer := l.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
