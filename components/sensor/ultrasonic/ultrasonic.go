// Package ultrasonic implements an ultrasonic ranger with a trigger line and an echo line, such as
// the HC-SR04.
package ultrasonic

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"

	"github.com/hubrobotics/avoider/components/board"
	"github.com/hubrobotics/avoider/components/sensor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
	"github.com/hubrobotics/avoider/registry"
)

// ModelName is the config model of the ultrasonic sensor.
const ModelName = "ultrasonic"

const (
	defaultTimeoutMs = 1000
	triggerPulse     = 10 * time.Microsecond
	edgeWaitSlice    = 20 * time.Millisecond
	// speed of sound in air, in millimetres per second
	speedOfSoundMMPerSec = 343000.0
)

// Config is used for converting config attributes.
type Config struct {
	TriggerPin string `json:"trigger_pin"`
	EchoPin    string `json:"echo_pin"`
	TimeoutMs  uint   `json:"timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.TriggerPin == "" {
		return config.NewFieldRequiredError(path, "trigger_pin")
	}
	if cfg.EchoPin == "" {
		return config.NewFieldRequiredError(path, "echo_pin")
	}
	return nil
}

func init() {
	registry.RegisterDistanceSensor(ModelName, func(
		ctx context.Context,
		deps registry.Dependencies,
		conf config.Component,
		clk clock.Clock,
		logger logging.Logger,
	) (sensor.DistanceSensor, error) {
		scfg, err := config.ConvertAttributes[Config](conf, "distance_sensor")
		if err != nil {
			return nil, err
		}
		trigger, err := board.GPIOPinByName(scfg.TriggerPin, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "ultrasonic: cannot grab trigger pin %q", scfg.TriggerPin)
		}
		echo, err := board.GPIOPinByName(scfg.EchoPin, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "ultrasonic: cannot grab echo pin %q", scfg.EchoPin)
		}
		return newSensor(conf.Name, *scfg, trigger, echo, clk, logger)
	})
}

// Sensor ultrasonic sensor.
type Sensor struct {
	mu      sync.Mutex
	name    string
	trigger gpio.PinOut
	echo    gpio.PinIn
	timeout time.Duration
	clock   clock.Clock
	logger  logging.Logger
	closed  bool
}

var _ sensor.DistanceSensor = &Sensor{}

func newSensor(
	name string,
	cfg Config,
	trigger gpio.PinOut,
	echo gpio.PinIn,
	clk clock.Clock,
	logger logging.Logger,
) (*Sensor, error) {
	logger.Debugw("building ultrasonic sensor", "name", name)
	s := &Sensor{
		name:    name,
		trigger: trigger,
		echo:    echo,
		timeout: defaultTimeoutMs * time.Millisecond,
		clock:   clk,
		logger:  logger,
	}
	if cfg.TimeoutMs > 0 {
		s.timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	if err := s.trigger.Out(gpio.Low); err != nil {
		return nil, s.namedError(errors.Wrap(err, "cannot set trigger pin to low"))
	}
	if err := s.echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, s.namedError(errors.Wrap(err, "cannot watch echo pin edges"))
	}
	return s, nil
}

func (s *Sensor) namedError(err error) error {
	return errors.Wrapf(err, "error in ultrasonic sensor with name %s", s.name)
}

// Name returns the configured name of the sensor.
func (s *Sensor) Name() string {
	return s.name
}

// Distance fires one ping and returns the distance to the nearest object in millimetres.
func (s *Sensor) Distance(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, sensor.NewClosedError(s.name)
	}
	if err := ctx.Err(); err != nil {
		return 0, s.namedError(err)
	}

	// a high pulse of 10 microseconds on the trigger pin asks the
	// sensor to send the sonic burst
	if err := s.trigger.Out(gpio.High); err != nil {
		return 0, s.namedError(errors.Wrap(err, "cannot set trigger pin to high"))
	}
	time.Sleep(triggerPulse)
	if err := s.trigger.Out(gpio.Low); err != nil {
		return 0, s.namedError(errors.Wrap(err, "cannot set trigger pin to low"))
	}

	// the echo line goes high when the burst leaves and low when its echo comes back
	if ok, err := s.waitForEdge(ctx); err != nil {
		return 0, s.namedError(err)
	} else if !ok {
		return 0, s.namedError(errors.New("timed out waiting for signal that sound pulse was emitted"))
	}
	sent := s.clock.Now()
	if ok, err := s.waitForEdge(ctx); err != nil {
		return 0, s.namedError(err)
	} else if !ok {
		return 0, s.namedError(errors.New("timed out waiting for signal that echo was received"))
	}
	received := s.clock.Now()

	dist := pulseToMillimetres(received.Sub(sent))
	s.logger.Debugw("ultrasonic reading", "mm", dist)
	return dist, nil
}

// waitForEdge waits up to the timeout for the next echo edge. periph cannot cancel a wait, so it
// waits in slices of edgeWaitSlice and gives up early once ctx is done.
func (s *Sensor) waitForEdge(ctx context.Context) (bool, error) {
	for remaining := s.timeout; remaining > 0; remaining -= edgeWaitSlice {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if s.echo.WaitForEdge(min(remaining, edgeWaitSlice)) {
			return true, nil
		}
	}
	return false, nil
}

// pulseToMillimetres converts the width of an echo pulse, which covers the way to the obstacle and
// back, into the one-way distance.
func pulseToMillimetres(width time.Duration) int {
	if width <= 0 {
		return 0
	}
	return int(math.Round(width.Seconds() * speedOfSoundMMPerSec / 2))
}

// Close stops watching the echo line and releases both pins.
func (s *Sensor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return multierr.Combine(
		s.namedError(errors.Wrap(s.echo.Halt(), "halting echo pin")),
		s.namedError(errors.Wrap(s.trigger.Halt(), "halting trigger pin")),
	)
}
