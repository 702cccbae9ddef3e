// Package fake implements a fake distance sensor.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	fakemotor "github.com/hubrobotics/avoider/components/motor/fake"
	"github.com/hubrobotics/avoider/components/sensor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
	"github.com/hubrobotics/avoider/registry"
)

// ModelName is the config model of the fake distance sensor.
const ModelName = "fake"

const defaultMMPerSpeedSecond = 0.5

// Config describes the configuration of a fake distance sensor. Exactly one of Readings and
// Simulated is set.
type Config struct {
	Readings  []int            `json:"readings,omitempty"`
	Simulated *SimulatedConfig `json:"simulated,omitempty"`
}

// SimulatedConfig describes a wall in front of the hub that gets closer as the named fake motors
// drive forward.
type SimulatedConfig struct {
	StartMM          int      `json:"start_mm"`
	MMPerSpeedSecond float64  `json:"mm_per_speed_second,omitempty"`
	Motors           []string `json:"motors"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	switch {
	case len(cfg.Readings) == 0 && cfg.Simulated == nil:
		return config.NewFieldRequiredError(path, "readings")
	case len(cfg.Readings) != 0 && cfg.Simulated != nil:
		return errors.Errorf("%s: readings and simulated cannot both be set", path)
	}
	for i, reading := range cfg.Readings {
		if reading < 0 {
			return errors.Errorf("%s.readings.%d: distance cannot be negative", path, i)
		}
	}
	if sim := cfg.Simulated; sim != nil {
		if sim.StartMM <= 0 {
			return config.NewFieldRequiredError(path+".simulated", "start_mm")
		}
		if len(sim.Motors) == 0 {
			return config.NewFieldRequiredError(path+".simulated", "motors")
		}
		if sim.MMPerSpeedSecond < 0 {
			return errors.Errorf("%s.simulated: mm_per_speed_second cannot be negative", path)
		}
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
		if scfg.Simulated == nil {
			return NewScriptedSensor(conf.Name, scfg.Readings, logger), nil
		}
		motors := make([]CommandLog, 0, len(scfg.Simulated.Motors))
		for _, name := range scfg.Simulated.Motors {
			m, err := deps.Motor(name)
			if err != nil {
				return nil, errors.Wrapf(err, "distance sensor %s", conf.Name)
			}
			log, ok := m.(CommandLog)
			if !ok {
				return nil, errors.Errorf("distance sensor %s: motor %q is not a fake motor", conf.Name, name)
			}
			motors = append(motors, log)
		}
		return NewSimulatedSensor(conf.Name, *scfg.Simulated, motors, clk, logger), nil
	})
}

// A CommandLog is a motor that remembers what it was told to do, such as a fake motor.
type CommandLog interface {
	Commands() []fakemotor.Command
}

var _ sensor.DistanceSensor = &Sensor{}

// Sensor is a fake distance sensor. It either replays a list of readings or simulates a wall.
type Sensor struct {
	name   string
	mu     sync.Mutex
	logger logging.Logger
	closed bool
	err    error
	reads  int

	readings []int

	sim    *SimulatedConfig
	motors []CommandLog
	clock  clock.Clock
	start  time.Time
}

// NewScriptedSensor returns a sensor that replays readings in order, starting over after the last.
func NewScriptedSensor(name string, readings []int, logger logging.Logger) *Sensor {
	return &Sensor{name: name, readings: append([]int(nil), readings...), logger: logger}
}

// NewSimulatedSensor returns a sensor reading the distance to a wall start_mm ahead when it was
// created. Each second, the wall approaches by the average commanded speed of the motors times
// mm_per_speed_second. Reversing moves it away again.
func NewSimulatedSensor(
	name string,
	cfg SimulatedConfig,
	motors []CommandLog,
	clk clock.Clock,
	logger logging.Logger,
) *Sensor {
	if cfg.MMPerSpeedSecond == 0 {
		cfg.MMPerSpeedSecond = defaultMMPerSpeedSecond
	}
	return &Sensor{
		name:   name,
		sim:    &cfg,
		motors: motors,
		clock:  clk,
		start:  clk.Now(),
		logger: logger,
	}
}

// Name returns the configured name of the sensor.
func (s *Sensor) Name() string {
	return s.name
}

// InjectError makes every following reading fail with err. A nil err clears it.
func (s *Sensor) InjectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Distance returns the next scripted reading or the current distance to the simulated wall.
func (s *Sensor) Distance(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, sensor.NewClosedError(s.name)
	}
	if s.err != nil {
		return 0, s.err
	}

	var distance int
	switch {
	case s.sim != nil:
		distance = s.simulatedDistance()
	case len(s.readings) == 0:
		return 0, errors.Errorf("distance sensor %s has no readings", s.name)
	default:
		distance = s.readings[s.reads%len(s.readings)]
	}
	s.reads++
	s.logger.Debugw("distance read", "mm", distance)
	return distance, nil
}

func (s *Sensor) simulatedDistance() int {
	now := s.clock.Now()
	var travelled float64
	for _, m := range s.motors {
		travelled += integrateSpeed(m.Commands(), s.start, now)
	}
	if len(s.motors) > 0 {
		travelled /= float64(len(s.motors))
	}
	distance := float64(s.sim.StartMM) - travelled*s.sim.MMPerSpeedSecond
	return int(math.Max(0, math.Round(distance)))
}

// integrateSpeed returns the integral over [from, to] of the commanded speed, in speed-seconds.
func integrateSpeed(commands []fakemotor.Command, from, to time.Time) float64 {
	var (
		total float64
		speed float64
		since = from
	)
	for _, cmd := range commands {
		at := cmd.At
		if at.After(to) {
			break
		}
		if at.After(since) {
			total += speed * at.Sub(since).Seconds()
			since = at
		}
		switch cmd.Kind {
		case fakemotor.CommandRun:
			speed = cmd.Speed
		case fakemotor.CommandStop:
			speed = 0
		}
	}
	if to.After(since) {
		total += speed * to.Sub(since).Seconds()
	}
	return total
}

// Reads returns how many readings were taken.
func (s *Sensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close marks the sensor closed. Readings after Close fail.
func (s *Sensor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
