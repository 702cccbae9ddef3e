// Package fake implements a fake motor.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hubrobotics/avoider/components/motor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
	"github.com/hubrobotics/avoider/registry"
)

// ModelName is the config model of the fake motor.
const ModelName = "fake"

// Config describes the configuration of a fake motor.
type Config struct {
	MaxSpeed float64 `json:"max_speed,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	return nil
}

func init() {
	registry.RegisterMotor(ModelName, func(
		ctx context.Context,
		conf config.Component,
		clk clock.Clock,
		logger logging.Logger,
	) (motor.Motor, error) {
		mcfg, err := config.ConvertAttributes[Config](conf, "motor "+conf.Name)
		if err != nil {
			return nil, err
		}
		m := NewMotor(conf.Name, conf.Direction.Flipped(), clk, logger)
		m.MaxSpeed = mcfg.MaxSpeed
		return m, nil
	})
}

// CommandKind distinguishes the commands a motor received.
type CommandKind string

// The commands a fake motor records.
const (
	CommandRun  = CommandKind("run")
	CommandStop = CommandKind("stop")
)

// A Command is one recorded call to the motor.
type Command struct {
	Kind CommandKind
	// Speed is the setpoint as given by the caller, before the positive direction is applied.
	Speed float64
	At    time.Time
}

var _ motor.Motor = &Motor{}

// A Motor records every command it receives and pretends to spin at the last setpoint.
type Motor struct {
	name     string
	mu       sync.Mutex
	speed    float64
	DirFlip  bool
	MaxSpeed float64
	clock    clock.Clock
	logger   logging.Logger
	commands []Command
	closed   bool
	err      error
}

// NewMotor returns a stopped fake motor.
func NewMotor(name string, dirFlip bool, clk clock.Clock, logger logging.Logger) *Motor {
	return &Motor{name: name, DirFlip: dirFlip, clock: clk, logger: logger}
}

// Name returns the configured name of the motor.
func (m *Motor) Name() string {
	return m.name
}

// InjectError makes every following command fail with err. A nil err clears it.
func (m *Motor) InjectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Run records the setpoint and pretends to spin at it.
func (m *Motor) Run(ctx context.Context, speed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUsable(); err != nil {
		return err
	}
	warning, err := motor.CheckSpeed(speed, m.MaxSpeed)
	if err != nil {
		return err
	}
	if warning != "" {
		m.logger.Warn(warning)
		speed = motor.ClampSpeed(speed, m.MaxSpeed)
	}

	m.logger.Debugf("Motor Run %f", speed)
	m.speed = speed
	m.commands = append(m.commands, Command{Kind: CommandRun, Speed: speed, At: m.clock.Now()})
	return nil
}

// Stop has the motor pretend to be off.
func (m *Motor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUsable(); err != nil {
		return err
	}
	m.logger.Debug("Motor Stopped")
	m.speed = 0
	m.commands = append(m.commands, Command{Kind: CommandStop, At: m.clock.Now()})
	return nil
}

// IsMoving returns if the motor is pretending to be moving or not.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return math.Abs(m.speed) >= 0.005, nil
}

// Close stops the motor. Commands after Close fail.
func (m *Motor) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = 0
	m.closed = true
	return nil
}

func (m *Motor) checkUsable() error {
	if m.closed {
		return motor.NewClosedError(m.name)
	}
	return m.err
}

// Speed returns the current setpoint as commanded, zero when stopped.
func (m *Motor) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// WheelSpeed returns the setpoint after the positive direction is applied, which is what the
// wheel actually does.
func (m *Motor) WheelSpeed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return motor.ApplyDirection(m.speed, m.DirFlip)
}

// Commands returns a copy of every command recorded so far.
func (m *Motor) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.commands...)
}
