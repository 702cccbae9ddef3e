// Package pwm implements a motor driven through an H-bridge by a direction line and a PWM line.
package pwm

import (
	"context"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"

	"github.com/hubrobotics/avoider/components/board"
	"github.com/hubrobotics/avoider/components/motor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
	"github.com/hubrobotics/avoider/registry"
)

// ModelName is the config model of the PWM motor.
const ModelName = "pwm"

const (
	defaultMaxSpeed  = 1000
	defaultPWMFreqHz = 1000
)

// Config describes the configuration of a PWM motor.
type Config struct {
	PWMPin    string  `json:"pwm_pin"`
	DirPin    string  `json:"dir_pin"`
	MaxSpeed  float64 `json:"max_speed,omitempty"`
	PWMFreqHz uint    `json:"pwm_freq_hz,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.PWMPin == "" {
		return config.NewFieldRequiredError(path, "pwm_pin")
	}
	if cfg.DirPin == "" {
		return config.NewFieldRequiredError(path, "dir_pin")
	}
	if cfg.MaxSpeed < 0 {
		return errors.Errorf("%s: max_speed cannot be negative", path)
	}
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
		pwmPin, err := board.GPIOPinByName(mcfg.PWMPin, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "motor %s", conf.Name)
		}
		dirPin, err := board.GPIOPinByName(mcfg.DirPin, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "motor %s", conf.Name)
		}
		return newMotor(conf.Name, *mcfg, conf.Direction.Flipped(), pwmPin, dirPin, logger)
	})
}

// Motor drives an H-bridge: the direction line picks the rotation and the duty cycle of the PWM
// line sets the power as a fraction of MaxSpeed.
type Motor struct {
	name      string
	mu        sync.Mutex
	pwmPin    gpio.PinOut
	dirPin    gpio.PinOut
	dirFlip   bool
	maxSpeed  float64
	pwmFreqHz uint
	duty      float64
	closed    bool
	logger    logging.Logger
}

var _ motor.Motor = &Motor{}

func newMotor(name string, cfg Config, dirFlip bool, pwmPin, dirPin gpio.PinOut, logger logging.Logger) (*Motor, error) {
	m := &Motor{
		name:      name,
		pwmPin:    pwmPin,
		dirPin:    dirPin,
		dirFlip:   dirFlip,
		maxSpeed:  cfg.MaxSpeed,
		pwmFreqHz: cfg.PWMFreqHz,
		logger:    logger,
	}
	if m.maxSpeed == 0 {
		m.maxSpeed = defaultMaxSpeed
	}
	if m.pwmFreqHz == 0 {
		m.pwmFreqHz = defaultPWMFreqHz
	}
	if err := m.dirPin.Out(gpio.Low); err != nil {
		return nil, errors.Wrapf(err, "motor %s: cannot set direction pin low", name)
	}
	if err := board.SetPWM(m.pwmPin, 0, m.pwmFreqHz); err != nil {
		return nil, errors.Wrapf(err, "motor %s", name)
	}
	return m, nil
}

// Name returns the configured name of the motor.
func (m *Motor) Name() string {
	return m.name
}

// Run sets the direction line from the sign of the setpoint and the duty cycle from its magnitude.
func (m *Motor) Run(ctx context.Context, speed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return motor.NewClosedError(m.name)
	}
	warning, err := motor.CheckSpeed(speed, m.maxSpeed)
	if err != nil {
		return err
	}
	if warning != "" {
		m.logger.Warn(warning)
		speed = motor.ClampSpeed(speed, m.maxSpeed)
	}

	wheel := motor.ApplyDirection(speed, m.dirFlip)
	level := gpio.High
	if motor.GetSign(wheel) < 0 {
		level = gpio.Low
	}
	if err := m.dirPin.Out(level); err != nil {
		return errors.Wrapf(err, "motor %s: setting direction", m.name)
	}
	duty := math.Abs(wheel) / m.maxSpeed
	if err := board.SetPWM(m.pwmPin, duty, m.pwmFreqHz); err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}
	m.logger.Debugw("motor running", "speed", speed, "duty", duty, "forward", bool(level))
	m.duty = duty
	return nil
}

// Stop drops the duty cycle to zero.
func (m *Motor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return motor.NewClosedError(m.name)
	}
	return m.stop()
}

func (m *Motor) stop() error {
	if err := board.SetPWM(m.pwmPin, 0, m.pwmFreqHz); err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}
	m.duty = 0
	return nil
}

// IsMoving returns whether the PWM line is driving the motor.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty > 0, nil
}

// Close stops the motor and releases both lines.
func (m *Motor) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return multierr.Combine(
		m.stop(),
		errors.Wrapf(m.pwmPin.Halt(), "motor %s: halting pwm pin", m.name),
		errors.Wrapf(m.dirPin.Halt(), "motor %s: halting direction pin", m.name),
	)
}
