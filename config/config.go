// Package config defines the structures to configure the hub, its devices and the avoidance loop.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hubrobotics/avoider/logging"
)

// Port identifies the connector on the hub a device is plugged into.
type Port string

// The ports of the hub.
const (
	PortA = Port("A")
	PortB = Port("B")
	PortC = Port("C")
	PortD = Port("D")
	PortE = Port("E")
	PortF = Port("F")
)

// Valid returns whether the port names a connector the hub has.
func (p Port) Valid() bool {
	switch p {
	case PortA, PortB, PortC, PortD, PortE, PortF:
		return true
	}
	return false
}

// Direction is the rotation sense a motor treats as positive.
type Direction string

const (
	// Clockwise motors pass setpoints through unchanged.
	Clockwise = Direction("clockwise")
	// CounterClockwise motors negate every setpoint they receive.
	CounterClockwise = Direction("counterclockwise")
)

// Flipped reports whether setpoints must be negated for this direction.
func (d Direction) Flipped() bool {
	return d == CounterClockwise
}

// Component describes one device attached to the hub.
type Component struct {
	Name       string       `json:"name"`
	Port       Port         `json:"port"`
	Model      string       `json:"model"`
	Direction  Direction    `json:"positive_direction,omitempty"`
	Attributes AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures all parts of the component config are valid.
func (c *Component) Validate(path string) error {
	if c.Name == "" {
		return NewFieldRequiredError(path, "name")
	}
	if c.Port == "" {
		return NewFieldRequiredError(path, "port")
	}
	if !c.Port.Valid() {
		return errors.Errorf("%s: unknown port %q", path, c.Port)
	}
	if c.Model == "" {
		return NewFieldRequiredError(path, "model")
	}
	switch c.Direction {
	case "", Clockwise, CounterClockwise:
	default:
		return errors.Errorf("%s: positive_direction must be %q or %q, got %q",
			path, Clockwise, CounterClockwise, c.Direction)
	}
	return nil
}

// Avoidance holds the tunables of the obstacle avoidance loop.
type Avoidance struct {
	ThresholdMM int     `json:"threshold_mm"`
	Speed       float64 `json:"speed"`
	ReverseMS   int     `json:"reverse_ms"`
	PollMS      int     `json:"poll_ms"`
}

// Default avoidance tunables.
const (
	DefaultThresholdMM = 40
	DefaultSpeed       = 360
	DefaultReverseMS   = 1000
	DefaultPollMS      = 100
)

// ReverseDuration is how long the rig backs up once an obstacle is seen.
func (a Avoidance) ReverseDuration() time.Duration {
	return time.Duration(a.ReverseMS) * time.Millisecond
}

// PollPeriod is the wait after every iteration of the loop.
func (a Avoidance) PollPeriod() time.Duration {
	return time.Duration(a.PollMS) * time.Millisecond
}

func (a *Avoidance) applyDefaults() {
	if a.ThresholdMM == 0 {
		a.ThresholdMM = DefaultThresholdMM
	}
	if a.Speed == 0 {
		a.Speed = DefaultSpeed
	}
	if a.ReverseMS == 0 {
		a.ReverseMS = DefaultReverseMS
	}
	if a.PollMS == 0 {
		a.PollMS = DefaultPollMS
	}
}

// Validate ensures the tunables are usable.
func (a *Avoidance) Validate(path string) error {
	if a.ThresholdMM < 0 {
		return errors.Errorf("%s: threshold_mm must be positive, got %d", path, a.ThresholdMM)
	}
	if a.Speed < 0 {
		return errors.Errorf("%s: speed is a magnitude and must be positive, got %v", path, a.Speed)
	}
	if a.ReverseMS < 0 {
		return errors.Errorf("%s: reverse_ms must be positive, got %d", path, a.ReverseMS)
	}
	if a.PollMS < 0 {
		return errors.Errorf("%s: poll_ms must be positive, got %d", path, a.PollMS)
	}
	return nil
}

// Log configures the log level and an optional rotating log file.
type Log struct {
	Level      string `json:"level,omitempty"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// Validate ensures the level parses.
func (l *Log) Validate(path string) error {
	if l.Level == "" {
		return nil
	}
	if _, err := logging.LevelFromString(l.Level); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}

// Config describes the rig: two drive motors, one distance sensor and the loop tunables.
type Config struct {
	Motors         []Component `json:"motors"`
	DistanceSensor Component   `json:"distance_sensor"`
	Avoidance      Avoidance   `json:"avoidance"`
	Log            Log         `json:"log"`

	ConfigFilePath string `json:"-"`
}

// Ensure applies defaults and validates the whole config.
func (c *Config) Ensure() error {
	c.Avoidance.applyDefaults()

	if len(c.Motors) != 2 {
		return errors.Errorf("motors: expected exactly 2 motors, got %d", len(c.Motors))
	}

	names := make(map[string]string)
	ports := make(map[Port]string)
	claim := func(path string, comp *Component) error {
		if other, ok := names[comp.Name]; ok {
			return errors.Errorf("%s: name %q already used by %s", path, comp.Name, other)
		}
		if other, ok := ports[comp.Port]; ok {
			return errors.Errorf("%s: port %s already used by %s", path, comp.Port, other)
		}
		names[comp.Name] = path
		ports[comp.Port] = path
		return nil
	}

	for idx := 0; idx < len(c.Motors); idx++ {
		path := fmt.Sprintf("%s.%d", "motors", idx)
		if err := c.Motors[idx].Validate(path); err != nil {
			return err
		}
		if err := claim(path, &c.Motors[idx]); err != nil {
			return err
		}
	}

	if err := c.DistanceSensor.Validate("distance_sensor"); err != nil {
		return err
	}
	if c.DistanceSensor.Direction != "" {
		return errors.New("distance_sensor: positive_direction only applies to motors")
	}
	if err := claim("distance_sensor", &c.DistanceSensor); err != nil {
		return err
	}

	if err := c.Avoidance.Validate("avoidance"); err != nil {
		return err
	}
	return c.Log.Validate("log")
}

// String renders a one-line summary of the rig.
func (c *Config) String() string {
	parts := make([]string, 0, len(c.Motors)+1)
	for _, m := range c.Motors {
		dir := m.Direction
		if dir == "" {
			dir = Clockwise
		}
		parts = append(parts, fmt.Sprintf("motor %s on %s (%s, %s)", m.Name, m.Port, m.Model, dir))
	}
	parts = append(parts, fmt.Sprintf("sensor %s on %s (%s)",
		c.DistanceSensor.Name, c.DistanceSensor.Port, c.DistanceSensor.Model))
	return fmt.Sprintf("%s; threshold %dmm speed %v reverse %v poll %v",
		strings.Join(parts, ", "),
		c.Avoidance.ThresholdMM, c.Avoidance.Speed, c.Avoidance.ReverseDuration(), c.Avoidance.PollPeriod())
}
