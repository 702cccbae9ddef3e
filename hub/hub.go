// Package hub assembles the two drive motors and the distance sensor described by a config.
package hub

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/hubrobotics/avoider/components/motor"
	"github.com/hubrobotics/avoider/components/sensor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
	"github.com/hubrobotics/avoider/registry"
)

// A Hub owns the devices plugged into its ports.
type Hub struct {
	left   motor.Motor
	right  motor.Motor
	sensor sensor.DistanceSensor
	logger logging.Logger
}

// New builds the motors in config order, the first being the left one, and then the distance
// sensor, which may look the motors up by name. If any device fails to build, the ones already
// built are closed.
func New(ctx context.Context, cfg *config.Config, clk clock.Clock, logger logging.Logger) (_ *Hub, err error) {
	if len(cfg.Motors) != 2 {
		return nil, errors.Errorf("a hub drives exactly 2 motors, got %d", len(cfg.Motors))
	}

	var built []closer
	defer func() {
		if err != nil {
			for i := len(built) - 1; i >= 0; i-- {
				err = multierr.Combine(err, built[i].Close(context.Background()))
			}
		}
	}()

	deps := registry.Dependencies{}
	motors := make([]motor.Motor, 0, len(cfg.Motors))
	for _, conf := range cfg.Motors {
		m, err := newMotor(ctx, conf, clk, logger)
		if err != nil {
			return nil, err
		}
		built = append(built, m)
		motors = append(motors, m)
		deps[conf.Name] = m
	}

	s, err := newDistanceSensor(ctx, deps, cfg.DistanceSensor, clk, logger)
	if err != nil {
		return nil, err
	}

	logger.Infow("hub ready",
		"left", cfg.Motors[0].Name+"@"+string(cfg.Motors[0].Port),
		"right", cfg.Motors[1].Name+"@"+string(cfg.Motors[1].Port),
		"distance_sensor", cfg.DistanceSensor.Name+"@"+string(cfg.DistanceSensor.Port),
	)
	return &Hub{left: motors[0], right: motors[1], sensor: s, logger: logger}, nil
}

type closer interface {
	Close(ctx context.Context) error
}

func newMotor(ctx context.Context, conf config.Component, clk clock.Clock, logger logging.Logger) (motor.Motor, error) {
	create := registry.MotorLookup(conf.Model)
	if create == nil {
		return nil, errors.Errorf("unknown motor model %q for motor %s", conf.Model, conf.Name)
	}
	m, err := create(ctx, conf, clk, logger.Sublogger(conf.Name))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build motor %s on port %s", conf.Name, conf.Port)
	}
	return m, nil
}

func newDistanceSensor(
	ctx context.Context,
	deps registry.Dependencies,
	conf config.Component,
	clk clock.Clock,
	logger logging.Logger,
) (sensor.DistanceSensor, error) {
	create := registry.DistanceSensorLookup(conf.Model)
	if create == nil {
		return nil, errors.Errorf("unknown distance sensor model %q for sensor %s", conf.Model, conf.Name)
	}
	s, err := create(ctx, deps, conf, clk, logger.Sublogger(conf.Name))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build distance sensor %s on port %s", conf.Name, conf.Port)
	}
	return s, nil
}

// Left returns the motor driving the left wheel.
func (h *Hub) Left() motor.Motor {
	return h.left
}

// Right returns the motor driving the right wheel.
func (h *Hub) Right() motor.Motor {
	return h.right
}

// Sensor returns the forward facing distance sensor.
func (h *Hub) Sensor() sensor.DistanceSensor {
	return h.sensor
}

// Close closes the sensor and both motors, returning every error encountered.
func (h *Hub) Close(ctx context.Context) error {
	h.logger.Debug("closing hub")
	return multierr.Combine(
		h.sensor.Close(ctx),
		h.left.Close(ctx),
		h.right.Close(ctx),
	)
}
