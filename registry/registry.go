// Package registry maps device model names to the constructors that build them.
package registry

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/hubrobotics/avoider/components/motor"
	"github.com/hubrobotics/avoider/components/sensor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
)

type (
	// A CreateMotor creates a motor from a given config.
	CreateMotor func(
		ctx context.Context,
		conf config.Component,
		clk clock.Clock,
		logger logging.Logger,
	) (motor.Motor, error)

	// A CreateDistanceSensor creates a distance sensor from a given config. Motors already
	// built on the hub are passed as dependencies, keyed by name.
	CreateDistanceSensor func(
		ctx context.Context,
		deps Dependencies,
		conf config.Component,
		clk clock.Clock,
		logger logging.Logger,
	) (sensor.DistanceSensor, error)
)

// Dependencies are the motors a distance sensor may look up by name.
type Dependencies map[string]motor.Motor

// Motor returns the named motor or an error if it is not on the hub.
func (d Dependencies) Motor(name string) (motor.Motor, error) {
	m, ok := d[name]
	if !ok {
		return nil, errors.Errorf("motor %q missing from dependencies", name)
	}
	return m, nil
}

// all registries
var (
	motorRegistry          = map[string]CreateMotor{}
	distanceSensorRegistry = map[string]CreateDistanceSensor{}
)

// RegisterMotor registers a motor model to a creator.
func RegisterMotor(model string, creator CreateMotor) {
	_, old := motorRegistry[model]
	if old {
		panic(errors.Errorf("trying to register two motors with same model %s", model))
	}
	if creator == nil {
		panic(errors.Errorf("cannot register a nil constructor for motor model %s", model))
	}
	motorRegistry[model] = creator
}

// RegisterDistanceSensor registers a distance sensor model to a creator.
func RegisterDistanceSensor(model string, creator CreateDistanceSensor) {
	_, old := distanceSensorRegistry[model]
	if old {
		panic(errors.Errorf("trying to register two distance sensors with same model %s", model))
	}
	if creator == nil {
		panic(errors.Errorf("cannot register a nil constructor for distance sensor model %s", model))
	}
	distanceSensorRegistry[model] = creator
}

// MotorLookup looks up a motor creator by the given model. nil is returned if
// there is no creator registered.
func MotorLookup(model string) CreateMotor {
	return motorRegistry[model]
}

// DistanceSensorLookup looks up a distance sensor creator by the given model. nil is returned if
// there is no creator registered.
func DistanceSensorLookup(model string) CreateDistanceSensor {
	return distanceSensorRegistry[model]
}
