// Package sensor defines the distance sensing device the avoidance loop polls.
package sensor

import (
	"context"

	"github.com/pkg/errors"
)

// A DistanceSensor measures the distance to the nearest object in front of it.
type DistanceSensor interface {
	// Name is the configured name of the sensor.
	Name() string

	// Distance returns a fresh reading in millimetres. It blocks until the reading is taken.
	Distance(ctx context.Context) (int, error)

	// Close releases the hardware behind the sensor.
	Close(ctx context.Context) error
}

// NewClosedError returns an error for a reading requested after Close.
func NewClosedError(sensorName string) error {
	return errors.Errorf("distance sensor with name %s is closed", sensorName)
}
