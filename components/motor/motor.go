// Package motor defines machines that convert electricity into rotary motion.
package motor

import (
	"context"
	"fmt"
	"math"
)

// A Motor represents a physical motor plugged into a hub port.
//
// Run example:
//
//	// Spin forward at the configured setpoint until told otherwise.
//	err := myMotor.Run(ctx, 360)
//
// Stop example:
//
//	err := myMotor.Stop(ctx)
type Motor interface {
	// Name is the configured name of the motor.
	Name() string

	// Run starts the motor at the given signed speed setpoint and returns immediately. The motor
	// keeps running at that setpoint until the next Run or Stop. Negative setpoints run backwards.
	Run(ctx context.Context, speed float64) error

	// Stop cuts power to the motor.
	Stop(ctx context.Context) error

	// IsMoving returns whether the motor is currently powered.
	IsMoving(ctx context.Context) (bool, error)

	// Close stops the motor and releases the hardware behind it.
	Close(ctx context.Context) error
}

// CheckSpeed checks if the input speed is too slow or fast and returns a warning and/or error.
func CheckSpeed(speed, max float64) (string, error) {
	switch abs := math.Abs(speed); {
	case abs < 0.1:
		return "motor speed is nearly 0", NewZeroSpeedError()
	case max > 0 && abs > max:
		return fmt.Sprintf("motor speed %v exceeds the max speed (%v), clamping", speed, max), nil
	default:
		return "", nil
	}
}

// ClampSpeed limits the speed to [-max, max].
func ClampSpeed(speed, max float64) float64 {
	speed = math.Min(speed, max)
	speed = math.Max(speed, -max)
	return speed
}

// GetSign returns the sign of the float as a helper for getting
// the intended direction of travel of a motor.
func GetSign(x float64) float64 {
	if x == 0 {
		return 0
	}
	if math.Signbit(x) {
		return -1.0
	}
	return 1.0
}

// ApplyDirection negates the setpoint for motors whose positive direction is flipped.
func ApplyDirection(speed float64, flipped bool) float64 {
	if flipped {
		return -speed
	}
	return speed
}
