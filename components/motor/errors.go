package motor

import "github.com/pkg/errors"

// NewZeroSpeedError returns an error representing a request to run a motor at
// zero speed (i.e., moving the motor without moving the motor).
func NewZeroSpeedError() error {
	return errors.New("cannot run motor at a speed that is nearly 0, use Stop instead")
}

// NewClosedError returns an error for a command sent to a motor after Close.
func NewClosedError(motorName string) error {
	return errors.Errorf("motor with name %s is closed", motorName)
}
