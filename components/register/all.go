// Package register registers all device models
package register

import (
	// register motors.
	_ "github.com/hubrobotics/avoider/components/motor/fake"
	_ "github.com/hubrobotics/avoider/components/motor/pwm"
	// register distance sensors.
	_ "github.com/hubrobotics/avoider/components/sensor/fake"
	_ "github.com/hubrobotics/avoider/components/sensor/ultrasonic"
)
