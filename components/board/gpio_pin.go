// Package board gives devices access to the hub's GPIO lines through periph.io.
package board

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/hubrobotics/avoider/logging"
)

var hostInitOnce sync.Once

// initHost loads the periph host drivers once per process and logs the outcome once, through the
// logger of the first device to ask. A failure is not returned, since pins registered by other
// means (tests, out of tree drivers) remain usable.
func initHost(logger logging.Logger) {
	hostInitOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			logger.Warnw("periph host init failed", "error", err)
			return
		}
		for _, failure := range state.Failed {
			logger.Debugw("periph driver failed to load", "driver", failure.D.String(), "error", failure.Err)
		}
	})
}

// GPIOPinByName returns the named GPIO line, e.g. "GPIO12".
func GPIOPinByName(name string, logger logging.Logger) (gpio.PinIO, error) {
	if name == "" {
		return nil, errors.New("no pin name given")
	}
	initHost(logger)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no gpio pin named %q on this host", name)
	}
	return pin, nil
}

// SetPWM drives the pin at the given duty cycle, between 0 and 1, and frequency.
func SetPWM(pin gpio.PinOut, dutyCyclePct float64, freqHz uint) error {
	if dutyCyclePct < 0 || dutyCyclePct > 1 {
		return errors.Errorf("duty cycle %v out of range [0, 1]", dutyCyclePct)
	}
	duty := gpio.Duty(dutyCyclePct * float64(gpio.DutyMax))
	frequency := physic.Frequency(freqHz) * physic.Hertz
	return errors.Wrapf(pin.PWM(duty, frequency), "setting pwm on pin %s", pin.Name())
}

// DutyCyclePct converts a periph duty to a fraction between 0 and 1.
func DutyCyclePct(duty gpio.Duty) float64 {
	return float64(duty) / float64(gpio.DutyMax)
}
