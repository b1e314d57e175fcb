package hardware

import (
	"sync"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmCycleLength is the number of clock ticks per PWM period, so a duty in
// percent maps directly onto the duty length.
const pwmCycleLength = 100

type PWMConfig struct {
	Pin        int
	Frequency  int
	NormallyOn bool
}

// PWMActuator drives the cooling element from a hardware PWM pin.
type PWMActuator struct {
	cfg    PWMConfig
	pin    rpio.Pin
	limits DutyLimits
	duty   Duty
	on     bool
	closed bool
	mu     sync.RWMutex
	logger logger.Logger
}

// NewPWMActuator opens the GPIO memory range and configures the pin for PWM,
// leaving the output off.
func NewPWMActuator(cfg PWMConfig) (*PWMActuator, error) {
	errFactory := errors.New()

	if err := rpio.Open(); err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	a := &PWMActuator{
		cfg:    cfg,
		pin:    rpio.Pin(cfg.Pin),
		limits: DefaultDutyLimits,
		logger: logger.Component("pwm"),
	}

	a.pin.Mode(rpio.Pwm)
	a.pin.Freq(cfg.Frequency * pwmCycleLength)
	rpio.StartPwm()
	a.write(0)

	a.logger.Info().
		Int("pin", cfg.Pin).
		Int("frequency_hz", cfg.Frequency).
		Bool("normally_on", cfg.NormallyOn).
		Msg("PWM actuator initialized")

	return a, nil
}

// write sets the raw drive level in percent, inverting it for normally-on
// wiring where a low pin means the element runs.
func (a *PWMActuator) write(level Duty) {
	if a.cfg.NormallyOn {
		level = a.limits.Max - level
	}
	a.pin.DutyCycle(uint32(level), pwmCycleLength)
}

func (a *PWMActuator) TurnOn() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New().New(ErrActuatorClosed)
	}
	if !a.on {
		a.logger.Debug().Int("duty", int(a.duty)).Msg("Cooling element on")
	}
	a.write(a.duty)
	a.on = true

	return nil
}

func (a *PWMActuator) TurnOff() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New().New(ErrActuatorClosed)
	}
	if a.on {
		a.logger.Debug().Msg("Cooling element off")
	}
	a.write(0)
	a.on = false

	return nil
}

func (a *PWMActuator) SetDuty(duty Duty) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.limits.Contains(duty) {
		return errors.New().WithData(ErrDutyOutOfRange, duty)
	}
	a.duty = duty
	if a.on && !a.closed {
		a.write(duty)
	}

	return nil
}

func (a *PWMActuator) GetDuty() Duty {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.duty
}

func (a *PWMActuator) IsOn() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.on
}

// Close drives the pin off and releases the GPIO memory range.
func (a *PWMActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.write(0)
	a.on = false
	a.closed = true
	rpio.StopPwm()

	if err := rpio.Close(); err != nil {
		return errors.New().Wrap(ErrShutdownFailed, err)
	}

	return nil
}
