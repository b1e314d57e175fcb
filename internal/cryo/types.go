package cryo

import (
	"strconv"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/hardware"
)

const (
	DefaultInterval        = 10 * time.Millisecond
	DefaultPublishInterval = time.Second
	DefaultSensorTimeout   = time.Second
	DefaultSetting         = 30
	DefaultDuty            = hardware.Duty(100)
)

// DefaultLimits bound the operator setpoint in degrees Celsius.
var DefaultLimits = Limits{Min: 0, Max: 50}

// Reading is one temperature sample. It is never modified after the loop
// publishes it.
type Reading struct {
	Value     hardware.Temperature
	Timestamp time.Time
}

// IsZero reports whether no sample has been taken yet.
func (r Reading) IsZero() bool {
	return r.Timestamp.IsZero()
}

// Limits is the inclusive range a setpoint must fall within.
type Limits struct {
	Min, Max int
}

// Validate returns a setting_out_of_range error when v falls outside l.
func (l Limits) Validate(v int) error {
	if v < l.Min || v > l.Max {
		return errors.New().WithData(errors.ErrSettingOutOfRange, struct {
			Value int
			Min   int
			Max   int
		}{v, l.Min, l.Max})
	}

	return nil
}

func (l Limits) String() string {
	return "[" + strconv.Itoa(l.Min) + ", " + strconv.Itoa(l.Max) + "]"
}

// coolingState is swapped as a whole so the flag and its timestamps are
// always observed together.
type coolingState struct {
	active        bool
	activatedAt   time.Time
	deactivatedAt time.Time
}

// duration is the time spent in the current state, or the length of the
// last active period while inactive.
func (s *coolingState) duration(now time.Time) time.Duration {
	if s.active {
		return now.Sub(s.activatedAt)
	}

	return s.deactivatedAt.Sub(s.activatedAt)
}

// Status is a point-in-time view of the controller for observers and
// command surfaces. Fields are read individually, so a Status is not a
// cross-field transaction.
type Status struct {
	Timestamp      time.Time
	Reading        Reading
	Setting        int
	Limits         Limits
	PowerEnabled   bool
	CoolingActive  bool
	ActivatedAt    time.Time
	DeactivatedAt  time.Time
	ActiveDuration time.Duration
	Duty           hardware.Duty
	ActuatorOn     bool
	SensorFaults   uint64
}

// Observer receives status snapshots from the controller. Observe runs on the
// dispatcher goroutine, never on the control loop.
type Observer interface {
	Observe(status Status)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Status)

func (f ObserverFunc) Observe(status Status) {
	f(status)
}
