package hardware

import "context"

// Sensor reads the cooling zone temperature. Implementations must honour ctx
// so a stuck bus cannot stall the control loop past its deadline.
type Sensor interface {
	ReadTemperature(ctx context.Context) (Temperature, error)
}

// Actuator drives the cooling element. TurnOn and TurnOff are idempotent.
// The duty value is set once at startup and is independent of on/off.
type Actuator interface {
	TurnOn() error
	TurnOff() error
	SetDuty(duty Duty) error
	GetDuty() Duty
	IsOn() bool
}

// Domain types for type safety and validation
type (
	// Temperature in degrees Celsius.
	Temperature float64

	// Duty is the actuator drive strength in percent.
	Duty int

	DutyLimits struct {
		Min, Max Duty
	}
)

// DefaultDutyLimits covers the whole percentage range.
var DefaultDutyLimits = DutyLimits{Min: 0, Max: 100}

// Contains reports whether d lies within the limits.
func (l DutyLimits) Contains(d Duty) bool {
	return d >= l.Min && d <= l.Max
}
