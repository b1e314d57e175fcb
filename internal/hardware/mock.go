package hardware

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/cryoctl/internal/errors"
)

// MockSensor returns a settable temperature. It stands in for the probe when
// no hardware is configured and in tests.
type MockSensor struct {
	bits  atomic.Uint64
	mu    sync.Mutex
	err   error
	reads atomic.Int64
}

func NewMockSensor(initial Temperature) *MockSensor {
	s := &MockSensor{}
	s.Set(initial)

	return s
}

// Set changes the temperature returned by subsequent reads.
func (s *MockSensor) Set(t Temperature) {
	s.bits.Store(math.Float64bits(float64(t)))
}

// Fail makes subsequent reads return err; nil restores normal reads.
func (s *MockSensor) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Reads returns the number of ReadTemperature calls.
func (s *MockSensor) Reads() int64 {
	return s.reads.Load()
}

func (s *MockSensor) ReadTemperature(ctx context.Context) (Temperature, error) {
	s.reads.Add(1)

	if err := ctx.Err(); err != nil {
		return 0, errors.New().Wrap(ErrSensorTimeout, err)
	}

	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return 0, errors.New().Wrap(ErrTemperatureReadFailed, err)
	}

	return Temperature(math.Float64frombits(s.bits.Load())), nil
}

// MockActuator records the on/off state and duty it is driven to.
type MockActuator struct {
	mu       sync.RWMutex
	on       bool
	duty     Duty
	err      error
	onCalls  int
	offCalls int
}

func NewMockActuator() *MockActuator {
	return &MockActuator{}
}

// Fail makes subsequent TurnOn and TurnOff calls return err without changing
// state; nil restores normal operation.
func (a *MockActuator) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *MockActuator) TurnOn() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.onCalls++
	if a.err != nil {
		return errors.New().Wrap(ErrActuatorFailed, a.err)
	}
	a.on = true

	return nil
}

func (a *MockActuator) TurnOff() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.offCalls++
	if a.err != nil {
		return errors.New().Wrap(ErrActuatorFailed, a.err)
	}
	a.on = false

	return nil
}

func (a *MockActuator) SetDuty(duty Duty) error {
	if !DefaultDutyLimits.Contains(duty) {
		return errors.New().WithData(ErrDutyOutOfRange, duty)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.duty = duty

	return nil
}

func (a *MockActuator) GetDuty() Duty {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.duty
}

func (a *MockActuator) IsOn() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.on
}

// Calls returns how many times TurnOn and TurnOff were invoked.
func (a *MockActuator) Calls() (on, off int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.onCalls, a.offCalls
}
