package cryo

import (
	"sync/atomic"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/hardware"
	"codeberg.org/mutker/cryoctl/internal/logger"
)

// Controller runs the on/off cooling loop for one zone. Accessors and
// mutators are safe to call from any goroutine while Run is active; the
// sensor and actuator are only ever driven from the loop and from Close.
type Controller struct {
	sensor   hardware.Sensor
	actuator hardware.Actuator
	limits   Limits
	duty     hardware.Duty

	interval        time.Duration
	publishInterval time.Duration
	sensorTimeout   time.Duration
	now             func() time.Time

	setting      atomic.Int64
	powerEnabled atomic.Bool
	lastReading  atomic.Pointer[Reading]
	cooling      atomic.Pointer[coolingState]
	running      atomic.Bool
	sensorFaults atomic.Uint64

	observers []Observer
	notify    *dispatcher

	// owned by the loop goroutine
	faultStreak int
	lastPublish time.Time

	logger logger.Logger
}

type options struct {
	limits          Limits
	setting         int
	duty            hardware.Duty
	powerEnabled    bool
	interval        time.Duration
	publishInterval time.Duration
	sensorTimeout   time.Duration
	maxPending      int
	now             func() time.Time
}

// Option configures a Controller.
type Option func(*options)

// WithLimits sets the inclusive setpoint range.
func WithLimits(limits Limits) Option {
	return func(o *options) { o.limits = limits }
}

// WithSetting sets the initial setpoint.
func WithSetting(setting int) Option {
	return func(o *options) { o.setting = setting }
}

// WithDuty sets the duty the actuator is configured with when the loop starts.
func WithDuty(duty hardware.Duty) Option {
	return func(o *options) { o.duty = duty }
}

// WithPowerEnabled sets the initial power-enabled flag.
func WithPowerEnabled(enabled bool) Option {
	return func(o *options) { o.powerEnabled = enabled }
}

// WithInterval sets the sampling interval.
func WithInterval(interval time.Duration) Option {
	return func(o *options) { o.interval = interval }
}

// WithPublishInterval sets how often observers receive a snapshot when no
// cooling transition happens. Zero publishes every cycle.
func WithPublishInterval(interval time.Duration) Option {
	return func(o *options) { o.publishInterval = interval }
}

// WithSensorTimeout bounds each sensor read. Zero disables the bound.
func WithSensorTimeout(timeout time.Duration) Option {
	return func(o *options) { o.sensorTimeout = timeout }
}

// WithMaxPending bounds the observer queue; the oldest snapshot is dropped
// when it is full.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a controller in the inactive state. It does not touch the
// actuator until Run is called.
func New(sensor hardware.Sensor, actuator hardware.Actuator, opts ...Option) (*Controller, error) {
	errFactory := errors.New()

	o := options{
		limits:          DefaultLimits,
		setting:         DefaultSetting,
		duty:            DefaultDuty,
		interval:        DefaultInterval,
		publishInterval: DefaultPublishInterval,
		sensorTimeout:   DefaultSensorTimeout,
		maxPending:      defaultMaxPending,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if sensor == nil || actuator == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "sensor and actuator are required")
	}
	if o.limits.Min > o.limits.Max {
		return nil, errFactory.WithData(errors.ErrInvalidConfig, "setpoint limits "+o.limits.String())
	}
	if err := o.limits.Validate(o.setting); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if o.interval <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidInterval, o.interval)
	}
	if !hardware.DefaultDutyLimits.Contains(o.duty) {
		return nil, errFactory.WithData(errors.ErrInvalidConfig, struct{ Duty hardware.Duty }{o.duty})
	}

	c := &Controller{
		sensor:          sensor,
		actuator:        actuator,
		limits:          o.limits,
		duty:            o.duty,
		interval:        o.interval,
		publishInterval: o.publishInterval,
		sensorTimeout:   o.sensorTimeout,
		now:             o.now,
		notify:          newDispatcher(o.maxPending),
		logger:          logger.Component("cryo"),
	}
	c.setting.Store(int64(o.setting))
	c.powerEnabled.Store(o.powerEnabled)
	c.lastReading.Store(&Reading{})
	c.cooling.Store(&coolingState{})

	return c, nil
}

// RegisterObserver appends o to the observer list. Observers can only be
// added before Run starts.
func (c *Controller) RegisterObserver(o Observer) error {
	if o == nil {
		return errors.New().WithMessage(errors.ErrInvalidArgument, "nil observer")
	}
	if c.running.Load() {
		return errors.New().New(errors.ErrControllerRunning)
	}
	c.observers = append(c.observers, o)

	return nil
}

// UpdateTempSetting replaces the setpoint when v lies within the limits.
// Out-of-range values are logged and leave the setpoint unchanged. The
// actuator is not touched; the next cycle applies the new setpoint.
func (c *Controller) UpdateTempSetting(v int) bool {
	if err := c.limits.Validate(v); err != nil {
		c.logger.Warn().
			Str("error_code", string(errors.ErrSettingOutOfRange)).
			Int("value", v).
			Int("min", c.limits.Min).
			Int("max", c.limits.Max).
			Msg("Rejected temperature setting")
		return false
	}

	prev := c.setting.Swap(int64(v))
	if prev != int64(v) {
		c.logger.Info().Int64("from", prev).Int("to", v).Msg("Temperature setting updated")
	}

	return true
}

// TempSetting returns the current setpoint.
func (c *Controller) TempSetting() int {
	return int(c.setting.Load())
}

// Limits returns the setpoint range.
func (c *Controller) Limits() Limits {
	return c.limits
}

// SetPowerEnable sets the operator intent flag consumed by the next cycle.
func (c *Controller) SetPowerEnable(enabled bool) {
	if c.powerEnabled.Swap(enabled) != enabled {
		c.logger.Info().Bool("enabled", enabled).Msg("Power enable changed")
	}
}

// PowerEnabled returns the operator intent flag.
func (c *Controller) PowerEnabled() bool {
	return c.powerEnabled.Load()
}

// LastTempReading returns the most recent sample, or a zero Reading before
// the first cycle.
func (c *Controller) LastTempReading() Reading {
	return *c.lastReading.Load()
}

// CurrentDuty returns the actuator's duty value.
func (c *Controller) CurrentDuty() hardware.Duty {
	return c.actuator.GetDuty()
}

// IsCoolingActive reports whether the loop last switched the element on.
func (c *Controller) IsCoolingActive() bool {
	return c.cooling.Load().active
}

// ActiveDuration returns how long cooling has been active, or how long the
// last active period lasted when inactive.
func (c *Controller) ActiveDuration() time.Duration {
	return c.cooling.Load().duration(c.now())
}

// SensorFaults returns the number of failed sensor reads since start.
func (c *Controller) SensorFaults() uint64 {
	return c.sensorFaults.Load()
}

// Status returns a snapshot of all readable state.
func (c *Controller) Status() Status {
	now := c.now()
	state := c.cooling.Load()

	return Status{
		Timestamp:      now,
		Reading:        c.LastTempReading(),
		Setting:        c.TempSetting(),
		Limits:         c.limits,
		PowerEnabled:   c.PowerEnabled(),
		CoolingActive:  state.active,
		ActivatedAt:    state.activatedAt,
		DeactivatedAt:  state.deactivatedAt,
		ActiveDuration: state.duration(now),
		Duty:           c.actuator.GetDuty(),
		ActuatorOn:     c.actuator.IsOn(),
		SensorFaults:   c.sensorFaults.Load(),
	}
}
