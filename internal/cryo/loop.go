package cryo

import (
	"context"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
)

// Run drives the control loop until ctx is cancelled. The actuator is
// switched off before the first cycle and again on every exit path.
func (c *Controller) Run(ctx context.Context) error {
	errFactory := errors.New()

	if !c.running.CompareAndSwap(false, true) {
		return errFactory.New(errors.ErrControllerRunning)
	}
	defer c.running.Store(false)

	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	done := c.notify.start(observers)
	defer func() {
		c.notify.push(c.Status())
		c.notify.stop()
		<-done
	}()

	defer c.shutdown()

	if err := c.actuator.TurnOff(); err != nil {
		return errFactory.Wrap(errors.ErrActuator, err)
	}
	if err := c.actuator.SetDuty(c.duty); err != nil {
		return errFactory.Wrap(errors.ErrActuator, err)
	}

	c.logger.Info().
		Dur("interval", c.interval).
		Int("setting", c.TempSetting()).
		Int("duty", int(c.duty)).
		Int("observers", len(observers)).
		Msg("Control loop started")

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		// errors are logged and counted inside Cycle; the loop keeps going
		_ = c.Cycle(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Cycle runs one sample/decide/actuate iteration. Run calls it once per
// sampling interval; tests call it directly.
func (c *Controller) Cycle(ctx context.Context) error {
	errFactory := errors.New()

	readCtx := ctx
	if c.sensorTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, c.sensorTimeout)
		defer cancel()
	}

	value, err := c.sensor.ReadTemperature(readCtx)
	if err != nil {
		c.sensorFaults.Add(1)
		c.faultStreak++
		if c.faultStreak == 1 {
			c.logger.Warn().
				Err(err).
				Str("error_code", string(errors.ErrSensorRead)).
				Bool("actuator_on", c.actuator.IsOn()).
				Msg("Sensor read failed, holding actuator state")
		}
		return errFactory.Wrap(errors.ErrSensorRead, err)
	}
	if c.faultStreak > 0 {
		c.logger.Info().Int("failed_reads", c.faultStreak).Msg("Sensor recovered")
		c.faultStreak = 0
	}

	now := c.now()
	c.lastReading.Store(&Reading{Value: value, Timestamp: now})

	setting := c.TempSetting()
	var transitioned bool

	switch {
	case float64(value) <= float64(setting):
		transitioned, err = c.switchOff(now)
	case c.powerEnabled.Load():
		transitioned, err = c.switchOn(now)
	default:
		transitioned, err = c.switchOff(now)
	}

	if transitioned || c.publishInterval <= 0 || now.Sub(c.lastPublish) >= c.publishInterval {
		c.lastPublish = now
		c.notify.push(c.Status())
	}

	return err
}

// switchOn turns the element on and stamps activatedAt on the inactive to
// active edge only.
func (c *Controller) switchOn(now time.Time) (bool, error) {
	if err := c.actuator.TurnOn(); err != nil {
		c.logger.Error().Err(err).Str("error_code", string(errors.ErrActuator)).Msg("Failed to turn cooling on")
		return false, errors.New().Wrap(errors.ErrActuator, err)
	}

	for {
		prev := c.cooling.Load()
		if prev.active {
			return false, nil
		}

		next := &coolingState{
			active:        true,
			activatedAt:   now,
			deactivatedAt: prev.deactivatedAt,
		}
		if c.cooling.CompareAndSwap(prev, next) {
			break
		}
	}
	c.logger.Debug().Float64("temperature", float64(c.LastTempReading().Value)).Msg("Cooling activated")

	return true, nil
}

// switchOff turns the element off and stamps deactivatedAt on the active to
// inactive edge only. A failed turn-off keeps the state as it was; the next
// cycle drives the actuator again.
func (c *Controller) switchOff(now time.Time) (bool, error) {
	if err := c.actuator.TurnOff(); err != nil {
		c.logger.Error().Err(err).Str("error_code", string(errors.ErrActuator)).Msg("Failed to turn cooling off")
		return false, errors.New().Wrap(errors.ErrActuator, err)
	}

	for {
		prev := c.cooling.Load()
		if !prev.active {
			return false, nil
		}

		next := &coolingState{
			active:        false,
			activatedAt:   prev.activatedAt,
			deactivatedAt: now,
		}
		if c.cooling.CompareAndSwap(prev, next) {
			c.logger.Debug().Dur("active", now.Sub(prev.activatedAt)).Msg("Cooling deactivated")
			break
		}
	}

	return true, nil
}

func (c *Controller) shutdown() {
	if err := c.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to switch cooling off on shutdown")
		return
	}
	c.logger.Info().Msg("Control loop stopped, cooling off")
}

// Close forces the actuator off and marks cooling inactive. It is safe to
// call more than once. Close does not stop Run: the next cycle decides
// afresh and may switch cooling back on. To shut down, cancel the context
// passed to Run, which calls Close on the way out.
func (c *Controller) Close() error {
	if _, err := c.switchOff(c.now()); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
