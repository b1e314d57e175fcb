package hardware

import "codeberg.org/mutker/cryoctl/internal/errors"

const (
	// Initialization and Lifecycle Errors
	ErrInitFailed     = errors.ErrorCode("hw_init_failed")
	ErrDeviceNotFound = errors.ErrorCode("hw_device_not_found")
	ErrShutdownFailed = errors.ErrorCode("hw_shutdown_failed")

	// Sensor Errors
	ErrTemperatureReadFailed = errors.ErrorCode("hw_temperature_read_failed")
	ErrSensorTimeout         = errors.ErrorCode("hw_sensor_timeout")

	// Actuator Errors
	ErrDutyOutOfRange = errors.ErrorCode("hw_duty_out_of_range")
	ErrActuatorClosed = errors.ErrorCode("hw_actuator_closed")
	ErrActuatorFailed = errors.ErrorCode("hw_actuator_failed")
)
