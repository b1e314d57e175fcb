package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"
	ErrTimeout         ErrorCode = "operation_timeout"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Controller errors
	ErrSettingOutOfRange ErrorCode = "setting_out_of_range"
	ErrControllerRunning ErrorCode = "controller_running"
	ErrSensorRead        ErrorCode = "sensor_read_failed"
	ErrActuator          ErrorCode = "actuator_failed"

	// Command surface errors
	ErrTransport      ErrorCode = "transport_failed"
	ErrInvalidRequest ErrorCode = "invalid_request"

	// Metrics errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"

	// Publisher errors
	ErrPublish ErrorCode = "publish_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrAlreadyRunning:    "Another instance is already running",
	ErrTimeout:           "Operation timed out",
	ErrInvalidConfig:     "Invalid configuration",
	ErrReadConfig:        "Failed to read configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrSettingOutOfRange: "Temperature setting out of range",
	ErrControllerRunning: "Controller loop is already running",
	ErrSensorRead:        "Failed to read temperature sensor",
	ErrActuator:          "Actuator operation failed",
	ErrTransport:         "Command transport failed",
	ErrInvalidRequest:    "Invalid command request",
	ErrInitMetrics:       "Failed to initialize metrics",
	ErrCollectMetrics:    "Failed to collect metrics data",
	ErrCloseMetrics:      "Failed to close metrics connection",
	ErrPublish:           "Failed to publish status",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
