package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix = "CRYOCTL"
	DefaultLogLevel  = logger.InfoLevel
	configName       = "cryoctl"
	configType       = "toml"
)

var defaultPIDFile = filepath.Join(os.TempDir(), "cryoctl.pid")

var defaults = map[string]any{
	"interval":                  10 * time.Millisecond,
	"publish_interval":          time.Second,
	"log_level":                 string(DefaultLogLevel),
	"power":                     false,
	"duty":                      100,
	"console":                   false,
	"pid_file":                  defaultPIDFile,
	"setpoint.default":          30,
	"setpoint.min":              0,
	"setpoint.max":              50,
	"sensor.type":               DriverMock,
	"sensor.address":            "",
	"sensor.timeout":            time.Second,
	"sensor.calibration_offset": 0.0,
	"sensor.mock_temperature":   25.0,
	"actuator.type":             DriverMock,
	"actuator.pin":              18,
	"actuator.frequency":        25000,
	"actuator.normally_on":      false,
	"server.enabled":            true,
	"server.listen":             ":5555",
	"server.origin_patterns":    []string{},
	"metrics.enabled":           false,
	"metrics.db_path":           "/var/lib/cryoctl/metrics.db",
	"metrics.batch_size":        60,
	"metrics.batch_timeout":     30,
	"metrics.prometheus":        true,
	"mqtt.broker":               "",
	"mqtt.topic":                "cryoctl/status",
	"mqtt.client_id":            "cryoctl",
	"kafka.brokers":             []string{},
	"kafka.topic":               "cryoctl.status",
}

// flag name -> config key
var flagKeys = map[string]string{
	"interval":           "interval",
	"publish-interval":   "publish_interval",
	"log-level":          "log_level",
	"power":              "power",
	"duty":               "duty",
	"console":            "console",
	"pid-file":           "pid_file",
	"setpoint":           "setpoint.default",
	"setpoint-min":       "setpoint.min",
	"setpoint-max":       "setpoint.max",
	"sensor":             "sensor.type",
	"sensor-address":     "sensor.address",
	"sensor-timeout":     "sensor.timeout",
	"calibration-offset": "sensor.calibration_offset",
	"mock-temperature":   "sensor.mock_temperature",
	"actuator":           "actuator.type",
	"pin":                "actuator.pin",
	"frequency":          "actuator.frequency",
	"normally-on":        "actuator.normally_on",
	"server":             "server.enabled",
	"listen":             "server.listen",
	"metrics":            "metrics.enabled",
	"metrics-db":         "metrics.db_path",
	"prometheus":         "metrics.prometheus",
	"mqtt-broker":        "mqtt.broker",
	"mqtt-topic":         "mqtt.topic",
	"kafka-brokers":      "kafka.brokers",
	"kafka-topic":        "kafka.topic",
}

func newFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet(configName, pflag.ContinueOnError)

	f.String("config", "", "Path to the configuration file")
	f.Duration("interval", 10*time.Millisecond, "Control loop sampling interval")
	f.Duration("publish-interval", time.Second, "Interval between status snapshots sent to observers")
	f.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	f.Bool("power", false, "Start with cooling power enabled")
	f.Int("duty", 100, "Actuator duty cycle in percent")
	f.Bool("console", false, "Run the interactive console on stdin")
	f.String("pid-file", defaultPIDFile, "PID file path, empty to disable")
	f.Int("setpoint", 30, "Initial temperature setting in Celsius")
	f.Int("setpoint-min", 0, "Lowest accepted temperature setting")
	f.Int("setpoint-max", 50, "Highest accepted temperature setting")
	f.String("sensor", DriverMock, "Temperature sensor driver (mock, ds18b20)")
	f.String("sensor-address", "", "1-Wire address of the DS18B20 probe")
	f.Duration("sensor-timeout", time.Second, "Upper bound for one sensor read")
	f.Float64("calibration-offset", 0, "Offset added to every sensor reading")
	f.Float64("mock-temperature", 25, "Temperature reported by the mock sensor")
	f.String("actuator", DriverMock, "Actuator driver (mock, pwm)")
	f.Int("pin", 18, "BCM pin number of the PWM output")
	f.Int("frequency", 25000, "PWM frequency in Hz")
	f.Bool("normally-on", false, "Cooling element runs when the pin is low")
	f.Bool("server", true, "Serve the network command endpoint")
	f.String("listen", ":5555", "Command endpoint listen address")
	f.Bool("metrics", false, "Record status history to sqlite")
	f.String("metrics-db", "/var/lib/cryoctl/metrics.db", "Status history database path")
	f.Bool("prometheus", true, "Expose Prometheus metrics on /metrics")
	f.String("mqtt-broker", "", "MQTT broker URL for status publishing")
	f.String("mqtt-topic", "cryoctl/status", "MQTT status topic")
	f.StringSlice("kafka-brokers", nil, "Kafka brokers for status publishing")
	f.String("kafka-topic", "cryoctl.status", "Kafka status topic")

	return f
}

// Load resolves the configuration from defaults, the config file, dotenv
// files, the environment and command-line flags, in increasing precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		args:      os.Args[1:],
		envPrefix: DefaultEnvPrefix,
		envFiles:  []string{".env"},
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	for _, file := range o.envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err).WithData(file)
		}
	}

	flags := newFlagSet()
	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err).WithData(name)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if path == "" {
		path, _ = flags.GetString("config")
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{ConfigFile: v.ConfigFileUsed()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FieldError describes why a single configuration value was rejected.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}

func invalid(code errors.ErrorCode, field string, value any, reason string) error {
	return errors.New().WithData(code, FieldError{Field: field, Value: value, Reason: reason})
}

// Validate checks the configuration for values the controller cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return invalid(errors.ErrInvalidInterval, "interval", c.Interval, "must be positive")
	case c.PublishInterval < 0:
		return invalid(errors.ErrInvalidInterval, "publish_interval", c.PublishInterval, "must not be negative")
	case !c.LogLevel.IsValid():
		return invalid(errors.ErrInvalidLogLevel, "log_level", c.LogLevel, "must be debug, info, warning or error")
	case c.Setpoint.Min > c.Setpoint.Max:
		return invalid(errors.ErrInvalidConfig, "setpoint.min", c.Setpoint.Min, "greater than setpoint.max")
	case c.Setpoint.Default < c.Setpoint.Min || c.Setpoint.Default > c.Setpoint.Max:
		return invalid(errors.ErrInvalidConfig, "setpoint.default", c.Setpoint.Default, "outside setpoint limits")
	case c.Duty < 0 || c.Duty > 100:
		return invalid(errors.ErrInvalidConfig, "duty", c.Duty, "must be within 0-100")
	case c.Sensor.Type != DriverMock && c.Sensor.Type != DriverDS18B20:
		return invalid(errors.ErrInvalidConfig, "sensor.type", c.Sensor.Type, "unknown driver")
	case c.Sensor.Timeout < 0:
		return invalid(errors.ErrInvalidConfig, "sensor.timeout", c.Sensor.Timeout, "must not be negative")
	case c.Actuator.Type != DriverMock && c.Actuator.Type != DriverPWM:
		return invalid(errors.ErrInvalidConfig, "actuator.type", c.Actuator.Type, "unknown driver")
	case c.Actuator.Type == DriverPWM && c.Actuator.Frequency <= 0:
		return invalid(errors.ErrInvalidConfig, "actuator.frequency", c.Actuator.Frequency, "must be positive")
	case c.Server.Enabled && c.Server.Listen == "":
		return invalid(errors.ErrInvalidConfig, "server.listen", c.Server.Listen, "required when the server is enabled")
	case c.Metrics.Enabled && c.Metrics.DBPath == "":
		return invalid(errors.ErrInvalidConfig, "metrics.db_path", c.Metrics.DBPath, "required when metrics are enabled")
	case c.MQTT.Broker != "" && c.MQTT.Topic == "":
		return invalid(errors.ErrInvalidConfig, "mqtt.topic", c.MQTT.Topic, "required with mqtt.broker")
	case len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "":
		return invalid(errors.ErrInvalidConfig, "kafka.topic", c.Kafka.Topic, "required with kafka.brokers")
	}

	return nil
}
