package config

import (
	"time"

	"codeberg.org/mutker/cryoctl/internal/logger"
)

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	args       []string
	configPath string
	envPrefix  string
	envFiles   []string
}

// WithArgs parses args instead of os.Args[1:]
func WithArgs(args []string) Option {
	return func(o *options) error {
		o.args = args
		return nil
	}
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "CRYOCTL"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithEnvFiles lists dotenv files loaded into the environment before
// resolving. Missing files are ignored. Default is ".env".
func WithEnvFiles(files ...string) Option {
	return func(o *options) error {
		o.envFiles = files
		return nil
	}
}

// Sensor and actuator driver names
const (
	DriverMock    = "mock"
	DriverDS18B20 = "ds18b20"
	DriverPWM     = "pwm"
)

type SetpointConfig struct {
	Default int `mapstructure:"default"`
	Min     int `mapstructure:"min"`
	Max     int `mapstructure:"max"`
}

type SensorConfig struct {
	Type              string        `mapstructure:"type"`
	Address           string        `mapstructure:"address"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CalibrationOffset float64       `mapstructure:"calibration_offset"`
	MockTemperature   float64       `mapstructure:"mock_temperature"`
}

type ActuatorConfig struct {
	Type       string `mapstructure:"type"`
	Pin        int    `mapstructure:"pin"`
	Frequency  int    `mapstructure:"frequency"`
	NormallyOn bool   `mapstructure:"normally_on"`
}

type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Listen         string   `mapstructure:"listen"`
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
	Prometheus   bool   `mapstructure:"prometheus"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Config struct {
	Interval        time.Duration   `mapstructure:"interval"`
	PublishInterval time.Duration   `mapstructure:"publish_interval"`
	LogLevel        logger.LogLevel `mapstructure:"log_level"`
	Power           bool            `mapstructure:"power"`
	Duty            int             `mapstructure:"duty"`
	Console         bool            `mapstructure:"console"`
	PIDFile         string          `mapstructure:"pid_file"`

	Setpoint SetpointConfig `mapstructure:"setpoint"`
	Sensor   SensorConfig   `mapstructure:"sensor"`
	Actuator ActuatorConfig `mapstructure:"actuator"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `mapstructure:"-"`
}
