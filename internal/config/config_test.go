package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/cryoctl/internal/config"
	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cryoctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func load(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	if args == nil {
		args = []string{}
	}

	return config.Load(config.WithArgs(args), config.WithEnvFiles())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interval = "50ms"
publish_interval = "2s"
log_level = "debug"
power = true
duty = 80

[setpoint]
default = 12
min = -10
max = 40

[sensor]
type = "ds18b20"
address = "28-000005e2fdc3"
timeout = "500ms"
calibration_offset = -0.5

[actuator]
type = "pwm"
pin = 13
frequency = 1000
normally_on = true

[server]
listen = "127.0.0.1:6000"
origin_patterns = ["localhost:*"]

[metrics]
enabled = true
db_path = "/path/to/metrics.db"

[kafka]
brokers = ["kafka-1:9092", "kafka-2:9092"]
topic = "lab.cryo"
`)
	t.Setenv("CRYOCTL_CONFIG", path)

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 50*time.Millisecond, cfg.Interval)
	assert.Equal(t, 2*time.Second, cfg.PublishInterval)
	assert.Equal(t, logger.DebugLevel, cfg.LogLevel)
	assert.True(t, cfg.Power)
	assert.Equal(t, 80, cfg.Duty)
	assert.Equal(t, config.SetpointConfig{Default: 12, Min: -10, Max: 40}, cfg.Setpoint)
	assert.Equal(t, config.DriverDS18B20, cfg.Sensor.Type)
	assert.Equal(t, "28-000005e2fdc3", cfg.Sensor.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Sensor.Timeout)
	assert.InDelta(t, -0.5, cfg.Sensor.CalibrationOffset, 1e-9)
	assert.Equal(t, config.ActuatorConfig{Type: config.DriverPWM, Pin: 13, Frequency: 1000, NormallyOn: true}, cfg.Actuator)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "127.0.0.1:6000", cfg.Server.Listen)
	assert.Equal(t, []string{"localhost:*"}, cfg.Server.OriginPatterns)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/path/to/metrics.db", cfg.Metrics.DBPath)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "lab.cryo", cfg.Kafka.Topic)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CRYOCTL_CONFIG", "")

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, cfg.Interval)
	assert.Equal(t, time.Second, cfg.PublishInterval)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Power)
	assert.Equal(t, 100, cfg.Duty)
	assert.Equal(t, config.SetpointConfig{Default: 30, Min: 0, Max: 50}, cfg.Setpoint)
	assert.Equal(t, config.DriverMock, cfg.Sensor.Type)
	assert.Equal(t, time.Second, cfg.Sensor.Timeout)
	assert.InDelta(t, 25.0, cfg.Sensor.MockTemperature, 1e-9)
	assert.Equal(t, config.DriverMock, cfg.Actuator.Type)
	assert.Equal(t, 18, cfg.Actuator.Pin)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, ":5555", cfg.Server.Listen)
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Metrics.Prometheus)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
duty = 60

[setpoint]
default = 10
`)
	t.Setenv("CRYOCTL_CONFIG", path)
	t.Setenv("CRYOCTL_DUTY", "70")
	t.Setenv("CRYOCTL_SETPOINT_DEFAULT", "15")
	t.Setenv("CRYOCTL_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := load(t, "--setpoint", "20")
	require.NoError(t, err)

	assert.Equal(t, 70, cfg.Duty, "env overrides file")
	assert.Equal(t, 20, cfg.Setpoint.Default, "flag overrides env")
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFlags(t *testing.T) {
	t.Setenv("CRYOCTL_CONFIG", "")

	cfg, err := load(t,
		"--log-level", "debug",
		"--interval", "25ms",
		"--power",
		"--sensor-timeout", "200ms",
		"--mock-temperature", "18.5",
		"--server=false",
		"--kafka-brokers", "k1:9092,k2:9092",
	)
	require.NoError(t, err)

	assert.Equal(t, logger.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 25*time.Millisecond, cfg.Interval)
	assert.True(t, cfg.Power)
	assert.Equal(t, 200*time.Millisecond, cfg.Sensor.Timeout)
	assert.InDelta(t, 18.5, cfg.Sensor.MockTemperature, 1e-9)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigFlag(t *testing.T) {
	t.Setenv("CRYOCTL_CONFIG", "")
	path := writeConfig(t, `duty = 42`)

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Duty)
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("CRYOCTL_CONFIG", "")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CRYOCTL_MQTT_BROKER=tcp://broker:1883\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CRYOCTL_MQTT_BROKER") })

	cfg, err := config.Load(
		config.WithArgs([]string{}),
		config.WithEnvFiles(envFile, filepath.Join(t.TempDir(), "missing.env")),
	)
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)
	t.Setenv("CRYOCTL_CONFIG", path)

	_, err := load(t)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(
		config.WithArgs([]string{}),
		config.WithEnvFiles(),
		config.WithConfigFile(filepath.Join(t.TempDir(), "absent.toml")),
	)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadUnknownFlag(t *testing.T) {
	t.Setenv("CRYOCTL_CONFIG", "")

	_, err := load(t, "--fanspeed", "80")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
log_level = "invalid"
`)
	t.Setenv("CRYOCTL_CONFIG", path)

	_, err := load(t)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidLogLevel, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "log_level=invalid")
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			Interval:        10 * time.Millisecond,
			PublishInterval: time.Second,
			LogLevel:        logger.InfoLevel,
			Duty:            100,
			Setpoint:        config.SetpointConfig{Default: 30, Min: 0, Max: 50},
			Sensor:          config.SensorConfig{Type: config.DriverMock, Timeout: time.Second},
			Actuator:        config.ActuatorConfig{Type: config.DriverMock},
			Server:          config.ServerConfig{Enabled: true, Listen: ":5555"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   errors.ErrorCode
		field  string
	}{
		{"zero interval", func(c *config.Config) { c.Interval = 0 }, errors.ErrInvalidInterval, "interval"},
		{"negative publish interval", func(c *config.Config) { c.PublishInterval = -time.Second }, errors.ErrInvalidInterval, "publish_interval"},
		{"inverted limits", func(c *config.Config) { c.Setpoint.Min = 60 }, errors.ErrInvalidConfig, "setpoint.min"},
		{"setting above max", func(c *config.Config) { c.Setpoint.Default = 51 }, errors.ErrInvalidConfig, "setpoint.default"},
		{"setting below min", func(c *config.Config) { c.Setpoint.Default = -1 }, errors.ErrInvalidConfig, "setpoint.default"},
		{"duty above 100", func(c *config.Config) { c.Duty = 101 }, errors.ErrInvalidConfig, "duty"},
		{"unknown sensor", func(c *config.Config) { c.Sensor.Type = "thermocouple" }, errors.ErrInvalidConfig, "sensor.type"},
		{"unknown actuator", func(c *config.Config) { c.Actuator.Type = "relay" }, errors.ErrInvalidConfig, "actuator.type"},
		{"pwm without frequency", func(c *config.Config) { c.Actuator.Type = config.DriverPWM }, errors.ErrInvalidConfig, "actuator.frequency"},
		{"server without listen", func(c *config.Config) { c.Server.Listen = "" }, errors.ErrInvalidConfig, "server.listen"},
		{"metrics without db", func(c *config.Config) { c.Metrics.Enabled = true }, errors.ErrInvalidConfig, "metrics.db_path"},
		{"mqtt without topic", func(c *config.Config) { c.MQTT.Broker = "tcp://b:1883" }, errors.ErrInvalidConfig, "mqtt.topic"},
		{"kafka without topic", func(c *config.Config) { c.Kafka.Brokers = []string{"k:9092"} }, errors.ErrInvalidConfig, "kafka.topic"},
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))

			var coded errors.Error
			require.True(t, errors.As(err, &coded))
			field, ok := coded.GetData().(config.FieldError)
			require.True(t, ok)
			assert.Equal(t, tt.field, field.Field)
		})
	}
}
