package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"codeberg.org/mutker/cryoctl/internal/config"
	"codeberg.org/mutker/cryoctl/internal/console"
	"codeberg.org/mutker/cryoctl/internal/cryo"
	"codeberg.org/mutker/cryoctl/internal/hardware"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"codeberg.org/mutker/cryoctl/internal/metrics"
	"codeberg.org/mutker/cryoctl/internal/pid"
	"codeberg.org/mutker/cryoctl/internal/publish"
	"codeberg.org/mutker/cryoctl/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Str("file", cfg.ConfigFile).Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}

	code := 0
	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("Controller stopped with error")
		code = 1
	}

	if err := pid.Remove(cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
	os.Exit(code)
}

func run(cfg *config.Config) error {
	sensor, actuator, err := newHardware(cfg)
	if err != nil {
		return err
	}
	if c, ok := actuator.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to release actuator")
			}
		}()
	}

	ctrl, err := cryo.New(sensor, actuator,
		cryo.WithLimits(cryo.Limits{Min: cfg.Setpoint.Min, Max: cfg.Setpoint.Max}),
		cryo.WithSetting(cfg.Setpoint.Default),
		cryo.WithDuty(hardware.Duty(cfg.Duty)),
		cryo.WithPowerEnabled(cfg.Power),
		cryo.WithInterval(cfg.Interval),
		cryo.WithPublishInterval(cfg.PublishInterval),
		cryo.WithSensorTimeout(cfg.Sensor.Timeout),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closers, err := registerObservers(cfg, ctrl)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close observer")
			}
		}
	}()
	if err != nil {
		return err
	}

	var exporter *metrics.Exporter
	if cfg.Metrics.Prometheus {
		exporter = metrics.NewExporter()
		if err := ctrl.RegisterObserver(exporter); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup

	if cfg.Console {
		con := console.New(ctrl, os.Stdin, os.Stdout, cancel)
		if err := ctrl.RegisterObserver(con); err != nil {
			return err
		}
		// not waited on, a blocked stdin read would hold shutdown
		go func() {
			if err := con.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Console stopped")
			}
		}()
	}

	if cfg.Server.Enabled {
		srvCfg := server.Config{
			Listen:         cfg.Server.Listen,
			OriginPatterns: cfg.Server.OriginPatterns,
		}
		if exporter != nil {
			srvCfg.Metrics = exporter.Handler()
		}
		srv := server.New(srvCfg, ctrl)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Command endpoint failed, shutting down")
				cancel()
			}
		}()
	}

	logger.Info().
		Int("setting", cfg.Setpoint.Default).
		Bool("power", cfg.Power).
		Str("sensor", cfg.Sensor.Type).
		Str("actuator", cfg.Actuator.Type).
		Msg("Starting cryo controller")

	err = ctrl.Run(ctx)
	cancel()
	wg.Wait()

	return err
}

func newHardware(cfg *config.Config) (hardware.Sensor, hardware.Actuator, error) {
	var (
		sensor   hardware.Sensor
		actuator hardware.Actuator
		err      error
	)

	switch cfg.Sensor.Type {
	case config.DriverDS18B20:
		sensor, err = hardware.NewDS18B20Sensor(hardware.DS18B20Config{
			Address:           cfg.Sensor.Address,
			CalibrationOffset: cfg.Sensor.CalibrationOffset,
		})
		if err != nil {
			return nil, nil, err
		}
	default:
		logger.Warn().Float64("temperature", cfg.Sensor.MockTemperature).Msg("Using mock temperature sensor")
		sensor = hardware.NewMockSensor(hardware.Temperature(cfg.Sensor.MockTemperature))
	}

	switch cfg.Actuator.Type {
	case config.DriverPWM:
		actuator, err = hardware.NewPWMActuator(hardware.PWMConfig{
			Pin:        cfg.Actuator.Pin,
			Frequency:  cfg.Actuator.Frequency,
			NormallyOn: cfg.Actuator.NormallyOn,
		})
		if err != nil {
			return nil, nil, err
		}
	default:
		logger.Warn().Msg("Using mock actuator")
		actuator = hardware.NewMockActuator()
	}

	return sensor, actuator, nil
}

// registerObservers wires the history and publishing observers. The returned
// closers are valid even when err is non-nil.
func registerObservers(cfg *config.Config, ctrl *cryo.Controller) ([]io.Closer, error) {
	var closers []io.Closer

	collector, err := metrics.NewService(metrics.Config{
		Enabled:      cfg.Metrics.Enabled,
		DBPath:       cfg.Metrics.DBPath,
		BatchSize:    cfg.Metrics.BatchSize,
		BatchTimeout: cfg.Metrics.BatchTimeout,
	})
	if err != nil {
		return closers, err
	}
	closers = append(closers, collector)
	if err := ctrl.RegisterObserver(collector); err != nil {
		return closers, err
	}

	if cfg.MQTT.Broker != "" {
		p, err := publish.NewMQTTPublisher(publish.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			logger.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT publishing disabled")
		} else {
			closers = append(closers, p)
			if err := ctrl.RegisterObserver(p); err != nil {
				return closers, err
			}
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := publish.NewKafkaPublisher(publish.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Key:     cfg.MQTT.ClientID,
		})
		if err != nil {
			return closers, err
		}
		closers = append(closers, p)
		if err := ctrl.RegisterObserver(p); err != nil {
			return closers, err
		}
	}

	return closers, nil
}
