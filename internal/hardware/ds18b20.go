package hardware

import (
	"context"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"github.com/yryz/ds18b20"
)

type DS18B20Config struct {
	// Address is the 1-Wire id, e.g. "28-0316a2795aff". Empty selects the
	// first probe found on the bus.
	Address           string
	CalibrationOffset float64
}

// DS18B20Sensor reads a DS18B20 probe through the w1 sysfs interface.
type DS18B20Sensor struct {
	address string
	offset  float64
	read    func(address string) (float64, error)
	logger  logger.Logger
}

func NewDS18B20Sensor(cfg DS18B20Config) (*DS18B20Sensor, error) {
	errFactory := errors.New()
	log := logger.Component("ds18b20")

	address := cfg.Address
	if address == "" {
		sensors, err := ds18b20.Sensors()
		if err != nil {
			return nil, errFactory.Wrap(ErrInitFailed, err)
		}
		if len(sensors) == 0 {
			return nil, errFactory.New(ErrDeviceNotFound)
		}
		address = sensors[0]
		log.Info().Strs("sensors", sensors).Msg("Using first 1-Wire probe")
	}

	return &DS18B20Sensor{
		address: address,
		offset:  cfg.CalibrationOffset,
		read:    ds18b20.Temperature,
		logger:  log,
	}, nil
}

func (s *DS18B20Sensor) Address() string {
	return s.address
}

// ReadTemperature performs one conversion. A conversion takes up to 750ms
// on the bus, so the read runs in its own goroutine and is abandoned when
// ctx expires.
func (s *DS18B20Sensor) ReadTemperature(ctx context.Context) (Temperature, error) {
	errFactory := errors.New()

	type result struct {
		value float64
		err   error
	}
	done := make(chan result, 1)

	go func() {
		v, err := s.read(s.address)
		done <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, errFactory.Wrap(ErrSensorTimeout, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return 0, errFactory.Wrap(ErrTemperatureReadFailed, r.err).WithData(s.address)
		}

		return Temperature(r.value + s.offset), nil
	}
}
