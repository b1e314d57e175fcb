package metrics

import (
	"net/http"

	"codeberg.org/mutker/cryoctl/internal/cryo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter mirrors the latest controller status into Prometheus gauges.
type Exporter struct {
	registry *prometheus.Registry

	temperature    prometheus.Gauge
	setpoint       prometheus.Gauge
	duty           prometheus.Gauge
	powerEnabled   prometheus.Gauge
	coolingActive  prometheus.Gauge
	actuatorOn     prometheus.Gauge
	activeDuration prometheus.Gauge
	sensorFaults   prometheus.Counter
	transitions    prometheus.Counter

	lastActive bool
	lastFaults uint64
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryoctl_temperature_celsius",
			Help: "Most recent temperature reading.",
		}),
		setpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryoctl_setpoint_celsius",
			Help: "Current temperature setting.",
		}),
		duty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryoctl_duty_percent",
			Help: "Configured actuator duty cycle.",
		}),
		powerEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryoctl_power_enabled",
			Help: "Operator power permission (1 enabled, 0 disabled).",
		}),
		coolingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryoctl_cooling_active",
			Help: "Whether the controller considers cooling active.",
		}),
		actuatorOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryoctl_actuator_on",
			Help: "Whether the actuator output is on.",
		}),
		activeDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryoctl_active_duration_seconds",
			Help: "Length of the current or last active cooling period.",
		}),
		sensorFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryoctl_sensor_faults_total",
			Help: "Failed sensor reads since start.",
		}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryoctl_cooling_transitions_total",
			Help: "Cooling state changes observed.",
		}),
	}

	e.registry.MustRegister(
		e.temperature,
		e.setpoint,
		e.duty,
		e.powerEnabled,
		e.coolingActive,
		e.actuatorOn,
		e.activeDuration,
		e.sensorFaults,
		e.transitions,
	)

	return e
}

// Observe implements cryo.Observer. It runs on the controller's dispatcher
// goroutine only, so lastActive needs no locking.
func (e *Exporter) Observe(status cryo.Status) {
	if !status.Reading.IsZero() {
		e.temperature.Set(float64(status.Reading.Value))
	}
	e.setpoint.Set(float64(status.Setting))
	e.duty.Set(float64(status.Duty))
	e.powerEnabled.Set(float64(boolToInt(status.PowerEnabled)))
	e.coolingActive.Set(float64(boolToInt(status.CoolingActive)))
	e.actuatorOn.Set(float64(boolToInt(status.ActuatorOn)))
	e.activeDuration.Set(status.ActiveDuration.Seconds())
	// the status carries a running total; the counter only moves forward
	if status.SensorFaults > e.lastFaults {
		e.sensorFaults.Add(float64(status.SensorFaults - e.lastFaults))
	}
	e.lastFaults = status.SensorFaults

	if status.CoolingActive != e.lastActive {
		e.transitions.Inc()
		e.lastActive = status.CoolingActive
	}
}

// Registry exposes the exporter's registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the exporter's metrics in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
