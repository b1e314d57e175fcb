package publish

import (
	"encoding/json"
	"time"

	"codeberg.org/mutker/cryoctl/internal/cryo"
)

// StatusMessage is the wire form of a controller status published to
// brokers.
type StatusMessage struct {
	Timestamp        time.Time  `json:"timestamp"`
	Temperature      *float64   `json:"temperature"`
	ReadingTimestamp *time.Time `json:"reading_timestamp,omitempty"`
	Setpoint         int        `json:"setpoint"`
	SetpointMin      int        `json:"setpoint_min"`
	SetpointMax      int        `json:"setpoint_max"`
	PowerEnabled     bool       `json:"power_enabled"`
	CoolingActive    bool       `json:"cooling_active"`
	ActuatorOn       bool       `json:"actuator_on"`
	Duty             int        `json:"duty"`
	ActiveDurationMS int64      `json:"active_duration_ms"`
	SensorFaults     uint64     `json:"sensor_faults"`
}

// NewStatusMessage converts status to its wire form. Temperature is null
// until the first reading.
func NewStatusMessage(status cryo.Status) StatusMessage {
	msg := StatusMessage{
		Timestamp:        status.Timestamp.UTC(),
		Setpoint:         status.Setting,
		SetpointMin:      status.Limits.Min,
		SetpointMax:      status.Limits.Max,
		PowerEnabled:     status.PowerEnabled,
		CoolingActive:    status.CoolingActive,
		ActuatorOn:       status.ActuatorOn,
		Duty:             int(status.Duty),
		ActiveDurationMS: status.ActiveDuration.Milliseconds(),
		SensorFaults:     status.SensorFaults,
	}

	if !status.Reading.IsZero() {
		v := float64(status.Reading.Value)
		msg.Temperature = &v
		ts := status.Reading.Timestamp.UTC()
		msg.ReadingTimestamp = &ts
	}

	return msg
}

func (m StatusMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}
