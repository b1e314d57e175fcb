package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/cryoctl/internal/cryo"
)

// Collector records controller status history. It observes the controller
// directly, so it can be registered with cryo.Controller.RegisterObserver.
type Collector interface {
	cryo.Observer
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository defines the interface for metrics data storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Snapshot is one row of cooling history.
type Snapshot struct {
	Timestamp      time.Time
	Temperature    float64
	Setpoint       int
	Duty           int
	PowerEnabled   bool
	CoolingActive  bool
	ActiveDuration time.Duration
}

// SnapshotFromStatus converts a controller status into a history row.
func SnapshotFromStatus(status cryo.Status) *Snapshot {
	return &Snapshot{
		Timestamp:      status.Timestamp,
		Temperature:    float64(status.Reading.Value),
		Setpoint:       status.Setting,
		Duty:           int(status.Duty),
		PowerEnabled:   status.PowerEnabled,
		CoolingActive:  status.CoolingActive,
		ActiveDuration: status.ActiveDuration,
	}
}
