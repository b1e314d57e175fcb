package metrics_test

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/cryoctl/internal/cryo"
	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/hardware"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"codeberg.org/mutker/cryoctl/internal/metrics"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStatus(ts time.Time, temp float64, active bool) cryo.Status {
	return cryo.Status{
		Timestamp:      ts,
		Reading:        cryo.Reading{Value: hardware.Temperature(temp), Timestamp: ts},
		Setting:        20,
		Limits:         cryo.DefaultLimits,
		PowerEnabled:   true,
		CoolingActive:  active,
		ActiveDuration: 1500 * time.Millisecond,
		Duty:           100,
		ActuatorOn:     active,
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestDisabledServiceIsNoop(t *testing.T) {
	collector, err := metrics.NewService(metrics.DefaultConfig())
	require.NoError(t, err)

	collector.Observe(testStatus(time.Now(), 25, true))
	assert.NoError(t, collector.Record(context.Background(), &metrics.Snapshot{}))
	assert.NoError(t, collector.Close())
}

func TestInvalidConfig(t *testing.T) {
	_, err := metrics.NewService(metrics.Config{Enabled: true})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))
}

func TestServiceRecordsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "metrics.db")
	collector, err := metrics.NewService(metrics.Config{
		Enabled:      true,
		DBPath:       path,
		BatchSize:    3,
		BatchTimeout: 60,
	})
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	collector.Observe(testStatus(base, 25.5, true))
	collector.Observe(testStatus(base.Add(time.Second), 21, true))
	collector.Observe(cryo.Status{Timestamp: base}) // no reading yet, skipped
	collector.Observe(testStatus(base.Add(2*time.Second), 19.5, false))
	collector.Observe(testStatus(base.Add(3*time.Second), 19, false))

	// the fourth row is still buffered until Close
	require.NoError(t, collector.Close())

	db := openDB(t, path)

	var count, runs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT run_id) FROM cooling_metrics`).Scan(&count, &runs))
	assert.Equal(t, 4, count)
	assert.Equal(t, 1, runs)

	var (
		ts       int64
		temp     float64
		setpoint int
		active   int
		duration int64
	)
	require.NoError(t, db.QueryRow(`
		SELECT timestamp_ns, temperature, setpoint, cooling_active, active_duration_ms
		FROM cooling_metrics ORDER BY id LIMIT 1`).Scan(&ts, &temp, &setpoint, &active, &duration))
	assert.Equal(t, base.UnixNano(), ts)
	assert.InDelta(t, 25.5, temp, 1e-9)
	assert.Equal(t, 20, setpoint)
	assert.Equal(t, 1, active)
	assert.Equal(t, int64(1500), duration)
}

func TestRepositoryDiscardsFailedBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	repo, err := metrics.NewRepository(metrics.Config{
		DBPath:    path,
		BatchSize: 2,
	}, logger.Component("metrics"))
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	snapshot := func(offset time.Duration, duty int) *metrics.Snapshot {
		return &metrics.Snapshot{Timestamp: base.Add(offset), Temperature: 20, Setpoint: 20, Duty: duty}
	}

	// duty outside 0-100 violates the table constraint
	require.NoError(t, repo.Record(snapshot(0, 101)))
	err = repo.Record(snapshot(time.Second, 50))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrTransactionFailed))

	// the rejected batch is gone, so later batches write normally
	require.NoError(t, repo.Record(snapshot(2*time.Second, 50)))
	require.NoError(t, repo.Record(snapshot(3*time.Second, 60)))
	require.NoError(t, repo.Close())

	var count int
	require.NoError(t, openDB(t, path).QueryRow(`SELECT COUNT(*) FROM cooling_metrics`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRecordRejectsEmptySnapshot(t *testing.T) {
	collector, err := metrics.NewService(metrics.Config{
		Enabled:   true,
		DBPath:    filepath.Join(t.TempDir(), "metrics.db"),
		BatchSize: 1,
	})
	require.NoError(t, err)
	defer collector.Close()

	err = collector.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidMetrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = collector.Record(ctx, metrics.SnapshotFromStatus(testStatus(time.Now(), 20, false)))
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.db")
	backups := filepath.Join(dir, "backups")

	db := openDB(t, path)
	_, err := db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE cooling_metrics (legacy INTEGER);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := metrics.NewRepository(metrics.Config{DBPath: path, BackupDir: backups, BatchSize: 1}, logger.Component("test"))
	require.NoError(t, err)
	require.NoError(t, repo.Record(metrics.SnapshotFromStatus(testStatus(time.Now(), 22, true))))
	require.NoError(t, repo.Close())

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "metrics_v99_")

	db = openDB(t, path)
	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cooling_metrics`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExporter(t *testing.T) {
	e := metrics.NewExporter()
	now := time.Now()

	e.Observe(testStatus(now, 24.25, true))
	e.Observe(testStatus(now.Add(time.Second), 19.5, false))

	count, err := testutil.GatherAndCount(e.Registry())
	require.NoError(t, err)
	assert.Equal(t, 9, count)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "cryoctl_temperature_celsius 19.5")
	assert.Contains(t, body, "cryoctl_setpoint_celsius 20")
	assert.Contains(t, body, "cryoctl_cooling_active 0")
	assert.Contains(t, body, "cryoctl_active_duration_seconds 1.5")
	assert.Contains(t, body, "cryoctl_cooling_transitions_total 2")
}

func TestExporterSensorFaultsCounter(t *testing.T) {
	e := metrics.NewExporter()
	now := time.Now()

	for _, faults := range []uint64{2, 5, 5, 0, 3} {
		status := testStatus(now, 20, false)
		status.SensorFaults = faults
		e.Observe(status)
	}

	// 2 + 3 up to the reset, then 3 more
	expected := `
# HELP cryoctl_sensor_faults_total Failed sensor reads since start.
# TYPE cryoctl_sensor_faults_total counter
cryoctl_sensor_faults_total 8
`
	require.NoError(t, testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected), "cryoctl_sensor_faults_total"))
}
