package metrics

import (
	"database/sql"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS cooling_metrics (
	       id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id             TEXT NOT NULL,
	       timestamp_ns       INTEGER NOT NULL CHECK (typeof(timestamp_ns) = 'integer'),
	       temperature        REAL NOT NULL,
	       setpoint           INTEGER NOT NULL CHECK (typeof(setpoint) = 'integer'),
	       duty               INTEGER NOT NULL CHECK (duty BETWEEN 0 AND 100),
	       power_enabled      INTEGER NOT NULL CHECK (power_enabled IN (0, 1)),
	       cooling_active     INTEGER NOT NULL CHECK (cooling_active IN (0, 1)),
	       active_duration_ms INTEGER NOT NULL CHECK (typeof(active_duration_ms) = 'integer')
	   );
	   CREATE INDEX IF NOT EXISTS idx_cooling_metrics_run
	       ON cooling_metrics (run_id, timestamp_ns);`

	insertMetricsSQL = `
    INSERT INTO cooling_metrics (
        run_id, timestamp_ns,
        temperature, setpoint, duty,
        power_enabled, cooling_active, active_duration_ms
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

// managed tables, dropped when the schema version changes
var schemaTables = []string{"cooling_metrics", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, or 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
