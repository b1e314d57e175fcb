package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/cryoctl/metrics.db"
	defaultBatchSize    = 60
	defaultBatchTimeout = 30
	defaultRecordWait   = time.Second
)

type Config struct {
	DBPath string
	// BackupDir receives a copy of the database before an incompatible
	// schema is replaced. Defaults to a backups directory next to DBPath.
	BackupDir    string
	BatchSize    int
	BatchTimeout int // seconds
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if metrics is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize    int
			BatchTimeout int
		}{c.BatchSize, c.BatchTimeout})
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
