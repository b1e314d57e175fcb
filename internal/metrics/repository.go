package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	runID         string
	mu            sync.Mutex
	buffer        []*Snapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

// NewRepository opens the sqlite database at cfg.DBPath and tags every row
// it writes with a fresh run id.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		runID:         uuid.NewString(),
		buffer:        make([]*Snapshot, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Str("run_id", repo.runID).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	return repo, nil
}

func (r *repository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}
		<-r.flushDoneChan

		// the flusher is gone; write whatever the last batch left behind
		r.mu.Lock()
		err := r.flush()
		r.mu.Unlock()
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush metrics on close")
		}

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("Metrics repository closed gracefully")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Error().Err(err).Msg("Periodic metrics flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction and empties it. A batch that
// fails to write is logged and discarded. The caller holds r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	err := r.writeBatch()
	if err != nil {
		r.logger.Warn().Err(err).Int("records", len(r.buffer)).Msg("Discarding metrics batch")
	} else {
		r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed metrics to database")
	}
	r.buffer = r.buffer[:0]

	return err
}

func (r *repository) writeBatch() error {
	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertMetricsSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, snapshot := range r.buffer {
		_, err := stmt.Exec(
			r.runID,
			snapshot.Timestamp.UnixNano(),
			snapshot.Temperature,
			int64(snapshot.Setpoint),
			int64(snapshot.Duty),
			int64(boolToInt(snapshot.PowerEnabled)),
			int64(boolToInt(snapshot.CoolingActive)),
			snapshot.ActiveDuration.Milliseconds(),
		)
		if err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	return nil
}
