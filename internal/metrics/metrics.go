package metrics

import (
	"context"

	"codeberg.org/mutker/cryoctl/internal/cryo"
	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
)

type service struct {
	repo   Repository
	cfg    Config
	logger logger.Logger
}

// No-op implementation
type noopCollector struct{}

// NewService returns a collector writing to sqlite, or a no-op collector
// when cfg.Enabled is false.
func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()
	log := logger.Component("metrics")

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &service{
		repo:   repo,
		cfg:    cfg,
		logger: log,
	}, nil
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil || snapshot.Timestamp.IsZero() {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

// Observe records every status that carries a sensor reading.
func (s *service) Observe(status cryo.Status) {
	if status.Reading.IsZero() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRecordWait)
	defer cancel()

	if err := s.Record(ctx, SnapshotFromStatus(status)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record metrics")
	}
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}

func (*noopCollector) Record(_ context.Context, _ *Snapshot) error {
	return nil
}

func (*noopCollector) Observe(_ cryo.Status) {}

func (*noopCollector) Close() error {
	return nil
}
