package publish

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/cryoctl/internal/cryo"
	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
)

const (
	defaultPublishTimeout = 2 * time.Second
	defaultMaxPending     = 16
)

// sink delivers one encoded message to a broker.
type sink interface {
	send(ctx context.Context, key string, payload []byte) error
	close() error
}

// Publisher forwards controller status snapshots to a message broker. It
// implements cryo.Observer. Observe only queues the snapshot; a worker
// goroutine does the broker I/O, so a slow or unreachable broker never
// holds up the other observers.
type Publisher struct {
	name    string
	key     string
	sink    sink
	timeout time.Duration
	logger  logger.Logger

	mu      sync.RWMutex
	closed  bool
	pending chan cryo.Status
	done    chan struct{}
	dropped atomic.Uint64

	// cancels in-flight sends once Close gives up waiting
	ctx    context.Context
	cancel context.CancelFunc

	// worker goroutine only
	failing bool
}

func newPublisher(name, key string, s sink) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		name:    name,
		key:     key,
		sink:    s,
		timeout: defaultPublishTimeout,
		logger:  logger.Component(name),
		pending: make(chan cryo.Status, defaultMaxPending),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go p.run()

	return p
}

// Publish encodes status and sends it, bounded by the publisher timeout.
func (p *Publisher) Publish(ctx context.Context, status cryo.Status) error {
	errFactory := errors.New()

	payload, err := NewStatusMessage(status).Marshal()
	if err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sink.send(ctx, p.key, payload); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err).WithData(p.name)
	}

	return nil
}

// Observe queues status for publishing without waiting on the broker. When
// the queue is full the oldest queued snapshot is dropped.
func (p *Publisher) Observe(status cryo.Status) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	for {
		select {
		case p.pending <- status:
			return
		default:
		}

		select {
		case <-p.pending:
			p.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns how many snapshots were discarded because the broker could
// not keep up.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) run() {
	defer close(p.done)

	for status := range p.pending {
		p.deliver(status)
	}
}

// deliver publishes status and logs the first failure of a run of failures
// and the recovery that ends it.
func (p *Publisher) deliver(status cryo.Status) {
	err := p.Publish(p.ctx, status)

	switch {
	case err != nil && !p.failing:
		p.failing = true
		p.logger.Warn().Err(err).Msg("Status publishing failed")
	case err == nil && p.failing:
		p.failing = false
		p.logger.Info().Msg("Status publishing recovered")
	}
}

// Close sends what is still queued, waiting at most one publish timeout,
// then releases the broker connection. Snapshots observed after Close are
// ignored.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.pending)
	p.mu.Unlock()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		p.logger.Warn().Int("pending", len(p.pending)).Msg("Discarding unsent status snapshots")
		p.cancel()
		<-p.done
	}
	p.cancel()

	if err := p.sink.close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err).WithData(p.name)
	}

	return nil
}
