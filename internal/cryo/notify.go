package cryo

import (
	"sync"

	"github.com/eapache/queue"
)

const defaultMaxPending = 256

// dispatcher hands status snapshots from the control loop to observers on a
// separate goroutine, so a slow observer never delays a cycle.
type dispatcher struct {
	mu         sync.Mutex
	pending    *queue.Queue
	maxPending int
	dropped    uint64
	stopped    bool
	wake       chan struct{}
}

func newDispatcher(maxPending int) *dispatcher {
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}

	return &dispatcher{
		pending:    queue.New(),
		maxPending: maxPending,
		wake:       make(chan struct{}, 1),
	}
}

// start launches the delivery goroutine. The returned channel is closed once
// stop has been called and every queued snapshot was delivered.
func (d *dispatcher) start(observers []Observer) <-chan struct{} {
	d.mu.Lock()
	d.stopped = false
	d.mu.Unlock()

	done := make(chan struct{})
	go d.run(observers, done)

	return done
}

func (d *dispatcher) push(status Status) {
	d.mu.Lock()
	if d.pending.Length() >= d.maxPending {
		d.pending.Remove()
		d.dropped++
	}
	d.pending.Add(status)
	d.mu.Unlock()

	d.signal()
}

func (d *dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// next pops one snapshot. ok is false when the queue is empty; stopped
// reports whether stop was requested.
func (d *dispatcher) next() (status Status, ok, stopped bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending.Length() == 0 {
		return Status{}, false, d.stopped
	}

	return d.pending.Remove().(Status), true, d.stopped
}

// Dropped returns how many snapshots were discarded because the queue was full.
func (d *dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *dispatcher) run(observers []Observer, done chan<- struct{}) {
	defer close(done)

	for {
		status, ok, stopped := d.next()
		if ok {
			for _, o := range observers {
				o.Observe(status)
			}
			continue
		}
		if stopped {
			return
		}
		<-d.wake
	}
}
