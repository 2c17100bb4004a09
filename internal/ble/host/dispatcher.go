package host

import (
	"log/slog"
	"sync"
)

// dispatcher runs queued callbacks one at a time, in the order they were
// posted, on a goroutine of its own. The queue is unbounded so that posting
// never blocks the transport.
type dispatcher struct {
	name string
	log  *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newDispatcher(name string, log *slog.Logger) *dispatcher {
	d := &dispatcher{name: name, log: log, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// post queues fn. It reports false once the dispatcher is closed.
func (d *dispatcher) post(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
	return true
}

// close stops accepting work. Callbacks already queued still run.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.call(fn)
	}
}

func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("[BLE] callback panicked", "dispatcher", d.name, "panic", r)
		}
	}()
	fn()
}
