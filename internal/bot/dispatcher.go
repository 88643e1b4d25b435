package bot

import "sync"

// Dispatcher runs submitted work for one user strictly in order while
// different users proceed in parallel. A user's worker goroutine exists only
// while that user has queued work.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{queues: make(map[int64][]func())}
}

// Submit queues fn for userID. It returns false once Close has been called.
func (d *Dispatcher) Submit(userID int64, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	queue, running := d.queues[userID]
	d.queues[userID] = append(queue, fn)
	if !running {
		d.wg.Add(1)
		go d.run(userID)
	}
	return true
}

// Close stops accepting work and waits for queued work to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// The queue key stays present while the worker is alive, so Submit can tell
// whether it must start one.
func (d *Dispatcher) run(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		fn := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		fn()
	}
}

func (d *Dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
