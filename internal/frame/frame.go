// Package frame defers tree mutations to the next frame.
package frame

import "sync"

// Scheduler defers mutations until the next drain.
type Scheduler interface {
	// Schedule queues fn to run on the next drain.
	Schedule(fn func())
	// Drain runs the mutations queued before the call and returns how many ran.
	Drain() int
}

// Queue is a FIFO Scheduler. Mutations scheduled while a drain is running
// wait for the following drain. Queue is safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Schedule implements Scheduler.
func (q *Queue) Schedule(fn func()) {
	if fn == nil {
		return
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// Drain implements Scheduler.
func (q *Queue) Drain() int {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}

	return len(tasks)
}

// Len returns the number of queued mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Immediate runs every mutation synchronously inside Schedule.
type Immediate struct{}

// Schedule implements Scheduler.
func (Immediate) Schedule(fn func()) {
	if fn != nil {
		fn()
	}
}

// Drain implements Scheduler.
func (Immediate) Drain() int { return 0 }
