// Package serial provides the single logical thread of control the call
// manager runs on: a task queue that executes submitted functions one at a
// time, in submission order.
package serial

import "sync"

// Queue executes tasks one at a time in FIFO order. Two tasks never run
// concurrently, so state touched only from queue tasks needs no locking.
type Queue struct {
	mu       sync.Mutex
	tasks    []func()
	draining bool
}

// NewQueue creates an empty queue. Draining starts lazily on first Post.
func NewQueue() *Queue {
	return &Queue{}
}

// Post submits a task and returns immediately. Tasks run in submission order.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()
	go q.drain()
}

// Do submits a task and blocks until it has run. Must not be called from
// within a task on the same queue.
func (q *Queue) Do(fn func()) {
	done := make(chan struct{})
	q.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		fn()
	}
}
