package history

import "sync"

// TaskQueue holds callbacks deferred to the next idle point. The owner of
// the document decides when "idle" is, typically after the current request
// or gesture has been fully handled, and calls RunIdle.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Defer schedules fn for the next RunIdle.
func (q *TaskQueue) Defer(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// Pending returns the number of queued tasks.
func (q *TaskQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// RunIdle runs the tasks queued so far, in order. Tasks deferred while
// running wait for the following call.
func (q *TaskQueue) RunIdle() int {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}
