package executor

import (
	"sync"

	"github.com/eugenetaranov/dasctl/internal/runner"
)

// Executor runs submitted tasks on its own goroutines.
type Executor interface {
	// Execute queues task. It fails once the executor is closed.
	Execute(task func()) error

	// Close stops accepting tasks and waits for queued ones to finish.
	Close()
}

// queue is a FIFO task queue drained by a fixed number of workers.
// Execute never blocks.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	closed  bool
	workers sync.WaitGroup
}

// NewSerialExecutor returns an executor with one worker. Tasks run one at a
// time in submission order.
func NewSerialExecutor() Executor {
	return newQueue(1)
}

// NewPoolExecutor returns an executor with n workers. Tasks start in
// submission order but may finish in any order.
func NewPoolExecutor(n int) Executor {
	if n < 1 {
		n = 1
	}
	return newQueue(n)
}

func newQueue(n int) *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	q.workers.Add(n)
	for i := 0; i < n; i++ {
		go q.work()
	}
	return q
}

func (q *queue) Execute(task func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return runner.Errorf(runner.CodeIllegalState, nil, "executor is closed")
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return nil
}

func (q *queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.workers.Wait()
}

func (q *queue) work() {
	defer q.workers.Done()
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}
