package txutil

import (
	"strconv"
	"sync"

	"github.com/edwingeng/deque"
)

// taskQueue is a mutex-guarded FIFO drained by exactly one worker.
type taskQueue struct {
	id    string
	mu    sync.Mutex
	deque deque.Deque
	wake  chan struct{}
}

func newTaskQueue(idx int) *taskQueue {
	return &taskQueue{
		id:    strconv.Itoa(idx),
		deque: deque.NewDeque(),
		wake:  make(chan struct{}, 1),
	}
}

func (q *taskQueue) push(t *task) {
	q.mu.Lock()
	q.deque.PushBack(t)
	n := q.deque.Len()
	q.mu.Unlock()

	queueDepth.WithLabelValues(q.id).Set(float64(n))
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *taskQueue) pop() *task {
	q.mu.Lock()
	if q.deque.Empty() {
		q.mu.Unlock()
		return nil
	}
	t := q.deque.PopFront().(*task)
	n := q.deque.Len()
	q.mu.Unlock()

	queueDepth.WithLabelValues(q.id).Set(float64(n))
	return t
}

// drain discards every queued task and returns how many were dropped.
func (q *taskQueue) drain() int {
	q.mu.Lock()
	n := q.deque.Len()
	q.deque = deque.NewDeque()
	q.mu.Unlock()

	queueDepth.WithLabelValues(q.id).Set(0)
	return n
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deque.Len()
}
