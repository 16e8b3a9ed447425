// Package queue is the in-memory work queue behind the batch scanner.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

type Task struct {
	ID        string
	URL       string
	Priority  int
	Retries   int
	CreatedAt time.Time

	seq uint64
}

func NewTask(rawURL string, priority int) *Task {
	return &Task{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue pops the highest priority first and is FIFO within one
// priority. Pop blocks until a task arrives, the queue closes, or ctx ends.
type InMemoryQueue struct {
	mu     sync.Mutex
	tasks  taskHeap
	seq    uint64
	notify chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{notify: make(chan struct{})}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.seq++
	task.seq = q.seq
	heap.Push(&q.tasks, task)
	q.wake()
	return nil
}

// Pop returns ErrQueueClosed only once the queue is closed and drained.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := heap.Pop(&q.tasks).(*Task)
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// TryPop is Pop without blocking.
func (q *InMemoryQueue) TryPop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) > 0 {
		return heap.Pop(&q.tasks).(*Task), nil
	}
	if q.closed {
		return nil, ErrQueueClosed
	}
	return nil, ErrQueueEmpty
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.wake()
	}
	return nil
}

// wake releases every goroutine blocked in Pop. Callers hold q.mu.
func (q *InMemoryQueue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

type BatchQueue struct {
	queue     *InMemoryQueue
	batchSize int
}

func NewBatchQueue(q *InMemoryQueue, batchSize int) *BatchQueue {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchQueue{queue: q, batchSize: batchSize}
}

func (b *BatchQueue) PushBatch(tasks []*Task) error {
	for _, task := range tasks {
		if err := b.queue.Push(task); err != nil {
			return err
		}
	}
	return nil
}

// PopBatch blocks for the first task and then takes whatever else is ready,
// up to the batch size.
func (b *BatchQueue) PopBatch(ctx context.Context) ([]*Task, error) {
	first, err := b.queue.Pop(ctx)
	if err != nil {
		return nil, err
	}

	tasks := []*Task{first}
	for len(tasks) < b.batchSize {
		task, err := b.queue.TryPop()
		if err != nil {
			break
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
