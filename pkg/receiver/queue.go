package receiver

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Send after Close.
var ErrQueueClosed = errors.New("command queue closed")

// Queue is an unbounded FIFO of commands. Send never blocks; the consumer
// polls with TryRecv or waits on Ready.
type Queue struct {
	mu     sync.Mutex
	items  []Command
	closed bool
	ready  chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Send appends cmd.
func (q *Queue) Send(cmd Command) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryRecv removes the oldest command, if any.
func (q *Queue) TryRecv() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	cmd := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return cmd, true
}

// Ready is signalled after Send. A signal may cover several commands.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further sends. Pending commands can still be received.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
