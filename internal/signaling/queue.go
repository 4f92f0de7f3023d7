package signaling

import (
	"errors"
	"sync"
)

var (
	errSendQueueFull   = errors.New("send queue full")
	errSendQueueClosed = errors.New("send queue closed")
)

// sendQueue is a byte-bounded FIFO of outbound text frames.
//
// Enqueue never blocks, so a router fanning out to a slow peer never waits on
// that peer's socket.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	maxBytes int
	curBytes int
	frames   [][]byte
}

func newSendQueue(maxBytes int) *sendQueue {
	q := &sendQueue{maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends frame if it fits within the byte budget.
func (q *sendQueue) Enqueue(frame []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errSendQueueClosed
	}
	if q.curBytes+len(frame) > q.maxBytes {
		return errSendQueueFull
	}

	q.frames = append(q.frames, frame)
	q.curBytes += len(frame)
	q.notEmpty.Signal()
	return nil
}

// Dequeue blocks until a frame is available or the queue is closed and empty.
func (q *sendQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	q.curBytes -= len(frame)
	return frame, true
}

// Close stops accepting frames. With drain set, frames already queued are
// still handed out by Dequeue; otherwise they are discarded.
func (q *sendQueue) Close(drain bool) {
	q.mu.Lock()
	q.closed = true
	if !drain {
		q.frames = nil
		q.curBytes = 0
	}
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
