package window

import (
	"sync"
)

// PipeEnd is one side of an in-memory window pair. Messages posted on
// one end are delivered to the listeners of the other end by a
// dedicated goroutine, preserving order. Messages arriving while the
// receiving end has no listener are dropped, the way a document that
// has not yet installed its message handler misses them.
type PipeEnd struct {
	peer      *PipeEnd
	listeners listeners

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
	posted int
}

// NewPipe returns two connected ends: conventionally host and frame.
func NewPipe() (*PipeEnd, *PipeEnd) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer = b
	b.peer = a
	go a.run()
	go b.run()
	return a, b
}

func newPipeEnd() *PipeEnd {
	e := &PipeEnd{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *PipeEnd) PostMessage(data []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.posted++
	e.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	return e.peer.enqueue(buf)
}

func (e *PipeEnd) Listen(fn func([]byte)) func() {
	return e.listeners.add(fn)
}

// Posted reports how many messages this end has sent.
func (e *PipeEnd) Posted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.posted
}

// Close stops delivery on this end. Pending inbound messages are dropped.
func (e *PipeEnd) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()
	e.listeners.clear()
	return nil
}

func (e *PipeEnd) enqueue(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.queue = append(e.queue, data)
	e.cond.Signal()
	return nil
}

func (e *PipeEnd) run() {
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		next := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.listeners.dispatch(next)
	}
}
