package window

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("window: closed")

// Window is the messaging surface of one embedded frame: an opaque
// datagram post plus message listeners.
//
// Implementations deliver inbound datagrams to listeners asynchronously,
// one at a time, in arrival order. PostMessage must never invoke a
// listener synchronously.
type Window interface {
	PostMessage(data []byte) error
	Listen(fn func(data []byte)) (remove func())
}

type listener struct {
	fn     func([]byte)
	active bool
}

// listeners is the registry shared by every Window implementation.
type listeners struct {
	mu   sync.Mutex
	list []*listener
}

func (l *listeners) add(fn func([]byte)) func() {
	entry := &listener{fn: fn, active: true}
	l.mu.Lock()
	l.list = append(l.list, entry)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !entry.active {
			return
		}
		entry.active = false
		for i, candidate := range l.list {
			if candidate == entry {
				l.list = append(l.list[:i:i], l.list[i+1:]...)
				break
			}
		}
	}
}

// dispatch hands data to each listener still registered at call time.
// Listeners removed mid-dispatch are skipped.
func (l *listeners) dispatch(data []byte) {
	l.mu.Lock()
	snapshot := make([]*listener, len(l.list))
	copy(snapshot, l.list)
	l.mu.Unlock()

	for _, entry := range snapshot {
		l.mu.Lock()
		active := entry.active
		l.mu.Unlock()
		if !active {
			continue
		}
		entry.fn(data)
	}
}

func (l *listeners) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.list {
		entry.active = false
	}
	l.list = nil
}
