package transport

import (
	"sync"
	"sync/atomic"

	"github.com/torusresearch/tss-relay-client/idmutex"
)

const localQueueDepth = 1024

// Local is an in-memory Transport. NewLocalPair returns two halves wired
// back to back, what one half sends the other receives. Delivery runs on a
// pump goroutine per half, so a handler sending from inside a handler never
// recurses into itself.
type Local struct {
	peer *Local

	queue  chan string
	done   chan struct{}
	closed atomic.Bool

	lock      idmutex.Mutex
	onMessage func(string)
	backlog   []string

	closeOnce sync.Once
}

func NewLocalPair() (*Local, *Local) {
	a := newLocal()
	b := newLocal()
	a.peer = b
	b.peer = a
	go a.pump()
	go b.pump()
	return a, b
}

func newLocal() *Local {
	return &Local{
		queue: make(chan string, localQueueDepth),
		done:  make(chan struct{}),
	}
}

func (l *Local) pump() {
	for {
		select {
		case message := <-l.queue:
			l.deliver(message)
		case <-l.done:
			return
		}
	}
}

func (l *Local) deliver(message string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.onMessage == nil {
		l.backlog = append(l.backlog, message)
		return
	}
	l.onMessage(message)
}

func (l *Local) Send(message string) error {
	if l.closed.Load() || l.peer.closed.Load() {
		return ErrClosed
	}
	select {
	case l.peer.queue <- message:
		return nil
	case <-l.peer.done:
		return ErrClosed
	}
}

func (l *Local) SetOnMessage(fn func(message string)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.onMessage = fn
	for _, message := range l.backlog {
		fn(message)
	}
	l.backlog = nil
}

// SetOnOpen fires immediately, a local pair is born connected.
func (l *Local) SetOnOpen(fn func()) {
	if fn != nil {
		fn()
	}
}

func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
	return nil
}
