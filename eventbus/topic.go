package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/idmutex"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

// DefaultCapacity is the per-subscriber buffer, the relay message burst we
// absorb before a subscriber starts lagging.
const DefaultCapacity = 32

var (
	// ErrNoSubscribers reports that a published message had nowhere to go.
	ErrNoSubscribers = errors.New("no subscribers on topic")
	// ErrClosed reports that the topic or subscription was torn down.
	ErrClosed = errors.New("topic closed")
)

// LagError tells a slow subscriber how many messages it missed. The stream
// continues with newer messages after it, resubscribing is also fine.
type LagError struct {
	Missed int
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged, missed %v messages", e.Missed)
}

// Topic is a bounded broadcast channel. Every live subscriber gets every
// message, slow ones get a LagError instead of unbounded buffering.
type Topic[T any] struct {
	lock     idmutex.Mutex
	capacity int
	subs     []*Subscription[T]
	closed   bool
}

func NewTopic[T any](capacity int) *Topic[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Topic[T]{capacity: capacity}
}

// Publish delivers v to every live subscriber without blocking. A full
// subscriber buffer turns into a missed count on that subscriber only.
func (t *Topic[T]) Publish(v T) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.closed {
		return ErrClosed
	}
	if len(t.subs) == 0 {
		return ErrNoSubscribers
	}
	for _, s := range t.subs {
		select {
		case s.ch <- v:
		default:
			s.recordMiss()
			telemetry.IncrementCounter(common.TelemetryConstants.Bus.LagCounter, common.TelemetryConstants.Bus.Prefix)
		}
	}
	return nil
}

// Subscribe registers a new subscriber starting from the next message.
func (t *Topic[T]) Subscribe() *Subscription[T] {
	return t.subscribe(nil)
}

// subscribe optionally pre-loads backlog into the subscriber buffer, sized so
// the backlog can never overflow it.
func (t *Topic[T]) subscribe(backlog []T) *Subscription[T] {
	t.lock.Lock()
	defer t.lock.Unlock()
	s := &Subscription[T]{
		topic:  t,
		ch:     make(chan T, t.capacity+len(backlog)),
		lagged: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, v := range backlog {
		s.ch <- v
	}
	if t.closed {
		s.closeDone()
		return s
	}
	t.subs = append(t.subs, s)
	return s
}

// Close tears the topic down, subscribers drain what is buffered and then
// see ErrClosed.
func (t *Topic[T]) Close() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, s := range t.subs {
		s.closeDone()
	}
	t.subs = nil
}

func (t *Topic[T]) subscriberCount() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.subs)
}

func (t *Topic[T]) remove(sub *Subscription[T]) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for i, s := range t.subs {
		if s == sub {
			copy(t.subs[i:], t.subs[i+1:])
			t.subs[len(t.subs)-1] = nil
			t.subs = t.subs[:len(t.subs)-1]
			return
		}
	}
}

// Subscription is one consumer's view of a topic. Next is not safe for
// concurrent use by multiple goroutines.
type Subscription[T any] struct {
	topic    *Topic[T]
	ch       chan T
	lagged   chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	lock   idmutex.Mutex
	missed int
}

// Next blocks for the next message. Buffered messages are always drained
// before a LagError is surfaced, the gap sits after them in the stream.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case v := <-s.ch:
			return v, nil
		default:
		}
		if n := s.takeMissed(); n > 0 {
			return zero, &LagError{Missed: n}
		}
		select {
		case v := <-s.ch:
			return v, nil
		case <-s.lagged:
			continue
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.done:
			select {
			case v := <-s.ch:
				return v, nil
			default:
				return zero, ErrClosed
			}
		}
	}
}

// Cancel removes the subscription from its topic. Safe to call twice.
func (s *Subscription[T]) Cancel() {
	s.topic.remove(s)
	s.closeDone()
}

func (s *Subscription[T]) closeDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

func (s *Subscription[T]) recordMiss() {
	s.lock.Lock()
	s.missed++
	s.lock.Unlock()
	select {
	case s.lagged <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) takeMissed() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := s.missed
	s.missed = 0
	return n
}
