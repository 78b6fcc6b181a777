package eventbus

import (
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/idmutex"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

// Bus routes published payloads to subscribers by topic name. Topics come
// into existence on first Subscribe and are pruned when their last
// subscriber leaves, publishing into the void is an ErrNoSubscribers the
// caller decides what to do with.
type Bus[T any] struct {
	lock     idmutex.RWMutex
	topics   map[string]*Topic[T]
	capacity int
	closed   bool
}

func NewBus[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		topics:   make(map[string]*Topic[T]),
		capacity: capacity,
	}
}

func (b *Bus[T]) Publish(topic string, v T) error {
	b.lock.RLock()
	t, ok := b.topics[topic]
	closed := b.closed
	b.lock.RUnlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		telemetry.IncrementCounter(common.TelemetryConstants.Bus.NoListenerCounter, common.TelemetryConstants.Bus.Prefix)
		return ErrNoSubscribers
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Bus.PublishCounter, common.TelemetryConstants.Bus.Prefix)
	return t.Publish(v)
}

func (b *Bus[T]) Subscribe(topic string) *Subscription[T] {
	b.lock.Lock()
	defer b.lock.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		t = NewTopic[T](b.capacity)
		if b.closed {
			t.Close()
		} else {
			b.topics[topic] = t
		}
	}
	sub := t.Subscribe()
	telemetry.IncrementCounter(common.TelemetryConstants.Bus.SubscribeCounter, common.TelemetryConstants.Bus.Prefix)
	telemetry.IncGauge("bus_subscribers")
	return sub
}

// Unsubscribe cancels sub and prunes the topic if it was the last one on it.
func (b *Bus[T]) Unsubscribe(topic string, sub *Subscription[T]) {
	b.lock.Lock()
	defer b.lock.Unlock()
	sub.Cancel()
	if t, ok := b.topics[topic]; ok && t.subscriberCount() == 0 {
		delete(b.topics, topic)
	}
	telemetry.DecGauge("bus_subscribers")
}

// HasSubscriber returns true if anyone is listening on the topic.
func (b *Bus[T]) HasSubscriber(topic string) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	t, ok := b.topics[topic]
	return ok && t.subscriberCount() > 0
}

// Close tears down every topic. Further publishes return ErrClosed.
func (b *Bus[T]) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for name, t := range b.topics {
		t.Close()
		delete(b.topics, name)
	}
}
