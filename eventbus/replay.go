package eventbus

import (
	"errors"

	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/idmutex"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

// Replay is a Topic that refuses to lose messages published while nobody is
// listening. Those are parked in an unbounded pending queue and handed to
// the next subscriber ahead of the live stream.
//
// One active consumer at a time is the supported pattern. With several, the
// pending queue only feeds whichever subscribed first after the gap.
type Replay[T any] struct {
	lock    idmutex.Mutex
	topic   *Topic[T]
	pending []T
}

func NewReplay[T any](capacity int) *Replay[T] {
	return &Replay[T]{topic: NewTopic[T](capacity)}
}

// Publish delivers v live when a consumer exists, otherwise parks it.
func (r *Replay[T]) Publish(v T) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	err := r.topic.Publish(v)
	if errors.Is(err, ErrNoSubscribers) {
		r.pending = append(r.pending, v)
		telemetry.IncrementCounter(common.TelemetryConstants.Mux.BufferedCounter, common.TelemetryConstants.Mux.Prefix)
		return nil
	}
	return err
}

// Subscribe registers the consumer first and replays the parked backlog into
// its buffer in arrival order, so nothing can slip between the queue and the
// live stream. The buffer is sized to hold the whole backlog.
func (r *Replay[T]) Subscribe() *Subscription[T] {
	r.lock.Lock()
	defer r.lock.Unlock()
	sub := r.topic.subscribe(r.pending)
	if len(r.pending) > 0 {
		for range r.pending {
			telemetry.IncrementCounter(common.TelemetryConstants.Mux.ReplayedCounter, common.TelemetryConstants.Mux.Prefix)
		}
		r.pending = nil
	}
	return sub
}

// Pending reports how many messages are parked waiting for a subscriber.
func (r *Replay[T]) Pending() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.pending)
}

// Close tears down the underlying topic. Parked messages are dropped.
func (r *Replay[T]) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.topic.Close()
	r.pending = nil
}
