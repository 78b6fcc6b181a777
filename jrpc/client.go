package jrpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/bijson"

	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/eventbus"
	"github.com/torusresearch/tss-relay-client/idmutex"
	"github.com/torusresearch/tss-relay-client/telemetry"
	"github.com/torusresearch/tss-relay-client/timeout"
	"github.com/torusresearch/tss-relay-client/transport"
)

const defaultRequestTimeout = 30 * time.Second

type ClientOption func(*Client)

// WithRequestTimeout bounds how long Call waits for the relay to answer.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithNotificationBuffer sets the per-subscriber buffer for notification
// streams.
func WithNotificationBuffer(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// Client multiplexes calls and notifications over one Transport. Every
// in-flight call owns exactly one pending-table entry, removed exactly once
// by whichever comes first, the response or the deadline.
type Client struct {
	transport  transport.Transport
	timeout    time.Duration
	bufferSize int
	messageID  uint64

	pendingLock idmutex.Mutex
	pending     map[uint64]chan Response

	notifications *eventbus.Bus[*bijson.RawMessage]
	sink          *Sink

	closeOnce sync.Once
}

// NewClient wires the client onto tr and starts consuming inbound messages.
func NewClient(tr transport.Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport:  tr,
		timeout:    defaultRequestTimeout,
		bufferSize: eventbus.DefaultCapacity,
		pending:    make(map[uint64]chan Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.notifications = eventbus.NewBus[*bijson.RawMessage](c.bufferSize)
	c.sink = newSink(tr)
	tr.SetOnMessage(c.dispatch)
	return c
}

// Call sends a request and blocks for its response or the deadline. The
// returned error is the relay's RPCError when the response carried one,
// timeout.ErrElapsed (wrapped) when the window passed, or a transport
// failure.
func (c *Client) Call(method string, params interface{}) (*Response, error) {
	id := c.nextID()
	req, err := NewCall(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("could not build %v request: %w", method, err)
	}
	data, err := bijson.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not marshal %v request: %w", method, err)
	}

	// registered before the write so a fast response cannot beat the entry
	reply := make(chan Response, 1)
	c.addPending(id, reply)

	telemetry.IncrementCounter(common.TelemetryConstants.RPC.RequestCounter, common.TelemetryConstants.RPC.Prefix)
	logging.WithFields(logging.Fields{
		"method": method,
		"id":     id,
	}).Debug("sending request")

	if err := c.transport.Send(string(data)); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("could not send %v request: %w", method, err)
	}

	resp, err := timeout.Await(c.timeout, reply)
	if err != nil {
		c.removePending(id)
		telemetry.IncrementCounter(common.TelemetryConstants.RPC.TimeoutCounter, common.TelemetryConstants.RPC.Prefix)
		return nil, fmt.Errorf("%v request %v: %w", method, id, err)
	}
	if resp.Error != nil {
		return &resp, resp.Error
	}
	return &resp, nil
}

// Notify ships a fire-and-forget notification through the ordered sink.
func (c *Client) Notify(method string, params interface{}) error {
	return c.sink.Notify(method, params)
}

// Close tears down the sink, the notification bus and the transport.
// Requests still in flight run into their deadline.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sink.Close()
		c.notifications.Close()
		err = c.transport.Close()
	})
	return err
}

func (c *Client) nextID() uint64 {
	return atomic.AddUint64(&c.messageID, 1)
}

func (c *Client) addPending(id uint64, ch chan Response) {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()
	c.pending[id] = ch
}

func (c *Client) removePending(id uint64) {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()
	delete(c.pending, id)
}

// takePending removes and returns the reply channel for id, each entry can
// be taken at most once.
func (c *Client) takePending(id uint64) (chan Response, bool) {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return ch, ok
}

// dispatch classifies one inbound message and routes it. It never blocks,
// reply channels are buffered and topic publishes drop on overflow.
func (c *Client) dispatch(raw string) {
	body := []byte(raw)
	switch Classify(body) {
	case KindResponse:
		var resp Response
		if err := bijson.Unmarshal(body, &resp); err != nil {
			telemetry.IncrementCounter(common.TelemetryConstants.RPC.InvalidMessageCounter, common.TelemetryConstants.RPC.Prefix)
			logging.WithError(err).Debug("dropping undecodable response")
			return
		}
		ch, ok := c.takePending(resp.ID)
		if !ok {
			telemetry.IncrementCounter(common.TelemetryConstants.RPC.ResponseDroppedCounter, common.TelemetryConstants.RPC.Prefix)
			logging.WithField("id", resp.ID).Debug("dropping response with no pending request")
			return
		}
		telemetry.IncrementCounter(common.TelemetryConstants.RPC.ResponseMatchedCounter, common.TelemetryConstants.RPC.Prefix)
		ch <- resp

	case KindNotification:
		var req Request
		if err := bijson.Unmarshal(body, &req); err != nil {
			telemetry.IncrementCounter(common.TelemetryConstants.RPC.InvalidMessageCounter, common.TelemetryConstants.RPC.Prefix)
			logging.WithError(err).Debug("dropping undecodable notification")
			return
		}
		telemetry.IncrementCounter(common.TelemetryConstants.RPC.NotificationInCounter, common.TelemetryConstants.RPC.Prefix)
		if err := c.notifications.Publish(req.Method, req.Params); err != nil {
			telemetry.IncrementCounter(common.TelemetryConstants.RPC.UnroutedCounter, common.TelemetryConstants.RPC.Prefix)
			logging.WithField("method", req.Method).Debug("notification had no subscribers")
		}

	default:
		telemetry.IncrementCounter(common.TelemetryConstants.RPC.InvalidMessageCounter, common.TelemetryConstants.RPC.Prefix)
		logging.Debug("dropping unrecognized message")
	}
}

// Stream is a typed view of one method's notifications.
type Stream[T any] struct {
	client *Client
	method string
	sub    *eventbus.Subscription[*bijson.RawMessage]
}

// Subscribe starts a typed notification stream for method. Streams are
// independent, cancelling one does not affect others on the same method.
func Subscribe[T any](c *Client, method string) *Stream[T] {
	return &Stream[T]{
		client: c,
		method: method,
		sub:    c.notifications.Subscribe(method),
	}
}

// Next blocks for the next notification decoded into T. Decode failures and
// lag are per-item errors, the stream stays usable after them.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	raw, err := s.sub.Next(ctx)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, ErrNoParams
	}
	var v T
	if err := bijson.Unmarshal(*raw, &v); err != nil {
		return zero, &DecodeError{Method: s.method, Err: err}
	}
	return v, nil
}

// Cancel unsubscribes the stream from its method.
func (s *Stream[T]) Cancel() {
	s.client.notifications.Unsubscribe(s.method, s.sub)
}
