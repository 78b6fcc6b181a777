package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/gorilla/websocket"
	logging "github.com/sirupsen/logrus"

	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/idmutex"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

const (
	defaultDialAttempts = 3
	defaultDialDelay    = 500 * time.Millisecond
)

type WebsocketOption func(*websocketOptions)

type websocketOptions struct {
	dialAttempts uint
	dialDelay    time.Duration
}

func WithDialAttempts(n int) WebsocketOption {
	return func(o *websocketOptions) {
		if n > 0 {
			o.dialAttempts = uint(n)
		}
	}
}

func WithDialDelay(d time.Duration) WebsocketOption {
	return func(o *websocketOptions) {
		if d > 0 {
			o.dialDelay = d
		}
	}
}

// Websocket is the production Transport, a single long-lived websocket
// connection to the relay.
type Websocket struct {
	conn      *websocket.Conn
	writeLock sync.Mutex
	closed    atomic.Bool

	lock      idmutex.Mutex
	onMessage func(string)
	backlog   []string

	closeOnce sync.Once
}

// DialWebsocket connects to the relay, retrying the dial a few times before
// giving up. Construction failure is fatal to the caller, there is no
// background reconnect.
func DialWebsocket(url string, opts ...WebsocketOption) (*Websocket, error) {
	options := websocketOptions{
		dialAttempts: defaultDialAttempts,
		dialDelay:    defaultDialDelay,
	}
	for _, opt := range opts {
		opt(&options)
	}

	var conn *websocket.Conn
	err := retry.Do(func() error {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			telemetry.IncrementCounter(common.TelemetryConstants.Transport.DialRetryCounter, common.TelemetryConstants.Transport.Prefix)
			logging.WithError(err).WithField("url", url).Debug("dial attempt failed")
			return err
		}
		conn = c
		return nil
	},
		retry.Attempts(options.dialAttempts),
		retry.Delay(options.dialDelay),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("could not connect to relay at %v: %w", url, err)
	}

	telemetry.IncrementCounter(common.TelemetryConstants.Transport.DialCounter, common.TelemetryConstants.Transport.Prefix)
	logging.WithField("url", url).Info("connected to relay")

	ws := &Websocket{conn: conn}
	go ws.readPump()
	return ws, nil
}

func (ws *Websocket) readPump() {
	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			logging.WithError(err).Debug("read pump stopped")
			ws.markClosed()
			return
		}
		telemetry.IncrementCounter(common.TelemetryConstants.Transport.ReceiveCounter, common.TelemetryConstants.Transport.Prefix)
		ws.deliver(string(data))
	}
}

// deliver runs the handler under the lock so backlog replay and live
// delivery cannot reorder around each other.
func (ws *Websocket) deliver(message string) {
	ws.lock.Lock()
	defer ws.lock.Unlock()
	if ws.onMessage == nil {
		ws.backlog = append(ws.backlog, message)
		telemetry.IncrementCounter(common.TelemetryConstants.Transport.BacklogCounter, common.TelemetryConstants.Transport.Prefix)
		return
	}
	ws.onMessage(message)
}

func (ws *Websocket) Send(message string) error {
	ws.writeLock.Lock()
	defer ws.writeLock.Unlock()
	if ws.isClosed() {
		telemetry.IncrementCounter(common.TelemetryConstants.Transport.SendFailedCounter, common.TelemetryConstants.Transport.Prefix)
		return ErrClosed
	}
	err := ws.conn.WriteMessage(websocket.TextMessage, []byte(message))
	if err != nil {
		telemetry.IncrementCounter(common.TelemetryConstants.Transport.SendFailedCounter, common.TelemetryConstants.Transport.Prefix)
		return fmt.Errorf("could not write to relay: %w", err)
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Transport.SendCounter, common.TelemetryConstants.Transport.Prefix)
	return nil
}

func (ws *Websocket) SetOnMessage(fn func(message string)) {
	ws.lock.Lock()
	defer ws.lock.Unlock()
	ws.onMessage = fn
	for _, message := range ws.backlog {
		fn(message)
	}
	ws.backlog = nil
}

// SetOnOpen fires immediately, a dialed websocket is already open.
func (ws *Websocket) SetOnOpen(fn func()) {
	if fn != nil {
		fn()
	}
}

func (ws *Websocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		ws.markClosed()
		deadline := time.Now().Add(time.Second)
		_ = ws.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = ws.conn.Close()
	})
	return err
}

func (ws *Websocket) markClosed() {
	ws.closed.Store(true)
}

func (ws *Websocket) isClosed() bool {
	return ws.closed.Load()
}
